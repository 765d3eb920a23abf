package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/metabuild-lab/labcore"
	"github.com/metabuild-lab/labcore/internal/config"
)

var testJWT = config.JWTConfig{Secret: "0123456789abcdef0123456789abcdef", Issuer: "labcore-test"}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	roles, err := labcore.NewRoleRegistry()
	if err != nil {
		t.Fatalf("NewRoleRegistry failed: %v", err)
	}
	resolver, err := labcore.NewResolver(labcore.ResolverConfig{Registry: roles})
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	jobs, err := labcore.NewJobRegistry(context.Background(), labcore.RegistryConfig{
		Roles: roles,
		Store: labcore.NewMemoryStore(),
	})
	if err != nil {
		t.Fatalf("NewJobRegistry failed: %v", err)
	}

	app := fiber.New()
	Setup(app, &Handler{Jobs: jobs, Resolver: resolver}, testJWT)
	return app
}

func signToken(t *testing.T, p labcore.Principal) string {
	t.Helper()
	claims := principalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testJWT.Issuer,
			Subject:   p.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name:   p.Name,
		Role:   string(p.Role),
		Active: p.Active,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWT.Secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func principal(role labcore.Role) labcore.Principal {
	return labcore.Principal{ID: uuid.New(), Name: "test", Role: role, Active: true}
}

func TestRoutes_RequireToken(t *testing.T) {
	app := newTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/api/v1/navigation", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	resp, _ = doJSON(t, app, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz: status %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestRoutes_RejectsForgedToken(t *testing.T) {
	app := newTestApp(t)

	p := principal(labcore.RoleDirector)
	claims := principalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testJWT.Issuer,
			Subject:   p.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role:   string(p.Role),
		Active: true,
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("wrong-secret-wrong-secret-wrong!"))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	resp, _ := doJSON(t, app, http.MethodGet, "/api/v1/navigation", forged, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("forged token: status %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestRoutes_Navigation(t *testing.T) {
	app := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/api/v1/navigation", signToken(t, principal(labcore.RoleOfficeStaff)), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want %d", resp.StatusCode, http.StatusOK)
	}

	modules, ok := body["modules"].([]any)
	if !ok {
		t.Fatalf("missing modules in response: %v", body)
	}
	want := []string{"sales", "operations", "finance"}
	if len(modules) != len(want) {
		t.Fatalf("modules = %v, want %v", modules, want)
	}
	for i, m := range want {
		if modules[i] != m {
			t.Errorf("modules[%d] = %v, want %s", i, modules[i], m)
		}
	}
}

func TestRoutes_JobLifecycle(t *testing.T) {
	app := newTestApp(t)

	office := principal(labcore.RoleOfficeStaff)
	manager := principal(labcore.RoleLabManager)
	director := principal(labcore.RoleDirector)
	tech := principal(labcore.RoleTechnician)

	// Technicians cannot register jobs.
	resp, _ := doJSON(t, app, http.MethodPost, "/api/v1/jobs/", signToken(t, tech),
		fiber.Map{"client_ref": "CR1"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("technician create: status %d, want %d", resp.StatusCode, http.StatusForbidden)
	}

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/jobs/", signToken(t, office),
		fiber.Map{"client_ref": "CR1", "priority": "urgent"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d body %v", resp.StatusCode, body)
	}
	jobID, _ := body["id"].(string)
	if jobID == "" {
		t.Fatalf("create response missing job id: %v", body)
	}

	transition := func(token string, payload fiber.Map) (*http.Response, map[string]any) {
		return doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/transitions", jobID), token, payload)
	}

	resp, body = transition(signToken(t, manager), fiber.Map{"target": "assigned", "technician": tech.ID.String()})
	if resp.StatusCode != http.StatusOK || body["state"] != "assigned" {
		t.Fatalf("assign: status %d body %v", resp.StatusCode, body)
	}

	// A foreign technician cannot start the job.
	resp, _ = transition(signToken(t, principal(labcore.RoleTechnician)), fiber.Map{"target": "in_progress"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign start: status %d, want %d", resp.StatusCode, http.StatusForbidden)
	}

	resp, _ = transition(signToken(t, tech), fiber.Map{"target": "in_progress"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: status %d", resp.StatusCode)
	}
	resp, body = transition(signToken(t, tech), fiber.Map{"target": "results_submitted", "results_ref": "reports/r1.pdf"})
	if resp.StatusCode != http.StatusOK || body["state"] != "under_review" {
		t.Fatalf("submit: status %d body %v", resp.StatusCode, body)
	}
	resp, _ = transition(signToken(t, director), fiber.Map{"target": "approved"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve: status %d", resp.StatusCode)
	}
	resp, _ = transition(signToken(t, office), fiber.Map{"target": "invoiced"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("invoice: status %d", resp.StatusCode)
	}

	// Frozen job maps to a conflict.
	resp, _ = transition(signToken(t, tech), fiber.Map{"target": "in_progress"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("frozen: status %d, want %d", resp.StatusCode, http.StatusConflict)
	}

	// Technician worklist contains the finished job; it is theirs.
	resp, body = doJSON(t, app, http.MethodGet, "/api/v1/jobs/", signToken(t, tech), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("worklist: status %d", resp.StatusCode)
	}
	jobs, _ := body["jobs"].([]any)
	if len(jobs) != 1 {
		t.Fatalf("technician worklist has %d jobs, want 1", len(jobs))
	}
}

func TestRoutes_CheckPermissions(t *testing.T) {
	app := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/permissions/check", signToken(t, principal(labcore.RoleLabManager)),
		fiber.Map{"checks": []fiber.Map{
			{"module": "operations", "verb": "assign"},
			{"module": "finance", "verb": "create"},
		}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d body %v", resp.StatusCode, body)
	}

	results, _ := body["results"].([]any)
	if len(results) != 2 {
		t.Fatalf("results = %v, want 2 entries", body)
	}
	first, _ := results[0].(map[string]any)
	second, _ := results[1].(map[string]any)
	if first["allowed"] != true {
		t.Errorf("manager operations.assign denied: %v", first)
	}
	if second["allowed"] != false {
		t.Errorf("manager finance.create allowed: %v", second)
	}
}

func TestRoutes_GetJobNotFound(t *testing.T) {
	app := newTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/api/v1/jobs/JOB2025080099", signToken(t, principal(labcore.RoleDirector)), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestRoutes_GetJobForeignTechnician(t *testing.T) {
	app := newTestApp(t)

	manager := principal(labcore.RoleLabManager)
	tech := principal(labcore.RoleTechnician)

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/jobs/", signToken(t, manager),
		fiber.Map{"client_ref": "CR2"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d body %v", resp.StatusCode, body)
	}
	jobID, _ := body["id"].(string)

	resp, _ = doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/transitions", jobID),
		signToken(t, manager), fiber.Map{"target": "assigned", "technician": tech.ID.String()})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("assign: status %d", resp.StatusCode)
	}

	// The assigned technician can fetch the job; any other technician gets
	// the same not-found answer as for an ID that was never issued.
	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/jobs/"+jobID, signToken(t, tech), nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("owner fetch: status %d, want %d", resp.StatusCode, http.StatusOK)
	}
	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/jobs/"+jobID,
		signToken(t, principal(labcore.RoleTechnician)), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("foreign fetch: status %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}
