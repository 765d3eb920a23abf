package labcore

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func newTestResolver(t *testing.T, audit AuditSink) *Resolver {
	t.Helper()
	reg, err := NewRoleRegistry()
	if err != nil {
		t.Fatalf("NewRoleRegistry failed: %v", err)
	}
	r, err := NewResolver(ResolverConfig{Registry: reg, Audit: audit})
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	return r
}

func activePrincipal(role Role) Principal {
	return Principal{ID: uuid.New(), Name: "test", Role: role, Active: true}
}

func TestResolver_Decide(t *testing.T) {
	r := newTestResolver(t, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		role   Role
		action Action
		want   bool
	}{
		{"director config edit", RoleDirector, Action{ModuleConfig, VerbEdit}, true},
		{"manager assigns jobs", RoleLabManager, Action{ModuleOperations, VerbAssign}, true},
		{"manager cannot invoice", RoleLabManager, Action{ModuleFinance, VerbCreate}, false},
		{"office staff invoices", RoleOfficeStaff, Action{ModuleFinance, VerbCreate}, true},
		{"office staff no pricing", RoleOfficeStaff, Action{ModulePricing, VerbView}, false},
		{"technician views operations", RoleTechnician, Action{ModuleOperations, VerbView}, true},
		{"technician no sales", RoleTechnician, Action{ModuleSales, VerbView}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := r.Decide(ctx, activePrincipal(tc.role), tc.action, nil)
			if d.Allowed != tc.want {
				t.Errorf("Decide(%s, %s) = %v (%s), want %v", tc.role, tc.action, d.Allowed, d.Reason, tc.want)
			}
			if d.Reason == "" {
				t.Error("every decision must carry a reason")
			}
		})
	}
}

func TestResolver_Deterministic(t *testing.T) {
	r := newTestResolver(t, nil)
	ctx := context.Background()
	p := activePrincipal(RoleOfficeStaff)
	action := Action{ModuleFinance, VerbCreate}

	first := r.Decide(ctx, p, action, nil)
	for i := 0; i < 100; i++ {
		if got := r.Decide(ctx, p, action, nil); got != first {
			t.Fatalf("decision changed on call %d: %+v != %+v", i, got, first)
		}
	}
}

func TestResolver_InactivePrincipalDenied(t *testing.T) {
	r := newTestResolver(t, nil)
	p := Principal{ID: uuid.New(), Role: RoleDirector, Active: false}

	d := r.Decide(context.Background(), p, Action{ModuleSales, VerbView}, nil)
	if d.Allowed {
		t.Error("inactive principal must be denied even with a director role")
	}
}

func TestResolver_UnknownRoleDenied(t *testing.T) {
	r := newTestResolver(t, nil)
	p := Principal{ID: uuid.New(), Role: Role("intern"), Active: true}

	if d := r.Decide(context.Background(), p, Action{ModuleSales, VerbView}, nil); d.Allowed {
		t.Error("unknown role must fail closed")
	}
}

func TestResolver_TechnicianJobScoping(t *testing.T) {
	r := newTestResolver(t, nil)
	ctx := context.Background()
	tech := activePrincipal(RoleTechnician)
	other := uuid.New()

	tests := []struct {
		name string
		dc   *DecisionContext
		want bool
	}{
		{"own assignment", &DecisionContext{AssignedTechnician: &tech.ID}, true},
		{"someone else's job", &DecisionContext{AssignedTechnician: &other}, false},
		{"unassigned job", &DecisionContext{AssignedTechnician: nil}, false},
		{"no context supplied", nil, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := r.Decide(ctx, tech, Action{ModuleOperations, VerbView}, tc.dc)
			if d.Allowed != tc.want {
				t.Errorf("got %v (%s), want %v", d.Allowed, d.Reason, tc.want)
			}
		})
	}

	// Scoping applies only to technicians; a manager sees any job.
	mgr := activePrincipal(RoleLabManager)
	d := r.Decide(ctx, mgr, Action{ModuleOperations, VerbView}, &DecisionContext{AssignedTechnician: &other})
	if !d.Allowed {
		t.Errorf("manager denied with context: %s", d.Reason)
	}
}

func TestResolver_AuditsEveryDecision(t *testing.T) {
	sink := NewMemorySink()
	r := newTestResolver(t, sink)
	ctx := context.Background()

	r.Decide(ctx, activePrincipal(RoleTechnician), Action{ModuleSales, VerbView}, nil)
	r.Decide(ctx, activePrincipal(RoleDirector), Action{ModuleSales, VerbView}, nil)

	events := sink.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(events))
	}
	if events[0].Outcome != "deny" || events[1].Outcome != "allow" {
		t.Errorf("outcomes = %s, %s; want deny, allow", events[0].Outcome, events[1].Outcome)
	}
	for _, ev := range events {
		if ev.Type != AuditPermissionDecision {
			t.Errorf("event type = %s, want %s", ev.Type, AuditPermissionDecision)
		}
		if ev.Reason == "" {
			t.Error("audited decision must carry its reason")
		}
		if !strings.Contains(ev.Subject, "sales.view") {
			t.Errorf("subject = %q, want the action string", ev.Subject)
		}
	}
}

func TestResolver_InvalidateCacheWithoutRedis(t *testing.T) {
	r := newTestResolver(t, nil)
	if err := r.InvalidateCache(context.Background()); err != nil {
		t.Errorf("InvalidateCache without a cache = %v, want nil", err)
	}

	// Decisions keep working after an invalidation.
	d := r.Decide(context.Background(), activePrincipal(RoleDirector), Action{ModuleSales, VerbView}, nil)
	if !d.Allowed {
		t.Errorf("director denied after invalidation: %s", d.Reason)
	}
}

func TestResolver_DecideBulk(t *testing.T) {
	r := newTestResolver(t, nil)
	office := activePrincipal(RoleOfficeStaff)

	checks := []BulkCheck{
		{Principal: office, Action: Action{ModuleSales, VerbView}},
		{Principal: office, Action: Action{ModulePricing, VerbView}},
		{Principal: office, Action: Action{ModuleFinance, VerbCreate}},
	}
	results := r.DecideBulk(context.Background(), checks)
	if len(results) != len(checks) {
		t.Fatalf("expected %d results, got %d", len(checks), len(results))
	}

	wants := []bool{true, false, true}
	for i, want := range wants {
		if results[i].Check.Action != checks[i].Action {
			t.Errorf("result %d out of order: %s", i, results[i].Check.Action)
		}
		if results[i].Decision.Allowed != want {
			t.Errorf("result %d (%s) = %v, want %v", i, checks[i].Action, results[i].Decision.Allowed, want)
		}
	}
}
