package routes

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/metabuild-lab/labcore"
	"github.com/metabuild-lab/labcore/internal/config"
)

const principalKey = "principal"

// principalClaims is the token payload issued by the upstream login
// service. The engine trusts the role claim; it never verifies credentials.
type principalClaims struct {
	jwt.RegisteredClaims
	Name   string `json:"name"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}

// AuthMiddleware extracts the authenticated principal from the bearer
// token and stores it in the request locals.
func AuthMiddleware(cfg config.JWTConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing bearer token"})
		}

		claims := &principalClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		}, jwt.WithIssuer(cfg.Issuer), jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !parsed.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}

		id, err := uuid.Parse(claims.Subject)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid subject claim"})
		}

		c.Locals(principalKey, labcore.Principal{
			ID:     id,
			Name:   claims.Name,
			Role:   labcore.Role(claims.Role),
			Active: claims.Active,
		})
		return c.Next()
	}
}

func principalFrom(c *fiber.Ctx) (labcore.Principal, bool) {
	p, ok := c.Locals(principalKey).(labcore.Principal)
	return p, ok
}

// RequirePermission gates a route on a (module, verb) grant. Contextual
// (per-job) checks remain with the handlers; this is the module-level gate.
func (h *Handler) RequirePermission(module labcore.Module, verb labcore.Verb) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := principalFrom(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "no authenticated principal"})
		}

		d := h.Resolver.Decide(c.UserContext(), p, labcore.Action{Module: module, Verb: verb}, nil)
		h.recordDecision(d)
		if !d.Allowed {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": d.Reason})
		}
		return c.Next()
	}
}
