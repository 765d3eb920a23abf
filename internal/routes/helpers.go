package routes

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/metabuild-lab/labcore"
)

// respondEngineError maps the engine's error kinds onto HTTP statuses. The
// engine itself is transport-agnostic; this is the only place statuses are
// assigned.
func respondEngineError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, labcore.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, labcore.ErrForbidden),
		errors.Is(err, labcore.ErrSeparationOfDuties):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, labcore.ErrInvalidTransition),
		errors.Is(err, labcore.ErrJobFrozen):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, labcore.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, labcore.ErrPersistence):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "storage temporarily unavailable"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}

func (h *Handler) recordDecision(d labcore.Decision) {
	if h.Metrics == nil {
		return
	}
	outcome := "deny"
	if d.Allowed {
		outcome = "allow"
	}
	h.Metrics.DecisionsTotal.WithLabelValues(outcome).Inc()
}
