package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metabuild-lab/labcore"
	"github.com/metabuild-lab/labcore/pkg/metrics"
)

// Handler bundles the engine components the HTTP layer exposes.
type Handler struct {
	Jobs     *labcore.JobRegistry
	Resolver *labcore.Resolver
	Metrics  *metrics.Collector
	Log      *zap.Logger
}

type createJobRequest struct {
	ClientRef string `json:"client_ref"`
	Priority  string `json:"priority"`
}

func (h *Handler) createJob(c *fiber.Ctx) error {
	p, _ := principalFrom(c)

	var req createJobRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed request body"})
	}

	job, err := h.Jobs.CreateJob(c.UserContext(), p, req.ClientRef, labcore.Priority(req.Priority))
	if err != nil {
		return respondEngineError(c, err)
	}
	if h.Metrics != nil {
		h.Metrics.JobsCreatedTotal.Inc()
	}
	return c.Status(fiber.StatusCreated).JSON(jobResponse(job))
}

func (h *Handler) listJobs(c *fiber.Ctx) error {
	p, _ := principalFrom(c)

	summaries, err := h.Jobs.ListFor(c.UserContext(), p)
	if err != nil {
		return respondEngineError(c, err)
	}
	return c.JSON(fiber.Map{"jobs": summaries})
}

func (h *Handler) getJob(c *fiber.Ctx) error {
	p, _ := principalFrom(c)

	job, err := h.Jobs.Get(c.UserContext(), c.Params("id"), p)
	if err != nil {
		return respondEngineError(c, err)
	}
	return c.JSON(jobResponse(job))
}

type transitionRequest struct {
	Target     string `json:"target"`
	Note       string `json:"note"`
	Technician string `json:"technician"`
	ResultsRef string `json:"results_ref"`
}

func (h *Handler) applyTransition(c *fiber.Ctx) error {
	p, _ := principalFrom(c)

	var req transitionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed request body"})
	}
	if req.Target == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "target state is required"})
	}

	tr := labcore.TransitionRequest{Note: req.Note, ResultsRef: req.ResultsRef}
	if req.Technician != "" {
		id, err := uuid.Parse(req.Technician)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid technician id"})
		}
		tr.Technician = &id
	}

	state, err := h.Jobs.ApplyTransition(c.UserContext(), c.Params("id"), labcore.JobState(req.Target), p, tr)
	if err != nil {
		return respondEngineError(c, err)
	}
	if h.Metrics != nil {
		h.Metrics.TransitionsTotal.WithLabelValues(string(state)).Inc()
	}
	return c.JSON(fiber.Map{"id": c.Params("id"), "state": state})
}

func (h *Handler) navigation(c *fiber.Ctx) error {
	p, _ := principalFrom(c)
	return c.JSON(fiber.Map{"modules": h.Resolver.VisibleModules(c.UserContext(), p)})
}

type permissionCheck struct {
	Module             string `json:"module"`
	Verb               string `json:"verb"`
	AssignedTechnician string `json:"assigned_technician,omitempty"`
}

type checkPermissionsRequest struct {
	Checks []permissionCheck `json:"checks"`
}

// checkPermissions resolves a batch of action checks for the caller. UIs
// use this to decide which controls to render for a page.
func (h *Handler) checkPermissions(c *fiber.Ctx) error {
	p, _ := principalFrom(c)

	var req checkPermissionsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed request body"})
	}
	if len(req.Checks) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "at least one check is required"})
	}

	checks := make([]labcore.BulkCheck, 0, len(req.Checks))
	for _, pc := range req.Checks {
		check := labcore.BulkCheck{
			Principal: p,
			Action:    labcore.Action{Module: labcore.Module(pc.Module), Verb: labcore.Verb(pc.Verb)},
		}
		if pc.AssignedTechnician != "" {
			id, err := uuid.Parse(pc.AssignedTechnician)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid technician id"})
			}
			check.Context = &labcore.DecisionContext{AssignedTechnician: &id}
		}
		checks = append(checks, check)
	}

	results := h.Resolver.DecideBulk(c.UserContext(), checks)
	out := make([]fiber.Map, 0, len(results))
	for _, r := range results {
		h.recordDecision(r.Decision)
		out = append(out, fiber.Map{
			"module":  r.Check.Action.Module,
			"verb":    r.Check.Action.Verb,
			"allowed": r.Decision.Allowed,
			"reason":  r.Decision.Reason,
		})
	}
	return c.JSON(fiber.Map{"results": out})
}

func (h *Handler) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func jobResponse(job *labcore.Job) fiber.Map {
	history := make([]fiber.Map, 0, len(job.History))
	for _, t := range job.History {
		history = append(history, fiber.Map{
			"from":       t.From,
			"to":         t.To,
			"actor_id":   t.ActorID,
			"actor_role": t.ActorRole,
			"at":         t.At,
			"note":       t.Note,
		})
	}
	resp := fiber.Map{
		"id":         job.ID,
		"client_ref": job.ClientRef,
		"priority":   job.Priority,
		"state":      job.State(),
		"created_at": job.CreatedAt,
		"history":    history,
	}
	if job.AssignedTechnician != nil {
		resp["assigned_technician"] = job.AssignedTechnician
	}
	if job.ResultsRef != "" {
		resp["results_ref"] = job.ResultsRef
	}
	return resp
}
