package labcore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegistryConfig configures a JobRegistry.
type RegistryConfig struct {
	Roles    *RoleRegistry
	Store    Store
	Audit    AuditSink
	Notifier Notifier
	Logger   *zap.Logger

	// AutoQueueReview appends an automatic ResultsSubmitted → UnderReview
	// hop right after a submission. Enabled by default.
	AutoQueueReview *bool
	// RequireReassignOnReject keeps a rejected job in Rejected until a
	// reviewer explicitly assigns it again. With the default (off), the
	// job re-enters Assigned immediately, retaining its technician.
	RequireReassignOnReject bool
	// PersistRetryBackoff is the pause before the single store retry.
	PersistRetryBackoff time.Duration
}

// TransitionRequest carries the optional payload of a transition.
type TransitionRequest struct {
	Note       string
	Technician *uuid.UUID
	ResultsRef string
}

type jobEntry struct {
	mu  sync.Mutex
	job *Job
}

// JobRegistry holds the active jobs and serializes transitions per job ID.
// Different jobs transition independently; there is no global write lock on
// the transition path.
type JobRegistry struct {
	roles           *RoleRegistry
	store           Store
	audit           AuditSink
	notifier        Notifier
	log             *zap.Logger
	autoQueueReview bool
	requireReassign bool
	retryBackoff    time.Duration

	mu   sync.RWMutex
	jobs map[string]*jobEntry

	seqMu     sync.Mutex
	seqPrefix string
	seq       int
}

// NewJobRegistry builds a registry, loading any persisted jobs from the
// store and seeding the job ID sequence from them.
func NewJobRegistry(ctx context.Context, cfg RegistryConfig) (*JobRegistry, error) {
	if cfg.Roles == nil {
		return nil, fmt.Errorf("%w: job registry requires a role registry", ErrConfiguration)
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Audit == nil {
		cfg.Audit = NopSink{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NopNotifier{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	autoReview := true
	if cfg.AutoQueueReview != nil {
		autoReview = *cfg.AutoQueueReview
	}
	if cfg.PersistRetryBackoff <= 0 {
		cfg.PersistRetryBackoff = 100 * time.Millisecond
	}

	r := &JobRegistry{
		roles:           cfg.Roles,
		store:           cfg.Store,
		audit:           cfg.Audit,
		notifier:        cfg.Notifier,
		log:             cfg.Logger,
		autoQueueReview: autoReview,
		requireReassign: cfg.RequireReassignOnReject,
		retryBackoff:    cfg.PersistRetryBackoff,
		jobs:            make(map[string]*jobEntry),
	}

	jobs, err := cfg.Store.LoadJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	for _, j := range jobs {
		r.jobs[j.ID] = &jobEntry{job: j}
	}
	r.seedSequence(jobs)
	return r, nil
}

// jobIDPrefix follows the historical numbering: JOB + year + month.
func jobIDPrefix(t time.Time) string {
	return fmt.Sprintf("JOB%04d%02d", t.Year(), int(t.Month()))
}

func (r *JobRegistry) seedSequence(jobs []*Job) {
	prefix := jobIDPrefix(time.Now().UTC())
	max := 0
	for _, j := range jobs {
		if !strings.HasPrefix(j.ID, prefix) {
			continue
		}
		if n, err := strconv.Atoi(j.ID[len(prefix):]); err == nil && n > max {
			max = n
		}
	}
	r.seqPrefix = prefix
	r.seq = max
}

func (r *JobRegistry) nextJobID() string {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()
	prefix := jobIDPrefix(time.Now().UTC())
	if prefix != r.seqPrefix {
		r.seqPrefix = prefix
		r.seq = 0
	}
	r.seq++
	return fmt.Sprintf("%s%04d", prefix, r.seq)
}

// CreateJob registers a new job at Intake. The actor needs the Operations
// create grant.
func (r *JobRegistry) CreateJob(ctx context.Context, actor Principal, clientRef string, priority Priority) (*Job, error) {
	if !actor.Active || !r.roles.Has(actor.Role, Action{ModuleOperations, VerbCreate}) {
		return nil, fmt.Errorf("%w: role %s may not register jobs", ErrForbidden, actor.Role)
	}
	if priority == "" {
		priority = PriorityNormal
	}
	if !priority.IsValid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, priority)
	}

	job := &Job{
		ID:        r.nextJobID(),
		ClientRef: clientRef,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.persist(ctx, job); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.jobs[job.ID] = &jobEntry{job: job}
	r.mu.Unlock()

	r.audit.Record(ctx, newAuditEvent(AuditJobTransition, actor, job.ID, "created", "job registered at intake"))
	return job.Clone(), nil
}

func (r *JobRegistry) entry(jobID string) (*jobEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[jobID]
	return e, ok
}

// ApplyTransition validates and applies one lifecycle edge. The check
// sequence is total: either every rule passes and exactly the resulting
// transitions are appended, or the job is left untouched.
func (r *JobRegistry) ApplyTransition(ctx context.Context, jobID string, target JobState, actor Principal, req TransitionRequest) (JobState, error) {
	e, ok := r.entry(jobID)
	if !ok {
		return "", fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := r.applyLocked(ctx, e, target, actor, req)
	if err != nil {
		r.audit.Record(ctx, newAuditEvent(AuditJobTransition, actor, jobID, "deny",
			fmt.Sprintf("%s → %s: %v", e.job.State(), target, err)))
		return "", err
	}
	return state, nil
}

func (r *JobRegistry) applyLocked(ctx context.Context, e *jobEntry, target JobState, actor Principal, req TransitionRequest) (JobState, error) {
	job := e.job
	if job.State().IsTerminal() {
		return "", fmt.Errorf("%w: job %s", ErrJobFrozen, job.ID)
	}
	if err := validateEdge(r.roles, job, target, actor); err != nil {
		return "", err
	}

	updated := job.Clone()
	now := time.Now().UTC()

	switch target {
	case StateAssigned:
		if req.Technician != nil {
			t := *req.Technician
			updated.AssignedTechnician = &t
		}
		if updated.AssignedTechnician == nil {
			return "", fmt.Errorf("%w: assigning a job requires a technician", ErrInvalidInput)
		}
	case StateResultsSubmitted:
		if req.ResultsRef == "" {
			return "", fmt.Errorf("%w: submitting results requires a results reference", ErrInvalidInput)
		}
		updated.ResultsRef = req.ResultsRef
	}

	updated.History = append(updated.History, Transition{
		From:      job.State(),
		To:        target,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		At:        now,
		Note:      req.Note,
	})

	// Automatic follow-up hops are appended within the same application so
	// no concurrent caller can observe the intermediate state.
	if target == StateResultsSubmitted && r.autoQueueReview {
		updated.History = append(updated.History, Transition{
			From:      StateResultsSubmitted,
			To:        StateUnderReview,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			At:        now,
			Note:      "auto-queued for review",
		})
	}
	if target == StateRejected && !r.requireReassign && updated.AssignedTechnician != nil {
		updated.History = append(updated.History, Transition{
			From:      StateRejected,
			To:        StateAssigned,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			At:        now,
			Note:      "returned to technician for rework",
		})
	}

	if err := r.persist(ctx, updated); err != nil {
		return "", err
	}
	e.job = updated

	for i := len(job.History); i < len(updated.History); i++ {
		t := updated.History[i]
		r.audit.Record(ctx, newAuditEvent(AuditJobTransition, actor, updated.ID, "allow",
			fmt.Sprintf("%s → %s", t.From, t.To)))
	}

	if target == StateRejected {
		r.notifier.JobRejected(ctx, updated.Clone())
	}
	if updated.State() == StateAssigned {
		r.notifier.JobAssigned(ctx, updated.Clone())
	}

	return updated.State(), nil
}

// persist writes through the store, retrying once after a short backoff
// before surfacing ErrPersistence.
func (r *JobRegistry) persist(ctx context.Context, job *Job) error {
	err := r.store.SaveJob(ctx, job)
	if err == nil {
		return nil
	}
	r.log.Warn("job persist failed, retrying once",
		zap.String("job_id", job.ID), zap.Error(err))
	time.Sleep(r.retryBackoff)
	if err = r.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// Get returns a copy of the job. Technicians may only fetch their own
// assignments; every other role needs the Operations view grant.
func (r *JobRegistry) Get(_ context.Context, jobID string, actor Principal) (*Job, error) {
	e, ok := r.entry(jobID)
	if !ok {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}
	e.mu.Lock()
	job := e.job.Clone()
	e.mu.Unlock()

	if !actor.Active || !r.roles.Has(actor.Role, Action{ModuleOperations, VerbView}) {
		return nil, fmt.Errorf("%w: role %s may not view jobs", ErrForbidden, actor.Role)
	}
	if actor.Role == RoleTechnician {
		// Other technicians' jobs are indistinguishable from absent ones,
		// so a technician cannot probe for job IDs outside their worklist.
		if job.AssignedTechnician == nil || *job.AssignedTechnician != actor.ID {
			return nil, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
		}
	}
	return job, nil
}

// ListFor returns the worklist for the principal, newest first. A
// technician sees only jobs assigned to them; viewing roles see all jobs.
func (r *JobRegistry) ListFor(_ context.Context, actor Principal) ([]JobSummary, error) {
	if !actor.Active || !r.roles.Has(actor.Role, Action{ModuleOperations, VerbView}) {
		return nil, fmt.Errorf("%w: role %s may not list jobs", ErrForbidden, actor.Role)
	}

	r.mu.RLock()
	entries := make([]*jobEntry, 0, len(r.jobs))
	for _, e := range r.jobs {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	summaries := make([]JobSummary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		s := e.job.Summary()
		e.mu.Unlock()
		if actor.Role == RoleTechnician {
			if s.AssignedTechnician == nil || *s.AssignedTechnician != actor.ID {
				continue
			}
		}
		summaries = append(summaries, s)
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].ID > summaries[j].ID
		}
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}
