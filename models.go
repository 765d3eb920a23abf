package labcore

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the position a staff member holds at the lab.
type Role string

const (
	RoleDirector    Role = "director"
	RoleLabManager  Role = "lab_manager"
	RoleOfficeStaff Role = "office_staff"
	RoleTechnician  Role = "technician"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleDirector, RoleLabManager, RoleOfficeStaff, RoleTechnician:
		return true
	}
	return false
}

// Module is a top-level functional area of the office platform.
type Module string

const (
	ModuleSales      Module = "sales"
	ModuleOperations Module = "operations"
	ModulePricing    Module = "pricing"
	ModuleFinance    Module = "finance"
	ModuleConfig     Module = "config"
)

// ModuleOrder is the fixed ordering used for navigation. Modules always
// render in this order regardless of how many are visible to a principal.
var ModuleOrder = []Module{ModuleSales, ModuleOperations, ModulePricing, ModuleFinance, ModuleConfig}

// Verb is the unit of permission granularity within a module.
type Verb string

const (
	VerbView    Verb = "view"
	VerbCreate  Verb = "create"
	VerbEdit    Verb = "edit"
	VerbApprove Verb = "approve"
	VerbDelete  Verb = "delete"
	VerbAssign  Verb = "assign"
)

// Action is a (module, verb) pair, the unit of permission checking.
type Action struct {
	Module Module `json:"module"`
	Verb   Verb   `json:"verb"`
}

func (a Action) String() string {
	return string(a.Module) + "." + string(a.Verb)
}

// Principal is an already-authenticated actor. The role claim is set
// upstream at login and is authoritative for the whole request.
type Principal struct {
	ID     uuid.UUID
	Name   string
	Role   Role
	Active bool
}

// JobState is the lifecycle state of a test job.
type JobState string

const (
	StateIntake           JobState = "intake"
	StateAssigned         JobState = "assigned"
	StateInProgress       JobState = "in_progress"
	StateResultsSubmitted JobState = "results_submitted"
	StateUnderReview      JobState = "under_review"
	StateApproved         JobState = "approved"
	StateRejected         JobState = "rejected"
	StateInvoiced         JobState = "invoiced"
)

// IsTerminal reports whether a job in this state accepts further transitions.
func (s JobState) IsTerminal() bool {
	return s == StateInvoiced
}

// Priority mirrors the intake priority assigned when a sample is received.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityUrgent Priority = "urgent"
	PriorityRush   Priority = "rush"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityNormal, PriorityUrgent, PriorityRush:
		return true
	}
	return false
}

// Transition is one applied edge in a job's history. Immutable once appended.
type Transition struct {
	From      JobState
	To        JobState
	ActorID   uuid.UUID
	ActorRole Role
	At        time.Time
	Note      string
}

// Job is a test job progressing through the lab workflow. The current state
// is always derivable from the history; History is append-only.
type Job struct {
	ID                 string
	ClientRef          string
	Priority           Priority
	AssignedTechnician *uuid.UUID
	ResultsRef         string
	CreatedAt          time.Time
	History            []Transition
}

// State returns the job's current state: the last transition's target, or
// the initial Intake state for a job with no history.
func (j *Job) State() JobState {
	if len(j.History) == 0 {
		return StateIntake
	}
	return j.History[len(j.History)-1].To
}

// LastSubmitter returns the actor of the most recent transition into
// ResultsSubmitted, if any. Used for the separation-of-duties check.
func (j *Job) LastSubmitter() (uuid.UUID, bool) {
	for i := len(j.History) - 1; i >= 0; i-- {
		if j.History[i].To == StateResultsSubmitted {
			return j.History[i].ActorID, true
		}
	}
	return uuid.UUID{}, false
}

// Clone returns a deep copy so callers can never mutate registry state.
func (j *Job) Clone() *Job {
	cp := *j
	if j.AssignedTechnician != nil {
		t := *j.AssignedTechnician
		cp.AssignedTechnician = &t
	}
	cp.History = make([]Transition, len(j.History))
	copy(cp.History, j.History)
	return &cp
}

// Summary returns the worklist projection of the job.
func (j *Job) Summary() JobSummary {
	s := JobSummary{
		ID:        j.ID,
		ClientRef: j.ClientRef,
		State:     j.State(),
		Priority:  j.Priority,
		CreatedAt: j.CreatedAt,
	}
	if j.AssignedTechnician != nil {
		t := *j.AssignedTechnician
		s.AssignedTechnician = &t
	}
	return s
}

// JobSummary is the worklist projection of a job.
type JobSummary struct {
	ID                 string     `json:"id"`
	ClientRef          string     `json:"client_ref"`
	State              JobState   `json:"state"`
	Priority           Priority   `json:"priority"`
	AssignedTechnician *uuid.UUID `json:"assigned_technician,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// AuditEventType distinguishes the two classes of audited outcomes.
type AuditEventType string

const (
	AuditPermissionDecision AuditEventType = "permission_decision"
	AuditJobTransition      AuditEventType = "job_transition"
)

// AuditEvent is a write-once record of a permission decision or a job
// transition. The core never mutates or deletes an emitted event.
type AuditEvent struct {
	ID        uuid.UUID
	Type      AuditEventType
	ActorID   uuid.UUID
	ActorRole Role
	Subject   string
	Outcome   string
	Reason    string
	At        time.Time
}
