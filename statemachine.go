package labcore

import "fmt"

// edgeRule is the actor constraint attached to one edge of the transition
// table. Rules compose: every set field must hold for the edge to apply.
type edgeRule struct {
	// roles allowed to drive the edge; empty means no role restriction.
	roles []Role
	// assignedTechOnly requires the actor to be the job's assigned technician.
	assignedTechOnly bool
	// separationOfDuties forbids the actor who submitted the results.
	separationOfDuties bool
	// financeCapable requires the actor's role to hold (finance, create).
	financeCapable bool
}

// transitionTable is the complete edge list of the job lifecycle:
//
//	intake → assigned → in_progress → results_submitted → under_review
//	under_review → approved → invoiced
//	under_review → rejected → assigned
//
// Invoiced is terminal; the registry freezes the job before consulting the
// table, so the state needs no entry here.
var transitionTable = map[JobState]map[JobState]edgeRule{
	StateIntake: {
		StateAssigned: {roles: []Role{RoleLabManager, RoleDirector}},
	},
	StateAssigned: {
		StateInProgress: {assignedTechOnly: true},
	},
	StateInProgress: {
		StateResultsSubmitted: {assignedTechOnly: true},
	},
	StateResultsSubmitted: {
		StateUnderReview: {roles: []Role{RoleLabManager, RoleDirector}},
	},
	StateUnderReview: {
		StateApproved: {roles: []Role{RoleLabManager, RoleDirector}, separationOfDuties: true},
		StateRejected: {roles: []Role{RoleLabManager, RoleDirector}},
	},
	StateApproved: {
		StateInvoiced: {financeCapable: true},
	},
	StateRejected: {
		StateAssigned: {roles: []Role{RoleLabManager, RoleDirector}},
	},
}

// CanTransition reports whether the edge exists in the lifecycle table,
// ignoring actor constraints.
func CanTransition(from, to JobState) bool {
	_, ok := transitionTable[from][to]
	return ok
}

// validateEdge checks the edge and its actor rule against the job. It
// returns nil only if the full rule set passes.
func validateEdge(roles *RoleRegistry, job *Job, target JobState, actor Principal) error {
	current := job.State()
	rule, ok := transitionTable[current][target]
	if !ok {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current, target)
	}

	if !actor.Active {
		return fmt.Errorf("%w: principal is inactive", ErrForbidden)
	}

	if len(rule.roles) > 0 {
		allowed := false
		for _, r := range rule.roles {
			if actor.Role == r {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: role %s may not apply %s → %s", ErrForbidden, actor.Role, current, target)
		}
	}

	if rule.assignedTechOnly {
		if job.AssignedTechnician == nil || *job.AssignedTechnician != actor.ID {
			return fmt.Errorf("%w: only the assigned technician may apply %s → %s", ErrForbidden, current, target)
		}
	}

	if rule.separationOfDuties {
		if submitter, ok := job.LastSubmitter(); ok && submitter == actor.ID {
			return fmt.Errorf("%w: job %s", ErrSeparationOfDuties, job.ID)
		}
	}

	if rule.financeCapable {
		if !roles.Has(actor.Role, Action{ModuleFinance, VerbCreate}) {
			return fmt.Errorf("%w: role %s is not finance-capable", ErrForbidden, actor.Role)
		}
	}

	return nil
}
