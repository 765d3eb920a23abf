package labcore

import "fmt"

// RoleRegistry is the static catalog of roles and the actions each role is
// granted. It is built once at startup and immutable thereafter; changing
// the table is a deployment, not a runtime API.
type RoleRegistry struct {
	grants map[Role]map[Action]struct{}
}

// defaultGrants is the shipped grant table. Grant sets are stored flat per
// role, duplicating shared subsets rather than chaining inheritance.
func defaultGrants() map[Role][]Action {
	allVerbs := []Verb{VerbView, VerbCreate, VerbEdit, VerbApprove, VerbDelete, VerbAssign}

	var director []Action
	for _, m := range ModuleOrder {
		for _, v := range allVerbs {
			director = append(director, Action{m, v})
		}
	}

	return map[Role][]Action{
		RoleDirector: director,
		RoleLabManager: {
			{ModuleSales, VerbView}, {ModuleSales, VerbCreate}, {ModuleSales, VerbEdit},
			{ModuleOperations, VerbView}, {ModuleOperations, VerbCreate}, {ModuleOperations, VerbEdit},
			{ModuleOperations, VerbApprove}, {ModuleOperations, VerbAssign}, {ModuleOperations, VerbDelete},
			{ModulePricing, VerbView}, {ModulePricing, VerbCreate}, {ModulePricing, VerbEdit},
			{ModuleFinance, VerbView},
		},
		RoleOfficeStaff: {
			{ModuleSales, VerbView}, {ModuleSales, VerbCreate}, {ModuleSales, VerbEdit},
			{ModuleOperations, VerbView}, {ModuleOperations, VerbCreate},
			{ModuleFinance, VerbView}, {ModuleFinance, VerbCreate}, {ModuleFinance, VerbEdit},
		},
		RoleTechnician: {
			{ModuleOperations, VerbView}, {ModuleOperations, VerbEdit},
		},
	}
}

// NewRoleRegistry builds the registry from the shipped grant table.
func NewRoleRegistry() (*RoleRegistry, error) {
	return newRoleRegistry(defaultGrants())
}

func newRoleRegistry(table map[Role][]Action) (*RoleRegistry, error) {
	r := &RoleRegistry{grants: make(map[Role]map[Action]struct{}, len(table))}
	for role, actions := range table {
		if !role.IsValid() {
			return nil, fmt.Errorf("%w: unknown role %q", ErrConfiguration, role)
		}
		set := make(map[Action]struct{}, len(actions))
		for _, a := range actions {
			set[a] = struct{}{}
		}
		r.grants[role] = set
	}

	for _, role := range []Role{RoleDirector, RoleLabManager, RoleOfficeStaff, RoleTechnician} {
		if _, ok := r.grants[role]; !ok {
			return nil, fmt.Errorf("%w: role %q has no grant set", ErrConfiguration, role)
		}
	}

	// Director must hold every action any other role holds.
	director := r.grants[RoleDirector]
	for role, set := range r.grants {
		if role == RoleDirector {
			continue
		}
		for a := range set {
			if _, ok := director[a]; !ok {
				return nil, fmt.Errorf("%w: director grant set missing %s held by %s", ErrConfiguration, a, role)
			}
		}
	}

	return r, nil
}

// GrantsFor returns the actions granted to a role. The role enum is closed,
// so an unknown role is a configuration fault, not a caller error.
func (r *RoleRegistry) GrantsFor(role Role) ([]Action, error) {
	set, ok := r.grants[role]
	if !ok {
		return nil, fmt.Errorf("%w: no grant set for role %q", ErrConfiguration, role)
	}
	actions := make([]Action, 0, len(set))
	for a := range set {
		actions = append(actions, a)
	}
	return actions, nil
}

// Has reports whether the role is granted the action. Unknown roles deny.
func (r *RoleRegistry) Has(role Role, action Action) bool {
	set, ok := r.grants[role]
	if !ok {
		return false
	}
	_, ok = set[action]
	return ok
}
