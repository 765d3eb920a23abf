package labcore

import "context"

// VisibleModules returns the modules the principal may see, in the fixed
// ModuleOrder. A module is visible iff its view action is allowed. Results
// are recomputed per call so a redeployed grant table takes effect at once;
// nothing is cached across requests here.
func (r *Resolver) VisibleModules(ctx context.Context, p Principal) []Module {
	visible := make([]Module, 0, len(ModuleOrder))
	for _, m := range ModuleOrder {
		if r.Decide(ctx, p, Action{Module: m, Verb: VerbView}, nil).Allowed {
			visible = append(visible, m)
		}
	}
	return visible
}
