package labcore

import (
	"context"
	"sync"
)

// BulkCheck is one (principal, action) pair in a bulk permission query.
// Page renders ask for many action decisions at once, e.g. to decide which
// buttons a worklist row shows.
type BulkCheck struct {
	Principal Principal
	Action    Action
	Context   *DecisionContext
}

// BulkResult pairs a check with its decision, preserving input order.
type BulkResult struct {
	Check    BulkCheck
	Decision Decision
}

// DecideBulk evaluates many checks concurrently through a small worker
// pool. Results are returned in input order.
func (r *Resolver) DecideBulk(ctx context.Context, checks []BulkCheck) []BulkResult {
	results := make([]BulkResult, len(checks))
	if len(checks) == 0 {
		return results
	}

	workerCount := 10
	if len(checks) < workerCount {
		workerCount = len(checks)
	}

	jobs := make(chan int, len(checks))
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				check := checks[idx]
				results[idx] = BulkResult{
					Check:    check,
					Decision: r.Decide(ctx, check.Principal, check.Action, check.Context),
				}
			}
		}()
	}
	for i := range checks {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}
