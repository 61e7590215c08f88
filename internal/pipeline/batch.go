package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DecideBatch decides every request. Different sessions run in parallel (up
// to BatchParallelism); requests for the same session run in submission
// order. Results are index-aligned with reqs.
func (o *Orchestrator) DecideBatch(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))

	var order []string
	bySession := make(map[string][]int)
	for i, r := range reqs {
		if _, ok := bySession[r.SessionID]; !ok {
			order = append(order, r.SessionID)
		}
		bySession[r.SessionID] = append(bySession[r.SessionID], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	limit := o.config.BatchParallelism
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, sid := range order {
		idxs := bySession[sid]
		g.Go(func() error {
			for _, i := range idxs {
				r := reqs[i]
				d, err := o.Decide(gctx, r.SessionID, r.FormID, r.Events, r.Context)
				results[i] = Result{Decision: d, Err: err}
			}
			return nil
		})
	}
	_ = g.Wait() // per-request errors live in results

	return results
}
