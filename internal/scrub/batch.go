package scrub

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// BatchItem is the outcome for one claim in a batch run.
type BatchItem struct {
	Index  int    `json:"index"`
	Result Result `json:"result"`
	// Error is set when evaluation of this claim failed outright. Siblings
	// are unaffected.
	Error string `json:"error,omitempty"`
}

// BatchResult aggregates a batch run. Summary is the element-wise sum of the
// per-claim summaries.
type BatchResult struct {
	Results []BatchItem `json:"results"`
	Summary Summary     `json:"summary"`
	Failed  int         `json:"failed"`
}

// ScrubBatch evaluates each claim independently, fanning out across at most
// workers goroutines. Rule evaluation shares no state between claims, so the
// only synchronized step is the summary reduction. One claim's failure is
// recorded on its item and never aborts the batch; ctx cancellation stops
// scheduling of remaining claims.
func (e *Engine) ScrubBatch(ctx context.Context, claims []Claim, opts Options, workers int) BatchResult {
	if workers <= 0 {
		workers = 1
	}
	out := BatchResult{Results: make([]BatchItem, len(claims))}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, claim := range claims {
		if ctx.Err() != nil {
			mu.Lock()
			out.Results[i] = BatchItem{Index: i, Error: ctx.Err().Error()}
			out.Failed++
			mu.Unlock()
			continue
		}
		i, claim := i, claim
		g.Go(func() error {
			item := e.scrubOne(i, claim, opts)
			mu.Lock()
			out.Results[i] = item
			if item.Error != "" {
				out.Failed++
			} else {
				out.Summary.Add(item.Result.Summary)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// scrubOne isolates a single claim's evaluation, converting any panic that
// escapes the per-rule guards into a recorded failure.
func (e *Engine) scrubOne(index int, claim Claim, opts Options) (item BatchItem) {
	item.Index = index
	defer func() {
		if r := recover(); r != nil {
			item.Error = fmt.Sprintf("scrub failed: %v", r)
		}
	}()
	item.Result = e.Scrub(claim, opts)
	return item
}
