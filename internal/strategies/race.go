package strategies

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/aiia-labs/orchestrator/internal/invoker"
	"github.com/aiia-labs/orchestrator/internal/logging"
	"github.com/aiia-labs/orchestrator/models"
)

// Race invokes every model in the pool concurrently and returns the first
// success. Losing invocations are not cancelled; they run to completion in
// the background and still report to the Recorder.
type Race struct {
	invoker  invoker.Invoker
	recorder Recorder
}

// NewRace creates a race strategy.
func NewRace(inv invoker.Invoker, rec Recorder) *Race {
	return &Race{invoker: inv, recorder: rec}
}

type raceOutcome struct {
	res invoker.Result
	err error
}

// Execute races pool. When every racer fails the returned error joins the
// individual failures.
func (r *Race) Execute(ctx context.Context, pool []models.Model, prompt string) (invoker.Result, error) {
	if len(pool) == 0 {
		return invoker.Result{}, ErrEmptyPool
	}

	// Racers outlive the caller once a winner is picked, so they must not
	// inherit its cancellation. Values such as the trace id are kept.
	bg := context.WithoutCancel(ctx)
	var decided atomic.Bool
	outcomes := make(chan raceOutcome, len(pool))

	for _, m := range pool {
		go func(m models.Model) {
			res, err := r.invoker.Invoke(bg, m, prompt)
			record(r.recorder, m, res, err)
			if err == nil && !decided.CompareAndSwap(false, true) {
				logging.FromContext(bg).Debug("race loser finished", "model", m.ID, "latency_ms", res.LatencyMs())
				return
			}
			outcomes <- raceOutcome{res: res, err: err}
		}(m)
	}

	var errs []error
	for range pool {
		select {
		case <-ctx.Done():
			return invoker.Result{}, ctx.Err()
		case o := <-outcomes:
			if o.err == nil {
				return o.res, nil
			}
			errs = append(errs, o.err)
			if len(errs) == len(pool) {
				return invoker.Result{}, fmt.Errorf("race failed: %w", errors.Join(errs...))
			}
		}
	}
	return invoker.Result{}, fmt.Errorf("race failed: %w", errors.Join(errs...))
}
