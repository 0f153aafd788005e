package strategies

import (
	"context"
	"errors"
	"fmt"

	"github.com/aiia-labs/orchestrator/internal/invoker"
	"github.com/aiia-labs/orchestrator/internal/logging"
	"github.com/aiia-labs/orchestrator/models"
)

// Sequential tries each model in order, moving to the next on failure.
type Sequential struct {
	invoker  invoker.Invoker
	recorder Recorder
}

// NewSequential creates a sequential fallback strategy.
func NewSequential(inv invoker.Invoker, rec Recorder) *Sequential {
	return &Sequential{invoker: inv, recorder: rec}
}

// Execute returns the first successful result in pool order. A failure
// caused by ctx ending is returned as ctx.Err() and not recorded.
func (s *Sequential) Execute(ctx context.Context, pool []models.Model, prompt string) (invoker.Result, error) {
	if len(pool) == 0 {
		return invoker.Result{}, ErrEmptyPool
	}

	var errs []error
	for _, m := range pool {
		if err := ctx.Err(); err != nil {
			return invoker.Result{}, err
		}
		res, err := s.invoker.Invoke(ctx, m, prompt)
		if err != nil && ctx.Err() != nil {
			// The caller gave up; the model is not at fault.
			return invoker.Result{}, ctx.Err()
		}
		record(s.recorder, m, res, err)
		if err == nil {
			return res, nil
		}
		logging.FromContext(ctx).Warn("model failed", "model", m.ID, "error", err)
		errs = append(errs, err)
	}
	return invoker.Result{}, fmt.Errorf("all models failed: %w", errors.Join(errs...))
}
