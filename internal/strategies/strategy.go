// Package strategies implements the dispatch strategies used by the
// orchestrator.
//
// Available strategies:
//   - Race:       invokes a fixed set of models concurrently; first success wins.
//   - Sequential: walks a pool in order, stopping at the first success.
//
// Both strategies report every invocation outcome to a Recorder exactly once.
package strategies

import (
	"context"
	"errors"

	"github.com/aiia-labs/orchestrator/internal/invoker"
	"github.com/aiia-labs/orchestrator/models"
)

// ErrEmptyPool is returned when a strategy is executed with no models.
var ErrEmptyPool = errors.New("no models to dispatch to")

// Strategy dispatches a prompt over a pool of models.
type Strategy interface {
	Execute(ctx context.Context, pool []models.Model, prompt string) (invoker.Result, error)
}

// Recorder receives the outcome of every invocation.
type Recorder interface {
	RecordSuccess(id string, latencyMs float64)
	RecordFailure(id string, err error)
}

func record(rec Recorder, m models.Model, res invoker.Result, err error) {
	if rec == nil {
		return
	}
	if err != nil {
		rec.RecordFailure(m.ID, err)
		return
	}
	rec.RecordSuccess(m.ID, float64(res.Latency.Milliseconds()))
}
