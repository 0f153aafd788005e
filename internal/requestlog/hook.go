package requestlog

import (
	"context"
	"strings"
	"time"

	"github.com/aiia-labs/orchestrator/internal/logging"
)

// writeTimeout bounds a single hook write. Hooks run after the request may
// have finished, so they do not use the request deadline.
const writeTimeout = 5 * time.Second

// Hook adapts w to the orchestrator's event hook signature. Subjects ending
// in ".succeeded" or ".failed" are written; others are ignored. Write errors
// are logged and dropped.
func Hook(w Writer) func(ctx context.Context, subject string, data map[string]interface{}) {
	return func(ctx context.Context, subject string, data map[string]interface{}) {
		var outcome string
		switch {
		case strings.HasSuffix(subject, "."+OutcomeSucceeded):
			outcome = OutcomeSucceeded
		case strings.HasSuffix(subject, "."+OutcomeFailed):
			outcome = OutcomeFailed
		default:
			return
		}

		e := Entry{
			Outcome:      outcome,
			TraceID:      str(data["trace_id"]),
			Model:        str(data["model"]),
			Provider:     str(data["provider"]),
			Mode:         str(data["mode"]),
			ErrorMessage: str(data["error"]),
			Simulated:    data["simulated"] == true,
			Degraded:     data["degraded"] == true,
		}
		if v, ok := data["latency_ms"].(int64); ok {
			e.LatencyMs = v
		}

		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()
		if err := w.Write(wctx, e); err != nil {
			logging.FromContext(ctx).Warn("completion log write failed", "error", err)
		}
	}
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
