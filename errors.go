package orchestrator

import (
	"errors"

	"github.com/aiia-labs/orchestrator/internal/invoker"
)

var (
	// ErrInvalidInput is returned for blank prompts and other malformed
	// requests. Nothing is dispatched.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPoolExhausted is returned when every model in every pass failed.
	ErrPoolExhausted = errors.New("AIIA: global exhaustion, all models failed")
)

// InvocationError describes a single backend failure. It is logged and fed
// to the health tracker but never returned from GetCompletion.
type InvocationError = invoker.Error
