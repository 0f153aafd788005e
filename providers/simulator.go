package providers

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Simulated latency bounds.
const (
	SimulatedMinDelay = 200 * time.Millisecond
	SimulatedMaxDelay = 1200 * time.Millisecond
)

// Simulator stands in for any backend without live credentials. It answers
// every model with a canned response after a randomized delay.
type Simulator struct {
	delay func() time.Duration
}

// NewSimulator returns a Simulator with a uniform delay in
// [SimulatedMinDelay, SimulatedMaxDelay).
func NewSimulator() *Simulator {
	return &Simulator{delay: RandomDelay}
}

// NewSimulatorWithDelay returns a Simulator whose delay is chosen by delay.
func NewSimulatorWithDelay(delay func() time.Duration) *Simulator {
	if delay == nil {
		delay = RandomDelay
	}
	return &Simulator{delay: delay}
}

// FixedDelay returns a delay function that always yields d.
func FixedDelay(d time.Duration) func() time.Duration {
	return func() time.Duration { return d }
}

// RandomDelay draws a delay uniformly from the simulated latency bounds.
func RandomDelay() time.Duration {
	span := int64(SimulatedMaxDelay - SimulatedMinDelay)
	return SimulatedMinDelay + time.Duration(rand.Int64N(span))
}

// Name returns the provider identifier.
func (s *Simulator) Name() string { return "simulator" }

// SupportsModel accepts every model.
func (s *Simulator) SupportsModel(string) bool { return true }

// Complete waits for the simulated delay and echoes the prompt.
func (s *Simulator) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	timer := time.NewTimer(s.delay())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	_, turns := req.systemAndTurns()
	prompt := ""
	if len(turns) > 0 {
		prompt = turns[len(turns)-1].Content
	}
	return &Response{
		ID:           "sim-" + req.Model,
		Model:        req.Model,
		Provider:     s.Name(),
		Content:      fmt.Sprintf("[Simulated %s] Response to: %s", req.Model, prompt),
		FinishReason: "stop",
	}, nil
}
