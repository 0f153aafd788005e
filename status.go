package orchestrator

import "github.com/aiia-labs/orchestrator/models"

// Overall backend modes reported by Status.
const (
	StatusLive       = "live"
	StatusPartial    = "partial"
	StatusSimulation = "simulation"
)

// ProviderStatus reports whether one vendor family has a live backend.
type ProviderStatus struct {
	Provider models.Provider `json:"provider"`
	Live     bool            `json:"live"`
	Backend  string          `json:"backend"`
}

// Status summarises which providers are live and which are simulated.
type Status struct {
	Mode      string           `json:"mode"`
	Providers []ProviderStatus `json:"providers"`
	Message   string           `json:"message"`
}

// Status reports live versus simulated backends for every provider that has
// at least one registered model.
func (o *Orchestrator) Status() Status {
	var s Status
	live := 0
	for _, family := range o.registry.Providers() {
		ps := ProviderStatus{Provider: family, Backend: "simulator"}
		if p, ok := o.live.Get(family); ok {
			ps.Live = true
			ps.Backend = p.Name()
			live++
		}
		s.Providers = append(s.Providers, ps)
	}

	switch {
	case live == 0:
		s.Mode = StatusSimulation
		s.Message = "No provider credentials configured; all responses are simulated."
	case live < len(s.Providers):
		s.Mode = StatusPartial
		s.Message = "Some providers are simulated."
	default:
		s.Mode = StatusLive
		s.Message = "All providers are live."
	}
	return s
}
