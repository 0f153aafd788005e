// Package models provides the model registry: the static, ordered list of
// backends the orchestrator may dispatch a completion to.
//
// The registry is built once at startup and never mutated afterwards. Order
// matters: it is the tie-break when two models score the same, and it is the
// walk order of the full-pool rescue pass.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// Provider identifies the vendor family that serves a model.
type Provider string

// Provider constants for the backends the orchestrator knows how to call.
const (
	ProviderGoogle    Provider = "google"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Valid reports whether p is one of the known provider identifiers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGoogle, ProviderOpenAI, ProviderAnthropic:
		return true
	default:
		return false
	}
}

// Model is a single callable backend. Identity is ID.
type Model struct {
	ID       string   `json:"id" yaml:"id"`
	Provider Provider `json:"provider" yaml:"provider"`
	Priority int      `json:"priority" yaml:"priority"`
	Weight   float64  `json:"weight" yaml:"weight"`
}

// Defaults returns the built-in registry, highest base weight first.
func Defaults() []Model {
	return []Model{
		{ID: "gemini-2.0-flash", Provider: ProviderGoogle, Priority: 1, Weight: 1.0},
		{ID: "gemini-1.5-flash", Provider: ProviderGoogle, Priority: 2, Weight: 0.9},
		{ID: "gemini-1.5-pro", Provider: ProviderGoogle, Priority: 3, Weight: 0.85},
		{ID: "gpt-4o", Provider: ProviderOpenAI, Priority: 4, Weight: 0.8},
		{ID: "claude-3-5-sonnet", Provider: ProviderAnthropic, Priority: 5, Weight: 0.75},
	}
}

// ErrEmptyRegistry is returned when a registry is built with no models.
var ErrEmptyRegistry = errors.New("model registry is empty")

// Registry is an immutable ordered set of models.
type Registry struct {
	models []Model
	index  map[string]int
}

// NewRegistry validates ms and returns a registry preserving their order.
func NewRegistry(ms []Model) (*Registry, error) {
	if len(ms) == 0 {
		return nil, ErrEmptyRegistry
	}
	r := &Registry{
		models: make([]Model, 0, len(ms)),
		index:  make(map[string]int, len(ms)),
	}
	for i, m := range ms {
		m.ID = strings.TrimSpace(m.ID)
		if err := Validate(m); err != nil {
			return nil, fmt.Errorf("model %d: %w", i, err)
		}
		if _, dup := r.index[m.ID]; dup {
			return nil, fmt.Errorf("model %d: duplicate id %q", i, m.ID)
		}
		r.index[m.ID] = len(r.models)
		r.models = append(r.models, m)
	}
	return r, nil
}

// MustDefault returns a registry over Defaults. It panics only if the
// built-in table is malformed.
func MustDefault() *Registry {
	r, err := NewRegistry(Defaults())
	if err != nil {
		panic(err)
	}
	return r
}

// Validate checks a single model definition.
func Validate(m Model) error {
	if m.ID == "" {
		return errors.New("id is required")
	}
	if !m.Provider.Valid() {
		return fmt.Errorf("unknown provider %q for %s", m.Provider, m.ID)
	}
	if m.Weight < 0 {
		return fmt.Errorf("model %s has negative weight", m.ID)
	}
	return nil
}

// All returns a copy of the models in registry order.
func (r *Registry) All() []Model {
	out := make([]Model, len(r.models))
	copy(out, r.models)
	return out
}

// Len returns the number of registered models.
func (r *Registry) Len() int { return len(r.models) }

// Get returns the model with the given id.
func (r *Registry) Get(id string) (Model, bool) {
	i, ok := r.index[id]
	if !ok {
		return Model{}, false
	}
	return r.models[i], true
}

// Position returns the registry index of id, or -1.
func (r *Registry) Position(id string) int {
	i, ok := r.index[id]
	if !ok {
		return -1
	}
	return i
}

// Providers returns the distinct providers in first-seen order.
func (r *Registry) Providers() []Provider {
	seen := make(map[Provider]struct{})
	var out []Provider
	for _, m := range r.models {
		if _, ok := seen[m.Provider]; ok {
			continue
		}
		seen[m.Provider] = struct{}{}
		out = append(out, m.Provider)
	}
	return out
}
