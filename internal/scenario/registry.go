package scenario

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
)

var (
	// ErrRegistryClosed is returned when registering after Close.
	ErrRegistryClosed = errors.New("scenario registry is closed")
	// ErrDuplicateScenario is returned for a name registered twice.
	ErrDuplicateScenario = errors.New("duplicate scenario")
	// ErrInvalidWeight is returned for a non-positive or non-finite weight.
	ErrInvalidWeight = errors.New("scenario weight must be positive")
	// ErrNoScenarios is returned when closing an empty registry.
	ErrNoScenarios = errors.New("no scenarios registered")
)

// Registry collects scenarios until Close freezes them into a Sampler.
type Registry struct {
	mu        sync.Mutex
	scenarios []*Scenario
	names     map[string]struct{}
	closed    bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register adds a scenario. Registration order breaks selection ties.
func (r *Registry) Register(name string, weight float64, action Action, policy Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if name == "" {
		return errors.New("scenario name is required")
	}
	if _, ok := r.names[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateScenario, name)
	}
	if !(weight > 0) || math.IsInf(weight, 0) {
		return fmt.Errorf("%w: %s has weight %v", ErrInvalidWeight, name, weight)
	}
	if action == nil {
		return fmt.Errorf("scenario %s has no action", name)
	}

	r.names[name] = struct{}{}
	r.scenarios = append(r.scenarios, &Scenario{
		Name:   name,
		Weight: weight,
		Action: action,
		Policy: policy,
	})
	return nil
}

// Len returns the number of registered scenarios.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scenarios)
}

// Close ends registration and builds the sampler. Calling Close again
// returns a sampler over the same scenarios.
func (r *Registry) Close() (*Sampler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.scenarios) == 0 {
		return nil, ErrNoScenarios
	}
	r.closed = true

	return newSampler(r.scenarios), nil
}

// Sampler picks scenarios with probability proportional to their weight.
// It is immutable and safe for concurrent use; randomness comes from the
// caller.
type Sampler struct {
	scenarios  []*Scenario
	cumulative []float64
	total      float64
}

func newSampler(scenarios []*Scenario) *Sampler {
	s := &Sampler{
		scenarios:  make([]*Scenario, len(scenarios)),
		cumulative: make([]float64, len(scenarios)),
	}
	copy(s.scenarios, scenarios)

	for i, sc := range s.scenarios {
		s.total += sc.Weight
		s.cumulative[i] = s.total
	}
	return s
}

// Pick draws r in [0, total) and returns the first scenario whose
// cumulative weight exceeds r.
func (s *Sampler) Pick(rng *rand.Rand) *Scenario {
	r := rng.Float64() * s.total
	idx := sort.Search(len(s.cumulative), func(i int) bool {
		return s.cumulative[i] > r
	})
	if idx == len(s.cumulative) {
		idx--
	}
	return s.scenarios[idx]
}

// Scenarios returns the scenarios in registration order.
func (s *Sampler) Scenarios() []*Scenario {
	out := make([]*Scenario, len(s.scenarios))
	copy(out, s.scenarios)
	return out
}

// TotalWeight returns the sum of all weights.
func (s *Sampler) TotalWeight() float64 {
	return s.total
}

// Share returns the selection probability of the named scenario.
func (s *Sampler) Share(name string) float64 {
	for _, sc := range s.scenarios {
		if sc.Name == name {
			return sc.Weight / s.total
		}
	}
	return 0
}
