package pipeline

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrStageAlreadyRegistered is returned when registering a duplicate stage.
	ErrStageAlreadyRegistered = errors.New("stage already registered")

	// ErrStageNotFound is returned for an unknown stage or dependency.
	ErrStageNotFound = errors.New("stage not found")

	// ErrDependencyCycle is returned when stage dependencies form a cycle.
	ErrDependencyCycle = errors.New("dependency cycle detected")
)

// Registry holds the stages a worker process can run.
type Registry struct {
	mu     sync.RWMutex
	stages map[string]Stage
	order  []string // registration order
}

// NewRegistry creates an empty stage registry.
func NewRegistry() *Registry {
	return &Registry{
		stages: make(map[string]Stage),
	}
}

// Register adds a stage. Names must be unique.
func (r *Registry) Register(s Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.stages[name]; exists {
		return fmt.Errorf("%w: %s", ErrStageAlreadyRegistered, name)
	}
	r.stages[name] = s
	r.order = append(r.order, name)
	return nil
}

// Get returns a stage by name.
func (r *Registry) Get(name string) (Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stages[name]
	return s, ok
}

// Names returns stage names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Select returns the named stages in dependency order. No names selects
// every stage.
func (r *Registry) Select(names ...string) ([]Stage, error) {
	ordered, err := r.GetOrdered()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return ordered, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := r.Get(n); !ok {
			return nil, fmt.Errorf("%w: %s", ErrStageNotFound, n)
		}
		want[n] = true
	}
	out := make([]Stage, 0, len(want))
	for _, s := range ordered {
		if want[s.Name()] {
			out = append(out, s)
		}
	}
	return out, nil
}

// GetOrdered returns stages sorted so that every stage follows its
// dependencies. Ties keep registration order.
func (r *Registry) GetOrdered() ([]Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inDegree := make(map[string]int, len(r.order))
	for _, name := range r.order {
		inDegree[name] = 0
	}
	for _, name := range r.order {
		for _, dep := range r.stages[name].Dependencies() {
			if _, ok := r.stages[dep]; !ok {
				return nil, fmt.Errorf("%w: stage %q depends on %q", ErrStageNotFound, name, dep)
			}
			inDegree[name]++
		}
	}

	// Kahn's algorithm
	var ready []string
	for _, name := range r.order {
		if inDegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	var ordered []Stage
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		ordered = append(ordered, r.stages[name])

		for _, next := range r.order {
			for _, dep := range r.stages[next].Dependencies() {
				if dep == name {
					inDegree[next]--
					if inDegree[next] == 0 {
						ready = append(ready, next)
					}
				}
			}
		}
	}

	if len(ordered) != len(r.stages) {
		return nil, ErrDependencyCycle
	}
	return ordered, nil
}

// Validate checks that dependencies exist and do not form a cycle.
func (r *Registry) Validate() error {
	_, err := r.GetOrdered()
	return err
}
