package directive

import (
	"context"
	"fmt"
	"iter"
	"regexp"
	"sort"
	"sync"

	eventbus "github.com/hanpama/cardgraph/internal/eventbus"
	events "github.com/hanpama/cardgraph/internal/events"
)

// State is the lifecycle state of a Registry.
type State int

const (
	Building State = iota
	Sealed
)

func (s State) String() string {
	switch s {
	case Building:
		return "building"
	case Sealed:
		return "sealed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var namePattern = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)

// Registry is the authoritative set of named directives. The zero value is
// an empty registry in the Building state.
type Registry struct {
	mu       sync.RWMutex
	state    State
	bindings map[string]Binding
}

// NewRegistry returns an empty registry in the Building state.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]Binding)}
}

// Register adds b to the registry.
//
// It fails with ErrInvalidBinding if the name is not a GraphQL name or the
// wiring is nil, with *RegistryClosedError once the registry is sealed, and
// with *DuplicateDirectiveError if the name is taken. A failed call leaves the
// registry unchanged.
func (r *Registry) Register(b Binding) error {
	if !namePattern.MatchString(b.Name) {
		return fmt.Errorf("%w: name %q", ErrInvalidBinding, b.Name)
	}
	if b.Wiring == nil {
		return fmt.Errorf("%w: @%s has no wiring", ErrInvalidBinding, b.Name)
	}

	r.mu.Lock()
	if r.state == Sealed {
		r.mu.Unlock()
		return &RegistryClosedError{Name: b.Name}
	}
	if _, ok := r.bindings[b.Name]; ok {
		r.mu.Unlock()
		return &DuplicateDirectiveError{Name: b.Name}
	}
	if r.bindings == nil {
		r.bindings = make(map[string]Binding)
	}
	r.bindings[b.Name] = b
	r.mu.Unlock()

	eventbus.Publish(context.Background(), events.DirectiveRegistered{Name: b.Name})
	return nil
}

// MustRegister registers every binding and panics on the first failure.
func (r *Registry) MustRegister(bs ...Binding) {
	for _, b := range bs {
		if err := r.Register(b); err != nil {
			panic(err)
		}
	}
}

// Resolve returns the binding registered under name. The wiring is shared,
// not copied.
func (r *Registry) Resolve(name string) (Binding, error) {
	r.mu.RLock()
	b, ok := r.bindings[name]
	r.mu.RUnlock()
	if !ok {
		return Binding{}, &UnknownDirectiveError{Name: name}
	}
	return b, nil
}

// All yields every registered binding ordered by name. Each iteration takes a
// fresh snapshot, so the sequence can be ranged over any number of times.
func (r *Registry) All() iter.Seq[Binding] {
	return func(yield func(Binding) bool) {
		for _, b := range r.snapshot() {
			if !yield(b) {
				return
			}
		}
	}
}

func (r *Registry) snapshot() []Binding {
	r.mu.RLock()
	out := make([]Binding, 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, b)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered names in lexicographic order.
func (r *Registry) Names() []string {
	bs := r.snapshot()
	names := make([]string, len(bs))
	for i, b := range bs {
		names[i] = b.Name
	}
	return names
}

// Len reports the number of registered bindings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}

// Seal ends the registration phase. Calling it again has no effect.
func (r *Registry) Seal() {
	r.mu.Lock()
	if r.state == Sealed {
		r.mu.Unlock()
		return
	}
	r.state = Sealed
	n := len(r.bindings)
	r.mu.Unlock()

	eventbus.Publish(context.Background(), events.RegistrySealed{Directives: n})
}

// State reports the current lifecycle state.
func (r *Registry) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}
