package technique

import (
	"errors"
	"fmt"
	"sync"

	"gotraverse/nat"

	"github.com/rs/zerolog/log"
)

var (
	ErrDuplicateTechnique = errors.New("technique already registered")
	ErrRegistrySealed     = errors.New("registry already in use, can not register more techniques")
)

// RuleSet is what one technique contributes to the decision table.
type RuleSet struct {
	Technique  Technique
	Situations []nat.Situation
}

// Registry is the catalog of techniques, in registration order.
// It is filled once, then sealed by the first read. After that it never changes, so any number of
// goroutines can read it.
type Registry struct {
	lock   sync.RWMutex
	sealed bool
	order  []Technique
	byName map[string]Technique
}

// NewRegistry registers ts in order. The registry is not sealed yet, more techniques can be added.
func NewRegistry(ts ...Technique) (*Registry, error) {
	r := &Registry{byName: make(map[string]Technique)}
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(t Technique) error {
	meta := t.Metadata()
	if err := meta.Validate(); err != nil {
		return err
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	if r.sealed {
		return fmt.Errorf("%s: %w", meta.Name, ErrRegistrySealed)
	}
	if _, ok := r.byName[meta.Name]; ok {
		return fmt.Errorf("%s: %w", meta.Name, ErrDuplicateTechnique)
	}
	r.byName[meta.Name] = t
	r.order = append(r.order, t)
	log.Debug().Msgf("Registered technique %s", meta)
	return nil
}

// Seal stops further registration. Reads call it implicitly.
func (r *Registry) Seal() {
	r.lock.Lock()
	r.sealed = true
	r.lock.Unlock()
}

func (r *Registry) Sealed() bool {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.sealed
}

// read seals the registry on first use and returns a lock held for reading.
func (r *Registry) read() func() {
	r.lock.RLock()
	if !r.sealed {
		r.lock.RUnlock()
		r.Seal()
		r.lock.RLock()
	}
	return r.lock.RUnlock
}

// Techniques returns every technique in registration order. The slice is a copy.
func (r *Registry) Techniques() []Technique {
	defer r.read()()
	out := make([]Technique, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Lookup(name string) (Technique, bool) {
	defer r.read()()
	t, ok := r.byName[name]
	return t, ok
}

func (r *Registry) Len() int {
	defer r.read()()
	return len(r.order)
}

// Rules returns each technique's declared situations, wildcards not expanded, in registration order.
func (r *Registry) Rules() []RuleSet {
	defer r.read()()
	out := make([]RuleSet, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, RuleSet{Technique: t, Situations: t.Metadata().Rules})
	}
	return out
}
