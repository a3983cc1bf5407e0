package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/aura/pkg/provider/image"
	"github.com/MrWong99/aura/pkg/provider/llm"
	"github.com/MrWong99/aura/pkg/provider/s2s"
)

// ErrProviderNotRegistered means no factory exists for a provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// factories is one kind's name table.
type factories[P any] struct {
	kind   string
	byName map[string]Factory[P]
}

func newFactories[P any](kind string) factories[P] {
	return factories[P]{kind: kind, byName: make(map[string]Factory[P])}
}

func (f factories[P]) create(entry ProviderEntry) (P, error) {
	build, ok := f.byName[entry.Name]
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return build(entry)
}

// Registry resolves provider names from the config to constructors. It is
// safe for concurrent use; a later registration under the same name wins.
type Registry struct {
	mu    sync.RWMutex
	s2s   factories[s2s.Provider]
	llm   factories[llm.Provider]
	image factories[image.Provider]
}

// NewRegistry returns a Registry with nothing registered.
func NewRegistry() *Registry {
	return &Registry{
		s2s:   newFactories[s2s.Provider]("s2s"),
		llm:   newFactories[llm.Provider]("llm"),
		image: newFactories[image.Provider]("image"),
	}
}

func (r *Registry) RegisterS2S(name string, f Factory[s2s.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s2s.byName[name] = f
}

func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.byName[name] = f
}

func (r *Registry) RegisterImage(name string, f Factory[image.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.image.byName[name] = f
}

// CreateS2S builds the live provider named by entry.Name. It wraps
// [ErrProviderNotRegistered] for unknown names.
func (r *Registry) CreateS2S(entry ProviderEntry) (s2s.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.s2s.create(entry)
}

func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create(entry)
}

func (r *Registry) CreateImage(entry ProviderEntry) (image.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.image.create(entry)
}

// Names lists the registered names for kind ("s2s", "llm" or "image") in
// sorted order.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case r.s2s.kind:
		return slices.Sorted(maps.Keys(r.s2s.byName))
	case r.llm.kind:
		return slices.Sorted(maps.Keys(r.llm.byName))
	case r.image.kind:
		return slices.Sorted(maps.Keys(r.image.byName))
	}
	return nil
}
