package metamodel

import (
	"fmt"
	"sort"
)

// Well-known storage tier names
const (
	StoreMain      = "main"
	StoreUndefined = "undefined"
	StoreNoop      = "noop"
)

// Store is a storage tier handle assigned to classes and properties
type Store interface {
	Name() string
}

// StoreRegistry resolves tier names to store handles.
// The main, undefined and noop tiers always resolve.
type StoreRegistry interface {
	Get(name string) (Store, error)
}

type namedStore string

func (s namedStore) Name() string { return string(s) }

// Stores is an in-memory StoreRegistry of name-only tiers
type Stores struct {
	stores map[string]Store
}

// NewStores creates a registry with the built-in tiers plus the given names
func NewStores(names ...string) *Stores {
	s := &Stores{stores: make(map[string]Store)}
	for _, name := range append([]string{StoreMain, StoreUndefined, StoreNoop}, names...) {
		s.stores[name] = namedStore(name)
	}
	return s
}

// Get returns the store registered under name
func (s *Stores) Get(name string) (Store, error) {
	store, ok := s.stores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStore, name)
	}
	return store, nil
}

// Names returns the registered tier names in sorted order
func (s *Stores) Names() []string {
	names := make([]string, 0, len(s.stores))
	for name := range s.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
