package metamodel

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Session is the registry of class nodes produced by one load.
// The loader owns it exclusively while loading; afterwards it is never mutated and
// may be shared freely between goroutines.
type Session struct {
	id       uuid.UUID
	loadedAt time.Time
	classes  []*ClassNode
	byType   map[reflect.Type]*ClassNode
	byName   map[string]*ClassNode
}

// NewSession creates an empty session
func NewSession() *Session {
	return &Session{
		id:     uuid.New(),
		byType: make(map[reflect.Type]*ClassNode),
		byName: make(map[string]*ClassNode),
	}
}

// ID identifies the session; every reload produces a new one
func (s *Session) ID() uuid.UUID { return s.id }

// LoadedAt returns when loading completed, zero while loading
func (s *Session) LoadedAt() time.Time { return s.loadedAt }

// FindClass returns the class node for a Go type. Pointer types are dereferenced.
func (s *Session) FindClass(typ reflect.Type) (*ClassNode, bool) {
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	c, ok := s.byType[typ]
	return c, ok
}

// ClassOf returns the class node of a value's type
func (s *Session) ClassOf(v any) (*ClassNode, bool) {
	return s.FindClass(reflect.TypeOf(v))
}

// Class returns the class node registered under name
func (s *Session) Class(name string) (*ClassNode, bool) {
	c, ok := s.byName[name]
	return c, ok
}

// Classes returns all class nodes in registration order
func (s *Session) Classes() []*ClassNode {
	out := make([]*ClassNode, len(s.classes))
	copy(out, s.classes)
	return out
}

// Count returns the number of registered classes
func (s *Session) Count() int {
	return len(s.classes)
}

// register adds a class node keyed by its type and name.
// Registering an already known type returns the existing node.
func (s *Session) register(c *ClassNode) *ClassNode {
	if existing, ok := s.byType[c.typ]; ok {
		return existing
	}
	s.classes = append(s.classes, c)
	s.byType[c.typ] = c
	s.byName[c.name] = c
	return c
}
