package metamodel

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// TypeCatalog resolves class names to Go types. Go cannot load a type by name, so
// domain packages register their types up front, together with the accessor methods
// that should become properties.
type TypeCatalog struct {
	mu        sync.RWMutex
	types     map[string]reflect.Type
	names     map[reflect.Type]string
	accessors map[reflect.Type][]accessorDecl
}

type accessorDecl struct {
	method string
	tag    reflect.StructTag
}

// RegisterOption configures a catalog registration
type RegisterOption func(*registration)

type registration struct {
	name      string
	accessors []accessorDecl
}

// WithName registers the type under an explicit name instead of its Go name
func WithName(name string) RegisterOption {
	return func(r *registration) {
		r.name = name
	}
}

// WithAccessor declares a method of the type as a property accessor carrying the
// given markers, e.g. WithAccessor("Total", `meta:""`)
func WithAccessor(method string, tag reflect.StructTag) RegisterOption {
	return func(r *registration) {
		r.accessors = append(r.accessors, accessorDecl{method: method, tag: tag})
	}
}

// NewTypeCatalog creates an empty catalog
func NewTypeCatalog() *TypeCatalog {
	return &TypeCatalog{
		types:     make(map[string]reflect.Type),
		names:     make(map[reflect.Type]string),
		accessors: make(map[reflect.Type][]accessorDecl),
	}
}

// Register adds the struct type of sample to the catalog and returns the name it is
// known by. Registering the same type twice is a no-op; a different type under an
// existing name is an error.
func (c *TypeCatalog) Register(sample any, opts ...RegisterOption) (string, error) {
	typ := reflect.TypeOf(sample)
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return "", fmt.Errorf("catalog: %T is not a struct type", sample)
	}

	reg := &registration{name: typ.String()}
	for _, opt := range opts {
		opt(reg)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.types[reg.name]; ok && existing != typ {
		return "", fmt.Errorf("catalog: name %s already registered for %s", reg.name, existing)
	}
	if name, ok := c.names[typ]; ok {
		return name, nil
	}

	c.types[reg.name] = typ
	c.names[typ] = reg.name
	if len(reg.accessors) > 0 {
		c.accessors[typ] = reg.accessors
	}
	return reg.name, nil
}

// MustRegister is like Register but panics on error. Intended for package init.
func (c *TypeCatalog) MustRegister(sample any, opts ...RegisterOption) string {
	name, err := c.Register(sample, opts...)
	if err != nil {
		panic(err)
	}
	return name
}

// Lookup resolves a registered name to its type
func (c *TypeCatalog) Lookup(name string) (reflect.Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	typ, ok := c.types[name]
	return typ, ok
}

// NameOf returns the name a type was registered under
func (c *TypeCatalog) NameOf(typ reflect.Type) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.names[typ]
	return name, ok
}

// Names returns all registered names in sorted order
func (c *TypeCatalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.types))
	for name := range c.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *TypeCatalog) accessorsOf(typ reflect.Type) []accessorDecl {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessors[typ]
}
