package metamodel

import (
	"reflect"
)

// ClassNode describes one domain class. It is mutated only while a Loader populates
// its Session and is read-only afterwards.
type ClassNode struct {
	name        string
	typ         reflect.Type
	markers     ClassMarkers
	ancestors   []*ClassNode
	own         []*PropertyNode
	ownByName   map[string]*PropertyNode
	all         []*PropertyNode
	allByName   map[string]*PropertyNode
	store       Store
	annotations map[AnnotationKey]any
}

func newClassNode(name string, typ reflect.Type, markers ClassMarkers) *ClassNode {
	return &ClassNode{
		name:        name,
		typ:         typ,
		markers:     markers,
		ownByName:   make(map[string]*PropertyNode),
		allByName:   make(map[string]*PropertyNode),
		annotations: make(map[AnnotationKey]any),
	}
}

// Name returns the class name
func (c *ClassNode) Name() string { return c.name }

// Type returns the underlying Go struct type
func (c *ClassNode) Type() reflect.Type { return c.typ }

// Store returns the storage tier of the class
func (c *ClassNode) Store() Store { return c.store }

// Markers returns the class markers the node was registered with
func (c *ClassNode) Markers() ClassMarkers { return c.markers }

// Ancestors returns the registered ancestors, nearest first
func (c *ClassNode) Ancestors() []*ClassNode {
	out := make([]*ClassNode, len(c.ancestors))
	copy(out, c.ancestors)
	return out
}

// Ancestor returns the nearest registered ancestor, or nil
func (c *ClassNode) Ancestor() *ClassNode {
	if len(c.ancestors) == 0 {
		return nil
	}
	return c.ancestors[0]
}

// IsA reports whether c is other or descends from it
func (c *ClassNode) IsA(other *ClassNode) bool {
	if c == other {
		return true
	}
	for _, a := range c.ancestors {
		if a == other {
			return true
		}
	}
	return false
}

// OwnProperties returns the properties declared directly on this class
func (c *ClassNode) OwnProperties() []*PropertyNode {
	out := make([]*PropertyNode, len(c.own))
	copy(out, c.own)
	return out
}

// Properties returns own and inherited properties, own first
func (c *ClassNode) Properties() []*PropertyNode {
	out := make([]*PropertyNode, len(c.all))
	copy(out, c.all)
	return out
}

// Property finds a property by name among own and inherited properties
func (c *ClassNode) Property(name string) (*PropertyNode, bool) {
	if p, ok := c.allByName[name]; ok {
		return p, true
	}
	if p, ok := c.ownByName[name]; ok {
		return p, true
	}
	for _, a := range c.ancestors {
		if p, ok := a.ownByName[name]; ok {
			return p, true
		}
	}
	return nil, false
}

// IsOwn reports whether p is declared directly on this class
func (c *ClassNode) IsOwn(p *PropertyNode) bool {
	return c.ownByName[p.name] == p
}

// Annotation returns a class-level annotation
func (c *ClassNode) Annotation(key AnnotationKey) (any, bool) {
	v, ok := c.annotations[key]
	return v, ok
}

// PrimaryKey returns the primary key property if one was declared
func (c *ClassNode) PrimaryKey() (*PropertyNode, bool) {
	name, ok := c.annotations[AnnotationPrimaryKey].(string)
	if !ok {
		for _, a := range c.ancestors {
			if pk, ok := a.PrimaryKey(); ok {
				return pk, true
			}
		}
		return nil, false
	}
	return c.Property(name)
}

func (c *ClassNode) String() string { return c.name }

func (c *ClassNode) addOwn(p *PropertyNode) {
	c.own = append(c.own, p)
	c.ownByName[p.name] = p
}

// PropertyNode describes one attribute or association of a class
type PropertyNode struct {
	name          string
	domain        *ClassNode
	element       Element
	markers       Markers
	goType        reflect.Type
	kind          PropertyKind
	mandatory     bool
	readOnly      bool
	rng           Range
	inverse       *PropertyNode
	constraints   []Constraint
	annotations   map[AnnotationKey]any
	extensions    map[string]string
	store         Store
	declaringType reflect.Type
}

func newPropertyNode(domain *ClassNode, name string, el Element, markers Markers) *PropertyNode {
	return &PropertyNode{
		name:          name,
		domain:        domain,
		element:       el,
		markers:       markers,
		goType:        el.Type,
		declaringType: el.Owner,
		annotations:   make(map[AnnotationKey]any),
		extensions:    make(map[string]string),
	}
}

// Name returns the property name
func (p *PropertyNode) Name() string { return p.name }

// Domain returns the class that declares the property
func (p *PropertyNode) Domain() *ClassNode { return p.domain }

// DeclaringType returns the Go type declaring the backing field or accessor
func (p *PropertyNode) DeclaringType() reflect.Type { return p.declaringType }

// GoType returns the declared Go type of the field or accessor result
func (p *PropertyNode) GoType() reflect.Type { return p.goType }

// Element returns the field or accessor backing the property
func (p *PropertyNode) Element() Element { return p.element }

// Kind returns the property kind derived from its range
func (p *PropertyNode) Kind() PropertyKind { return p.kind }

// Cardinality returns the range cardinality, or none when unresolved
func (p *PropertyNode) Cardinality() Cardinality {
	if p.rng == nil {
		return CardinalityNone
	}
	return p.rng.Cardinality()
}

// Mandatory reports whether a value is structurally required
func (p *PropertyNode) Mandatory() bool { return p.mandatory }

// ReadOnly reports whether the property has no setter
func (p *PropertyNode) ReadOnly() bool { return p.readOnly }

// Range returns the value range of the property
func (p *PropertyNode) Range() Range { return p.rng }

// Inverse returns the property on the opposite side of a bidirectional association
func (p *PropertyNode) Inverse() *PropertyNode { return p.inverse }

// Store returns the storage tier of the property
func (p *PropertyNode) Store() Store { return p.store }

// Constraints returns every validation constraint declared on the property,
// regardless of the validation groups it is scoped to
func (p *PropertyNode) Constraints() []Constraint {
	out := make([]Constraint, len(p.constraints))
	copy(out, p.constraints)
	return out
}

// Annotation returns a property annotation
func (p *PropertyNode) Annotation(key AnnotationKey) (any, bool) {
	v, ok := p.annotations[key]
	return v, ok
}

// Annotations returns a copy of all property annotations
func (p *PropertyNode) Annotations() map[AnnotationKey]any {
	out := make(map[AnnotationKey]any, len(p.annotations))
	for k, v := range p.annotations {
		out[k] = v
	}
	return out
}

// Extension returns a pass-through custom marker value
func (p *PropertyNode) Extension(key string) (string, bool) {
	v, ok := p.extensions[key]
	return v, ok
}

// Extensions returns a copy of the pass-through custom markers
func (p *PropertyNode) Extensions() map[string]string {
	out := make(map[string]string, len(p.extensions))
	for k, v := range p.extensions {
		out[k] = v
	}
	return out
}

func (p *PropertyNode) String() string {
	return p.domain.name + "." + p.name
}
