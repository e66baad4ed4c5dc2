package metamodel

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

// rangeTask is a deferred class-range resolution. It runs after every class of the
// load has been registered, so association targets may appear in any order.
type rangeTask struct {
	property   *PropertyNode
	target     reflect.Type
	targetName string
	facts      propertyFacts
}

func (t *rangeTask) describeTarget() string {
	if t.targetName != "" {
		return t.targetName
	}
	return t.target.String()
}

// loadRange resolves a datatype or enumeration range immediately. Anything else is
// assumed to be a class and returned as a deferred task.
func (l *Loader) loadRange(p *PropertyNode, typ reflect.Type, f propertyFacts) (Range, *rangeTask) {
	if f.target != "" {
		return nil, &rangeTask{property: p, targetName: f.target, facts: f}
	}

	if f.datatype != nil {
		return l.withOrder(newDatatypeRange(f.datatype, f.cardinality), f), nil
	}

	var (
		dt Datatype
		ok bool
	)
	if f.typeOverride != "" {
		dt, ok = l.datatypes.Get(f.typeOverride)
	} else {
		dt, ok = l.datatypes.Find(typ)
	}

	if format := numberFormat(p.markers); format != "" {
		if isNumericKind(typ.Kind()) {
			base := dt
			if !ok {
				base, ok = l.datatypes.FindByKind(typ)
			}
			if ok {
				dt = &AdaptiveNumberDatatype{Base: base, Format: format}
			}
		} else {
			l.logger.Warn("number format ignored on non-numeric property",
				zap.String("property", p.String()),
				zap.String("type", typ.String()),
			)
		}
	}

	if ok {
		if enum := l.accessorEnum(p.domain.typ, p.name); enum != nil {
			return l.withOrder(newEnumRange(enum, f.cardinality), f), nil
		}
		return l.withOrder(newDatatypeRange(dt, f.cardinality), f), nil
	}

	if isEnumType(typ) {
		return l.withOrder(newEnumRange(l.enumeration(typ), f.cardinality), f), nil
	}

	if dt, ok := l.datatypes.FindByKind(typ); ok {
		return l.withOrder(newDatatypeRange(dt, f.cardinality), f), nil
	}

	return nil, &rangeTask{property: p, target: typ, facts: f}
}

func (l *Loader) withOrder(r Range, f propertyFacts) Range {
	if !f.collection {
		return r
	}
	switch v := r.(type) {
	case *DatatypeRange:
		v.ordered = f.ordered
	case *EnumRange:
		v.ordered = f.ordered
	}
	return r
}

// accessorEnum looks for a reader method named after the property that exposes the
// stored value as an enumeration, e.g. a string field `status` read through
// `Status() OrderStatus`.
func (l *Loader) accessorEnum(owner reflect.Type, name string) *Enumeration {
	ptr := reflect.PointerTo(owner)
	for _, method := range []string{"Get" + capitalize(name), capitalize(name)} {
		m, ok := ptr.MethodByName(method)
		if !ok {
			continue
		}
		mt := m.Type
		if mt.NumIn() != 1 || mt.NumOut() != 1 {
			continue
		}
		if out := mt.Out(0); isEnumType(out) {
			return l.enumeration(out)
		}
	}
	return nil
}

func (l *Loader) enumeration(typ reflect.Type) *Enumeration {
	if e, ok := l.enums[typ]; ok {
		return e
	}
	e := newEnumeration(typ)
	l.enums[typ] = e
	return e
}

func numberFormat(m Markers) string {
	if m.Model == nil {
		return ""
	}
	return m.Model.NumberFormat
}

// execute resolves the target class and attaches the class range and inverse link
func (l *Loader) executeTask(s *Session, t *rangeTask) error {
	p := t.property

	target, ok := l.findTarget(s, t)
	if !ok {
		return loadError(PhaseFullyResolved, p.domain.name, p.name,
			fmt.Errorf("%w: %s", ErrUnknownRangeClass, t.describeTarget()))
	}

	r := &ClassRange{rangeBase: rangeBase{cardinality: t.facts.cardinality}, Class: target}
	if t.facts.cardinality.IsMany() {
		r.ordered = t.facts.ordered
	}
	p.rng = r
	p.mandatory = t.facts.mandatory
	p.kind = kindOf(p.markers, r)

	if err := assignInverse(p, r, t.facts.inverse); err != nil {
		return loadError(PhaseFullyResolved, p.domain.name, p.name, err)
	}
	return nil
}

func (l *Loader) findTarget(s *Session, t *rangeTask) (*ClassNode, bool) {
	if t.targetName == "" {
		return s.FindClass(t.target)
	}
	if c, ok := s.Class(t.targetName); ok {
		return c, true
	}
	if typ, ok := l.catalog.Lookup(t.targetName); ok {
		return s.FindClass(typ)
	}
	return nil, false
}

// assignInverse links p to the named property of its range class
func assignInverse(p *PropertyNode, r Range, inverse string) error {
	if inverse == "" {
		return nil
	}
	target := AsClass(r)
	if target == nil {
		return fmt.Errorf("%w: %s has inverse %q but its range is %s, not a class",
			ErrUnresolvedInverse, p, inverse, r)
	}
	q, ok := target.Property(inverse)
	if !ok {
		return fmt.Errorf("%w: %s has no property %q", ErrUnresolvedInverse, target.name, inverse)
	}
	p.inverse = q
	return nil
}

// completeInverses makes every inverse link symmetric. When P names Q as its inverse
// and Q has none, Q gets P as its inverse provided Q's range is compatible with P's
// class. Conflicting or incompatible links fail the load.
func completeInverses(classes []*ClassNode) error {
	for _, c := range classes {
		for _, p := range c.own {
			q := p.inverse
			if q == nil {
				continue
			}
			switch {
			case q.inverse == p:
				continue
			case q.inverse != nil:
				return loadError(PhaseFullyResolved, c.name, p.name,
					fmt.Errorf("%w: %s names %s as inverse but %s names %s",
						ErrAsymmetricInverse, p, q, q, q.inverse))
			}
			back := AsClass(q.rng)
			if back == nil || !(p.domain.IsA(back) || back.IsA(p.domain)) {
				return loadError(PhaseFullyResolved, c.name, p.name,
					fmt.Errorf("%w: %s does not refer back to %s", ErrAsymmetricInverse, q, c.name))
			}
			q.inverse = p
		}
	}
	return nil
}

func kindOf(m Markers, r Range) PropertyKind {
	switch r.(type) {
	case *DatatypeRange:
		return KindDatatype
	case *EnumRange:
		return KindEnum
	case *ClassRange:
		if m.Model != nil && m.Model.Composition {
			return KindComposition
		}
		return KindAssociation
	}
	return KindUnresolved
}
