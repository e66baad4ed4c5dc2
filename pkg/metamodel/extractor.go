package metamodel

import (
	"fmt"
	"reflect"
)

// propertyFacts are the structural facts extracted from one field or accessor
type propertyFacts struct {
	cardinality  Cardinality
	mandatory    bool
	ordered      bool
	collection   bool
	primaryKey   bool
	datatype     Datatype
	typeOverride string
	inverse      string
	target       string
	valueType    reflect.Type
}

var temporalDatatypes = map[string]string{
	"date":      "date",
	"time":      "time",
	"timestamp": "dateTime",
}

// extractField derives the facts of a field property. Collection and map fields
// resolve to their element type.
func (l *Loader) extractField(el Element, m Markers) (propertyFacts, error) {
	f := propertyFacts{
		cardinality: l.cardinalityOf(el.Type, m),
		primaryKey:  m.PrimaryKey(),
	}

	mandatory, err := l.isMandatory(m, f.cardinality)
	if err != nil {
		return f, err
	}
	f.mandatory = mandatory

	if m.Model != nil && m.Model.Datatype != "" {
		dt, ok := l.datatypes.Get(m.Model.Datatype)
		if !ok {
			return f, fmt.Errorf("%w: unknown datatype %q", ErrUnreadableAnnotation, m.Model.Datatype)
		}
		f.datatype = dt
	}
	if m.Temporal != "" {
		f.typeOverride = temporalDatatypes[m.Temporal]
	}
	if m.Relation != nil {
		f.inverse = m.Relation.MappedBy
		f.target = m.Relation.Target
	}

	typ := deref(el.Type)
	if l.isCollectionType(typ) {
		f.collection = true
		f.ordered = typ.Kind() == reflect.Slice || typ.Kind() == reflect.Array
		typ = deref(typ.Elem())
		if typ.Kind() == reflect.Interface && f.target == "" {
			return f, fmt.Errorf("%w: collection of %s needs a target class", ErrUnsupportedPropertyShape, typ)
		}
	}
	f.valueType = typ
	return f, nil
}

// extractAccessor derives the facts of an accessor property. Only argument-less,
// single-result, non-collection readers are supported.
func (l *Loader) extractAccessor(el Element, m Markers) (propertyFacts, error) {
	var f propertyFacts

	if el.NumIn != 0 {
		return f, fmt.Errorf("%w: accessor %s takes %d argument(s)", ErrUnsupportedPropertyShape, el.Name, el.NumIn)
	}
	if el.NumOut != 1 {
		return f, fmt.Errorf("%w: accessor %s must return exactly one value", ErrUnsupportedPropertyShape, el.Name)
	}
	if l.isCollectionType(deref(el.Type)) {
		return f, fmt.Errorf("%w: accessor %s returns a collection or map", ErrUnsupportedPropertyShape, el.Name)
	}

	if m.Model != nil && m.Model.Datatype != "" {
		dt, ok := l.datatypes.Get(m.Model.Datatype)
		if !ok {
			return f, fmt.Errorf("%w: unknown datatype %q", ErrUnreadableAnnotation, m.Model.Datatype)
		}
		f.datatype = dt
	}
	f.cardinality = CardinalityNone
	f.valueType = deref(el.Type)
	return f, nil
}

// cardinalityOf applies explicit relational markers first, then infers from the type
func (l *Loader) cardinalityOf(typ reflect.Type, m Markers) Cardinality {
	switch {
	case m.Column != nil:
		return CardinalityNone
	case m.Relation != nil:
		return m.Relation.Cardinality
	case m.Embedded:
		return CardinalityOneToOne
	}

	typ = deref(typ)
	switch {
	case l.isCollectionType(typ):
		return CardinalityOneToMany
	case l.isScalarType(typ):
		return CardinalityNone
	default:
		return CardinalityManyToOne
	}
}

// isMandatory never marks to-many properties mandatory
func (l *Loader) isMandatory(m Markers, card Cardinality) (bool, error) {
	if card.IsMany() {
		return false, nil
	}
	if m.Relation != nil && m.Relation.Cardinality.IsMany() {
		return false, nil
	}

	if m.Column != nil && !m.Column.Nullable {
		return true, nil
	}
	if m.Relation != nil && !m.Relation.Optional {
		return true, nil
	}
	if m.Model != nil && m.Model.Mandatory {
		return true, nil
	}
	if c, ok := m.Constraint(ConstraintNotNull); ok {
		applies, err := l.oracle.AppliesTo(c, GroupDefault, true)
		if err != nil {
			return false, err
		}
		return applies, nil
	}
	return false, nil
}

// isCollectionType reports slices, arrays and maps that are not datatypes themselves
func (l *Loader) isCollectionType(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		_, ok := l.datatypes.Find(typ)
		return !ok
	}
	return false
}

func (l *Loader) isScalarType(typ reflect.Type) bool {
	if _, ok := l.datatypes.Find(typ); ok {
		return true
	}
	if isEnumType(typ) {
		return true
	}
	_, ok := kindTypes[typ.Kind()]
	return ok
}

func deref(typ reflect.Type) reflect.Type {
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	return typ
}
