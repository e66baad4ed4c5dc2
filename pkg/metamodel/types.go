// Package metamodel builds an in-memory metadata graph from annotated Go domain types.
// Classes, properties, associations, cardinalities, inverse links, validation constraints
// and storage tiers are read from struct tags and marker fields, resolved in two passes
// and published as an immutable Session.
package metamodel

import "fmt"

// Cardinality represents the multiplicity of a property
type Cardinality int

const (
	CardinalityNone Cardinality = iota
	CardinalityOneToOne
	CardinalityOneToMany
	CardinalityManyToOne
	CardinalityManyToMany
)

// String returns the string representation of the cardinality
func (c Cardinality) String() string {
	switch c {
	case CardinalityNone:
		return "none"
	case CardinalityOneToOne:
		return "one_to_one"
	case CardinalityOneToMany:
		return "one_to_many"
	case CardinalityManyToOne:
		return "many_to_one"
	case CardinalityManyToMany:
		return "many_to_many"
	default:
		return "unknown"
	}
}

// ParseCardinality converts a string to a Cardinality
func ParseCardinality(s string) (Cardinality, error) {
	switch s {
	case "none":
		return CardinalityNone, nil
	case "one_to_one":
		return CardinalityOneToOne, nil
	case "one_to_many":
		return CardinalityOneToMany, nil
	case "many_to_one":
		return CardinalityManyToOne, nil
	case "many_to_many":
		return CardinalityManyToMany, nil
	default:
		return 0, fmt.Errorf("unknown cardinality: %s", s)
	}
}

// IsMany returns true for to-many cardinalities
func (c Cardinality) IsMany() bool {
	return c == CardinalityOneToMany || c == CardinalityManyToMany
}

// PropertyKind classifies a property by its range
type PropertyKind int

const (
	KindUnresolved PropertyKind = iota
	KindDatatype
	KindEnum
	KindAssociation
	KindComposition
)

// String returns the string representation of the property kind
func (k PropertyKind) String() string {
	switch k {
	case KindUnresolved:
		return "unresolved"
	case KindDatatype:
		return "datatype"
	case KindEnum:
		return "enum"
	case KindAssociation:
		return "association"
	case KindComposition:
		return "composition"
	default:
		return "unknown"
	}
}

// AnnotationKey enumerates the annotations the loader attaches to properties and classes
type AnnotationKey int

const (
	AnnotationPrimaryKey AnnotationKey = iota
	AnnotationLength
	AnnotationTemporal
	AnnotationSystem
	AnnotationRelatedProperties
	AnnotationNotNullMessage
	AnnotationNotNullUIComponent
	AnnotationSizeMin
	AnnotationSizeMax
	AnnotationLengthMin
	AnnotationLengthMax
	AnnotationMin
	AnnotationMax
	AnnotationDecimalMin
	AnnotationDecimalMax
	AnnotationPast
	AnnotationFuture
)

var annotationNames = map[AnnotationKey]string{
	AnnotationPrimaryKey:         "primary_key",
	AnnotationLength:             "length",
	AnnotationTemporal:           "temporal",
	AnnotationSystem:             "system",
	AnnotationRelatedProperties:  "related_properties",
	AnnotationNotNullMessage:     "notnull_message",
	AnnotationNotNullUIComponent: "notnull_ui_component",
	AnnotationSizeMin:            "size_min",
	AnnotationSizeMax:            "size_max",
	AnnotationLengthMin:          "length_min",
	AnnotationLengthMax:          "length_max",
	AnnotationMin:                "min",
	AnnotationMax:                "max",
	AnnotationDecimalMin:         "decimal_min",
	AnnotationDecimalMax:         "decimal_max",
	AnnotationPast:               "past",
	AnnotationFuture:             "future",
}

// String returns the string representation of the annotation key
func (k AnnotationKey) String() string {
	if name, ok := annotationNames[k]; ok {
		return name
	}
	return "unknown"
}

// Range is the value kind of a property: a datatype, an enumeration or another class.
// Exactly one of DatatypeRange, EnumRange and ClassRange is attached to a resolved property.
type Range interface {
	Cardinality() Cardinality
	Ordered() bool
	String() string
	isRange()
}

type rangeBase struct {
	cardinality Cardinality
	ordered     bool
}

func (r *rangeBase) Cardinality() Cardinality { return r.cardinality }
func (r *rangeBase) Ordered() bool            { return r.ordered }
func (r *rangeBase) isRange()                 {}

// DatatypeRange is the range of a scalar property
type DatatypeRange struct {
	rangeBase
	Datatype Datatype
}

func (r *DatatypeRange) String() string { return "datatype:" + r.Datatype.Name() }

// EnumRange is the range of an enumeration-valued property
type EnumRange struct {
	rangeBase
	Enumeration *Enumeration
}

func (r *EnumRange) String() string { return "enum:" + r.Enumeration.Name() }

// ClassRange is the range of an association to another class
type ClassRange struct {
	rangeBase
	Class *ClassNode
}

func (r *ClassRange) String() string { return "class:" + r.Class.Name() }

func newDatatypeRange(dt Datatype, card Cardinality) *DatatypeRange {
	return &DatatypeRange{rangeBase: rangeBase{cardinality: card}, Datatype: dt}
}

func newEnumRange(e *Enumeration, card Cardinality) *EnumRange {
	return &EnumRange{rangeBase: rangeBase{cardinality: card}, Enumeration: e}
}

// AsClass returns the target class of a class range, or nil
func AsClass(r Range) *ClassNode {
	if cr, ok := r.(*ClassRange); ok {
		return cr.Class
	}
	return nil
}
