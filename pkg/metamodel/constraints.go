package metamodel

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Validation groups understood by the default oracle
const (
	GroupDefault = "default"
	GroupUI      = "ui"
)

const defaultNotNullMessage = "must not be null"

// ConstraintKind identifies a validation constraint
type ConstraintKind int

const (
	ConstraintNotNull ConstraintKind = iota
	ConstraintSize
	ConstraintLength
	ConstraintMin
	ConstraintMax
	ConstraintDecimalMin
	ConstraintDecimalMax
	ConstraintPast
	ConstraintFuture
)

var constraintKinds = map[string]ConstraintKind{
	"notnull":     ConstraintNotNull,
	"size":        ConstraintSize,
	"length":      ConstraintLength,
	"min":         ConstraintMin,
	"max":         ConstraintMax,
	"decimal_min": ConstraintDecimalMin,
	"decimal_max": ConstraintDecimalMax,
	"past":        ConstraintPast,
	"future":      ConstraintFuture,
}

// String returns the tag name of the constraint kind
func (k ConstraintKind) String() string {
	for name, kind := range constraintKinds {
		if kind == k {
			return name
		}
	}
	return "unknown"
}

// Constraint is one validation constraint read from a `validate` tag
type Constraint struct {
	Kind    ConstraintKind
	Value   string
	Min     int64
	Max     int64
	Message string

	// GroupSpec is the raw "@g1|g2" suffix without the '@'; HasGroups is set when
	// the suffix was present at all.
	GroupSpec string
	HasGroups bool
}

// Groups returns the validation groups the constraint is scoped to.
// A declared but empty or malformed group list cannot be read.
func (c Constraint) Groups() ([]string, error) {
	if !c.HasGroups {
		return nil, nil
	}
	parts := strings.Split(c.GroupSpec, "|")
	groups := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("%w: %s constraint has a malformed groups list %q",
				ErrUnreadableAnnotation, c.Kind, c.GroupSpec)
		}
		groups = append(groups, part)
	}
	return groups, nil
}

// GroupOracle decides whether a constraint applies to a validation group
type GroupOracle interface {
	AppliesTo(c Constraint, group string, inheritDefault bool) (bool, error)
}

// DefaultGroupOracle treats constraints without groups as members of every group
// when inheritDefault is set
type DefaultGroupOracle struct{}

func (DefaultGroupOracle) AppliesTo(c Constraint, group string, inheritDefault bool) (bool, error) {
	groups, err := c.Groups()
	if err != nil {
		return false, err
	}
	if inheritDefault && len(groups) == 0 {
		return true, nil
	}
	for _, g := range groups {
		if g == group {
			return true, nil
		}
	}
	return false, nil
}

// parseConstraint builds a constraint from one `validate` tag entry
func parseConstraint(key, value string) (Constraint, error) {
	var c Constraint

	name := key
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name, c.GroupSpec, c.HasGroups = name[:i], name[i+1:], true
	}
	if i := strings.IndexByte(value, '@'); i >= 0 {
		if c.HasGroups {
			return c, fmt.Errorf("%w: %s constraint declares groups twice", ErrUnreadableAnnotation, name)
		}
		value, c.GroupSpec, c.HasGroups = value[:i], value[i+1:], true
	}

	kind, ok := constraintKinds[name]
	if !ok {
		return c, fmt.Errorf("%w: unknown constraint %q", ErrUnreadableAnnotation, name)
	}
	c.Kind = kind
	c.Value = value

	switch kind {
	case ConstraintSize, ConstraintLength:
		lower, upper, err := parseBounds(value)
		if err != nil {
			return c, fmt.Errorf("%w: %s: %v", ErrUnreadableAnnotation, name, err)
		}
		c.Min, c.Max = lower, upper
	case ConstraintMin, ConstraintMax:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return c, fmt.Errorf("%w: %s value %q is not an integer", ErrUnreadableAnnotation, name, value)
		}
		c.Min, c.Max = n, n
	case ConstraintDecimalMin, ConstraintDecimalMax:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return c, fmt.Errorf("%w: %s value %q is not a number", ErrUnreadableAnnotation, name, value)
		}
	case ConstraintNotNull:
		c.Message = defaultNotNullMessage
	}
	return c, nil
}

// parseBounds parses "min..max" where either side may be omitted
func parseBounds(s string) (int64, int64, error) {
	lower, upper := int64(0), int64(math.MaxInt32)
	lo, hi, found := strings.Cut(s, "..")
	if !found {
		return 0, 0, fmt.Errorf("bounds %q must look like min..max", s)
	}
	var err error
	if lo != "" {
		if lower, err = strconv.ParseInt(lo, 10, 64); err != nil {
			return 0, 0, fmt.Errorf("invalid lower bound %q", lo)
		}
	}
	if hi != "" {
		if upper, err = strconv.ParseInt(hi, 10, 64); err != nil {
			return 0, 0, fmt.Errorf("invalid upper bound %q", hi)
		}
	}
	if lower > upper {
		return 0, 0, fmt.Errorf("lower bound %d exceeds upper bound %d", lower, upper)
	}
	return lower, upper, nil
}
