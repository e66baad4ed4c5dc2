package metamodel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConstraint(t *testing.T) {
	tests := []struct {
		key, value string
		want       Constraint
	}{
		{"notnull", "", Constraint{Kind: ConstraintNotNull, Message: defaultNotNullMessage}},
		{"notnull@ui", "", Constraint{Kind: ConstraintNotNull, Message: defaultNotNullMessage, GroupSpec: "ui", HasGroups: true}},
		{"size", "1..50", Constraint{Kind: ConstraintSize, Value: "1..50", Min: 1, Max: 50}},
		{"length", "..10", Constraint{Kind: ConstraintLength, Value: "..10", Min: 0, Max: 10}},
		{"length", "3..", Constraint{Kind: ConstraintLength, Value: "3..", Min: 3, Max: math.MaxInt32}},
		{"min", "0@ui|default", Constraint{Kind: ConstraintMin, Value: "0", GroupSpec: "ui|default", HasGroups: true}},
		{"decimal_max", "9.5", Constraint{Kind: ConstraintDecimalMax, Value: "9.5"}},
		{"future", "", Constraint{Kind: ConstraintFuture}},
	}

	for _, tt := range tests {
		t.Run(tt.key+":"+tt.value, func(t *testing.T) {
			got, err := parseConstraint(tt.key, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range [][2]string{{"min", "one"}, {"decimal_min", "x"}, {"size", "5"}, {"pattern", ""}} {
		t.Run("invalid "+bad[0], func(t *testing.T) {
			_, err := parseConstraint(bad[0], bad[1])
			assert.ErrorIs(t, err, ErrUnreadableAnnotation)
		})
	}
}

func TestDefaultGroupOracle(t *testing.T) {
	oracle := DefaultGroupOracle{}
	plain := Constraint{Kind: ConstraintNotNull}
	ui := Constraint{Kind: ConstraintNotNull, GroupSpec: "ui", HasGroups: true}
	broken := Constraint{Kind: ConstraintNotNull, GroupSpec: "ui|", HasGroups: true}

	tests := []struct {
		name           string
		c              Constraint
		group          string
		inheritDefault bool
		want           bool
	}{
		{"ungrouped inherits default", plain, GroupDefault, true, true},
		{"ungrouped without inheritance", plain, GroupDefault, false, false},
		{"member group", ui, GroupUI, true, true},
		{"other group", ui, GroupDefault, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := oracle.AppliesTo(tt.c, tt.group, tt.inheritDefault)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := oracle.AppliesTo(broken, GroupUI, true)
	assert.ErrorIs(t, err, ErrUnreadableAnnotation)
}
