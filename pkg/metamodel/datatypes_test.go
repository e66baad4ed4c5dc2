package metamodel

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Code string

func TestDatatypeRegistry(t *testing.T) {
	registry := NewDatatypeRegistry()

	t.Run("find by exact type", func(t *testing.T) {
		tests := []struct {
			typ  reflect.Type
			name string
		}{
			{reflect.TypeOf(""), "string"},
			{reflect.TypeOf(int64(0)), "long"},
			{reflect.TypeOf(float64(0)), "double"},
			{reflect.TypeOf(time.Time{}), "dateTime"},
			{reflect.TypeOf(uuid.UUID{}), "uuid"},
			{reflect.TypeOf([]byte(nil)), "byteArray"},
			{reflect.TypeOf(json.RawMessage(nil)), "json"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				dt, ok := registry.Find(tt.typ)
				require.True(t, ok)
				assert.Equal(t, tt.name, dt.Name())
			})
		}
	})

	t.Run("named scalar resolves by kind only", func(t *testing.T) {
		_, ok := registry.Find(reflect.TypeOf(Code("")))
		assert.False(t, ok)

		dt, ok := registry.FindByKind(reflect.TypeOf(Code("")))
		require.True(t, ok)
		assert.Equal(t, "string", dt.Name())

		_, ok = registry.FindByKind(reflect.TypeOf(Plain{}))
		assert.False(t, ok)
	})

	t.Run("name-only datatypes", func(t *testing.T) {
		for _, name := range []string{"date", "time", "decimal"} {
			_, ok := registry.Get(name)
			assert.True(t, ok, name)
		}
	})

	t.Run("custom registration", func(t *testing.T) {
		r := NewDatatypeRegistry()
		r.Register("code", reflect.TypeOf(Code("")))
		dt, ok := r.Find(reflect.TypeOf(Code("")))
		require.True(t, ok)
		assert.Equal(t, "code", dt.Name())
	})
}

func TestEnumeration(t *testing.T) {
	assert.True(t, isEnumType(reflect.TypeOf(OrderStatus(""))))
	assert.False(t, isEnumType(reflect.TypeOf(Code(""))))

	e := newEnumeration(reflect.TypeOf(OrderStatus("")))
	assert.Equal(t, "metamodel.OrderStatus", e.Name())
	assert.Equal(t, []string{"new", "paid", "shipped"}, e.Values())
}
