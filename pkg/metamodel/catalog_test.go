package metamodel

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeCatalog(t *testing.T) {
	t.Run("register and lookup", func(t *testing.T) {
		catalog := NewTypeCatalog()

		name, err := catalog.Register(&Order{})
		require.NoError(t, err)
		assert.Equal(t, "metamodel.Order", name)

		typ, ok := catalog.Lookup(name)
		require.True(t, ok)
		assert.Equal(t, reflect.TypeOf(Order{}), typ)

		back, ok := catalog.NameOf(typ)
		assert.True(t, ok)
		assert.Equal(t, name, back)
	})

	t.Run("registering twice returns the first name", func(t *testing.T) {
		catalog := NewTypeCatalog()
		catalog.MustRegister(Order{}, WithName("Order"))

		name, err := catalog.Register(Order{}, WithName("Other"))
		require.NoError(t, err)
		assert.Equal(t, "Order", name)
		assert.Equal(t, []string{"Order"}, catalog.Names())
	})

	t.Run("name taken by another type", func(t *testing.T) {
		catalog := NewTypeCatalog()
		catalog.MustRegister(Order{}, WithName("Order"))

		_, err := catalog.Register(Customer{}, WithName("Order"))
		assert.Error(t, err)
	})

	t.Run("non-struct types are rejected", func(t *testing.T) {
		catalog := NewTypeCatalog()
		_, err := catalog.Register(OrderStatus("new"))
		assert.Error(t, err)
		assert.Panics(t, func() { catalog.MustRegister(42) })
	})

	t.Run("names are sorted", func(t *testing.T) {
		assert.Equal(t, []string{
			"Address", "Archived", "Author", "BaseEntity", "Book", "Customer", "Duplicate",
			"Invoice", "Lost", "Misnamed", "Order", "OrderLine", "Plain", "Sailor", "Ship", "Summary",
		}, newSalesCatalog(t).Names())
	})
}
