package metamodel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func loadSession(t *testing.T, loader *Loader, names ...string) *Session {
	t.Helper()
	session := NewSession()
	require.NoError(t, loader.Load(context.Background(), session, names))
	return session
}

func mustClass(t *testing.T, s *Session, name string) *ClassNode {
	t.Helper()
	c, ok := s.Class(name)
	require.True(t, ok, "class %s should be registered", name)
	return c
}

func mustProperty(t *testing.T, c *ClassNode, name string) *PropertyNode {
	t.Helper()
	p, ok := c.Property(name)
	require.True(t, ok, "property %s.%s should exist", c.Name(), name)
	return p
}

func TestLoader_Classes(t *testing.T) {
	t.Run("registers marked types under their class names", func(t *testing.T) {
		s := loadSession(t, NewLoader(newSalesCatalog(t)), salesClasses...)

		assert.Equal(t, 5, s.Count())
		for _, name := range []string{"BaseEntity", "test_Address", "test_Customer", "test_Order", "test_OrderLine"} {
			mustClass(t, s, name)
		}

		c, ok := s.ClassOf(&Order{})
		require.True(t, ok)
		assert.Equal(t, "test_Order", c.Name())
		assert.False(t, s.LoadedAt().IsZero())
	})

	t.Run("unknown names are logged and skipped", func(t *testing.T) {
		logger, logs := newObservedLogger()
		s := loadSession(t, NewLoader(newSalesCatalog(t), WithLogger(logger)), "Order", "Nope", "Customer", "OrderLine", "BaseEntity", "Address")

		assert.Equal(t, 5, s.Count())
		entries := logs.FilterMessage("class not found").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "Nope", entries[0].ContextMap()["class"])
	})

	t.Run("types without class markers are not loaded", func(t *testing.T) {
		logger, logs := newObservedLogger()
		s := loadSession(t, NewLoader(newSalesCatalog(t), WithLogger(logger)), "Plain")

		assert.Equal(t, 0, s.Count())
		assert.Equal(t, 1, logs.FilterMessage("type is not loaded into metadata").Len())
	})

	t.Run("loading twice is idempotent", func(t *testing.T) {
		loader := NewLoader(newSalesCatalog(t))
		s := NewSession()
		require.NoError(t, loader.Load(context.Background(), s, salesClasses))
		order := mustClass(t, s, "test_Order")
		before := len(order.Properties())

		require.NoError(t, loader.Load(context.Background(), s, append(salesClasses, "Order")))
		assert.Equal(t, 5, s.Count())
		assert.Same(t, order, mustClass(t, s, "test_Order"))
		assert.Len(t, order.Properties(), before)
	})

	t.Run("ancestors are linked nearest first", func(t *testing.T) {
		s := loadSession(t, NewLoader(newSalesCatalog(t)), salesClasses...)
		customer := mustClass(t, s, "test_Customer")
		base := mustClass(t, s, "BaseEntity")

		assert.Equal(t, []*ClassNode{base}, customer.Ancestors())
		assert.True(t, customer.IsA(base))
		assert.False(t, base.IsA(customer))
	})

	t.Run("unregistered ancestors are skipped", func(t *testing.T) {
		s := loadSession(t, NewLoader(newSalesCatalog(t)), "Customer", "Order", "OrderLine", "Address")
		customer := mustClass(t, s, "test_Customer")

		assert.Empty(t, customer.Ancestors())
		_, ok := customer.Property("id")
		assert.False(t, ok)
	})
}

func TestLoader_Stores(t *testing.T) {
	t.Run("class stores follow class markers", func(t *testing.T) {
		s := loadSession(t, NewLoader(newSalesCatalog(t)), append(salesClasses, "Summary")...)

		tests := []struct {
			class string
			store string
		}{
			{"test_Customer", StoreMain},
			{"test_Address", StoreMain},
			{"BaseEntity", StoreUndefined},
			{"test_Summary", StoreNoop},
		}
		for _, tt := range tests {
			t.Run(tt.class, func(t *testing.T) {
				assert.Equal(t, tt.store, mustClass(t, s, tt.class).Store().Name())
			})
		}
	})

	t.Run("non-persistent property of a persistent class is demoted", func(t *testing.T) {
		s := loadSession(t, NewLoader(newSalesCatalog(t)), salesClasses...)
		customer := mustClass(t, s, "test_Customer")

		assert.Equal(t, StoreUndefined, mustProperty(t, customer, "notes").Store().Name())
		assert.Equal(t, StoreMain, mustProperty(t, customer, "name").Store().Name())
	})

	t.Run("explicit store must be known", func(t *testing.T) {
		err := NewLoader(newSalesCatalog(t)).Load(context.Background(), NewSession(), []string{"Archived"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownStore)

		var loadErr *LoadError
		require.True(t, errors.As(err, &loadErr))
		assert.Equal(t, PhaseAncestorsLinked, loadErr.Phase)
		assert.Equal(t, "test_Archived", loadErr.Class)
	})

	t.Run("explicit store resolves through the registry", func(t *testing.T) {
		s := loadSession(t, NewLoader(newSalesCatalog(t), WithStores(NewStores("archive"))), "Archived")
		assert.Equal(t, "archive", mustClass(t, s, "test_Archived").Store().Name())
	})
}

func TestLoader_Properties(t *testing.T) {
	s := loadSession(t, NewLoader(newSalesCatalog(t), WithSystemInterfaces(versionedType)), salesClasses...)
	customer := mustClass(t, s, "test_Customer")
	order := mustClass(t, s, "test_Order")

	t.Run("unmarked fields are ignored", func(t *testing.T) {
		_, ok := customer.Property("ignored")
		assert.False(t, ok)
	})

	t.Run("collections are loaded after scalar fields", func(t *testing.T) {
		var names []string
		for _, p := range customer.OwnProperties() {
			names = append(names, p.Name())
		}
		assert.Equal(t, []string{"name", "notes", "address", "orders"}, names)
	})

	t.Run("inherited properties follow own properties", func(t *testing.T) {
		props := customer.Properties()
		require.Len(t, props, 6)
		assert.Equal(t, "id", props[4].Name())
		assert.Equal(t, "version", props[5].Name())
		assert.False(t, customer.IsOwn(props[4]))
	})

	t.Run("column only marker", func(t *testing.T) {
		name := mustProperty(t, customer, "name")
		assert.Equal(t, CardinalityNone, name.Cardinality())
		assert.True(t, name.Mandatory())
		assert.Equal(t, KindDatatype, name.Kind())
		assert.Equal(t, "datatype:string", name.Range().String())
	})

	t.Run("to-one association", func(t *testing.T) {
		p := mustProperty(t, order, "customer")
		assert.Equal(t, CardinalityManyToOne, p.Cardinality())
		assert.True(t, p.Mandatory())
		assert.Equal(t, KindAssociation, p.Kind())
		assert.Same(t, customer, AsClass(p.Range()))
	})

	t.Run("composition collection of values", func(t *testing.T) {
		p := mustProperty(t, order, "lines")
		assert.Equal(t, CardinalityOneToMany, p.Cardinality())
		assert.True(t, p.Range().Ordered())
		assert.Equal(t, KindComposition, p.Kind())
		assert.Equal(t, "test_OrderLine", AsClass(p.Range()).Name())
	})

	t.Run("embedded value", func(t *testing.T) {
		p := mustProperty(t, customer, "address")
		assert.Equal(t, CardinalityOneToOne, p.Cardinality())
		assert.Equal(t, "test_Address", AsClass(p.Range()).Name())
	})

	t.Run("enum through reader method", func(t *testing.T) {
		p := mustProperty(t, order, "status")
		require.Equal(t, KindEnum, p.Kind())
		enum := p.Range().(*EnumRange).Enumeration
		assert.Equal(t, []string{"new", "paid", "shipped"}, enum.Values())
		assert.False(t, p.ReadOnly())
	})

	t.Run("enum field", func(t *testing.T) {
		p := mustProperty(t, order, "kind")
		assert.Equal(t, KindEnum, p.Kind())
		assert.True(t, p.Mandatory())
		msg, ok := p.Annotation(AnnotationNotNullMessage)
		assert.True(t, ok)
		assert.Equal(t, defaultNotNullMessage, msg)
	})

	t.Run("number format wraps the datatype", func(t *testing.T) {
		p := mustProperty(t, order, "amount")
		dt, ok := p.Range().(*DatatypeRange).Datatype.(*AdaptiveNumberDatatype)
		require.True(t, ok)
		assert.Equal(t, "#,##0.00", dt.Format)
		assert.Equal(t, "double", dt.Name())
	})

	t.Run("temporal override", func(t *testing.T) {
		p := mustProperty(t, order, "created")
		assert.Equal(t, "datatype:date", p.Range().String())
		v, _ := p.Annotation(AnnotationTemporal)
		assert.Equal(t, "date", v)
	})

	t.Run("accessor property", func(t *testing.T) {
		p := mustProperty(t, order, "total")
		assert.Equal(t, ElementAccessor, p.Element().Kind)
		assert.Equal(t, "datatype:double", p.Range().String())
		assert.True(t, p.ReadOnly())
		assert.False(t, p.Mandatory())
		assert.Equal(t, StoreUndefined, p.Store().Name())
	})

	t.Run("primary key is inherited", func(t *testing.T) {
		pk, ok := order.PrimaryKey()
		require.True(t, ok)
		assert.Equal(t, "id", pk.Name())
		v, _ := pk.Annotation(AnnotationPrimaryKey)
		assert.Equal(t, true, v)
		v, _ = pk.Annotation(AnnotationSystem)
		assert.Equal(t, true, v)
	})

	t.Run("system interface getter", func(t *testing.T) {
		v, ok := mustProperty(t, order, "version").Annotation(AnnotationSystem)
		assert.True(t, ok)
		assert.Equal(t, true, v)
		_, ok = mustProperty(t, order, "number").Annotation(AnnotationSystem)
		assert.False(t, ok)
	})

	t.Run("column length", func(t *testing.T) {
		v, ok := mustProperty(t, customer, "name").Annotation(AnnotationLength)
		assert.True(t, ok)
		assert.Equal(t, 100, v)
	})
}

func TestLoader_Validation(t *testing.T) {
	s := loadSession(t, NewLoader(newSalesCatalog(t)), salesClasses...)
	order := mustClass(t, s, "test_Order")

	t.Run("ui scoped not-null", func(t *testing.T) {
		p := mustProperty(t, order, "number")
		assert.False(t, p.Mandatory())
		msg, _ := p.Annotation(AnnotationNotNullMessage)
		assert.Equal(t, "number required", msg)
		ui, _ := p.Annotation(AnnotationNotNullUIComponent)
		assert.Equal(t, true, ui)
	})

	t.Run("other group is recorded but not applied", func(t *testing.T) {
		p := mustProperty(t, order, "code")
		assert.False(t, p.Mandatory())
		_, ok := p.Annotation(AnnotationNotNullMessage)
		assert.False(t, ok)

		constraints := p.Constraints()
		require.Len(t, constraints, 1)
		assert.Equal(t, ConstraintNotNull, constraints[0].Kind)
		groups, err := constraints[0].Groups()
		require.NoError(t, err)
		assert.Equal(t, []string{"other"}, groups)
	})

	t.Run("bounds", func(t *testing.T) {
		line := mustClass(t, s, "test_OrderLine")
		qty := mustProperty(t, line, "quantity")
		v, _ := qty.Annotation(AnnotationMin)
		assert.Equal(t, int64(1), v)
		v, _ = qty.Annotation(AnnotationMax)
		assert.Equal(t, int64(99), v)

		name := mustProperty(t, mustClass(t, s, "test_Customer"), "name")
		v, _ = name.Annotation(AnnotationSizeMin)
		assert.Equal(t, int64(1), v)
		v, _ = name.Annotation(AnnotationSizeMax)
		assert.Equal(t, int64(100), v)
	})
}

func TestLoader_Inverses(t *testing.T) {
	for _, order := range [][]string{{"Author", "Book"}, {"Book", "Author"}} {
		t.Run(order[0]+" first", func(t *testing.T) {
			s := loadSession(t, NewLoader(newSalesCatalog(t)), order...)
			books := mustProperty(t, mustClass(t, s, "test_Author"), "books")
			author := mustProperty(t, mustClass(t, s, "test_Book"), "author")

			assert.Same(t, author, books.Inverse())
			assert.Same(t, books, author.Inverse())
		})
	}

	t.Run("to-many is never mandatory", func(t *testing.T) {
		s := loadSession(t, NewLoader(newSalesCatalog(t)), "Author", "Book")
		books := mustProperty(t, mustClass(t, s, "test_Author"), "books")
		assert.False(t, books.Mandatory())
	})

	t.Run("sales domain links both directions", func(t *testing.T) {
		s := loadSession(t, NewLoader(newSalesCatalog(t)), salesClasses...)
		orders := mustProperty(t, mustClass(t, s, "test_Customer"), "orders")
		customer := mustProperty(t, mustClass(t, s, "test_Order"), "customer")

		assert.Same(t, customer, orders.Inverse())
		assert.Same(t, orders, customer.Inverse())
	})

	t.Run("conflicting inverses fail", func(t *testing.T) {
		err := NewLoader(newSalesCatalog(t)).Load(context.Background(), NewSession(), []string{"Ship", "Sailor"})
		assert.ErrorIs(t, err, ErrAsymmetricInverse)
	})

	t.Run("missing inverse property fails", func(t *testing.T) {
		err := NewLoader(newSalesCatalog(t)).Load(context.Background(), NewSession(), []string{"Misnamed", "Book", "Author"})
		assert.ErrorIs(t, err, ErrUnresolvedInverse)

		var loadErr *LoadError
		require.True(t, errors.As(err, &loadErr))
		assert.Equal(t, "test_Misnamed", loadErr.Class)
		assert.Equal(t, "books", loadErr.Property)
	})
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		classes []string
		want    error
	}{
		{"association to an unregistered type", []string{"Lost"}, ErrUnknownRangeClass},
		{"association target not loaded", []string{"Book"}, ErrUnknownRangeClass},
		{"accessor with arguments", []string{"Invoice"}, ErrUnsupportedPropertyShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewLoader(newSalesCatalog(t)).Load(context.Background(), NewSession(), tt.classes)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("unreadable group list", func(t *testing.T) {
		type broken struct {
			_    Entity `meta:"name:test_Broken"`
			Name string `persist:"column" validate:"notnull@"`
		}
		catalog := NewTypeCatalog()
		catalog.MustRegister(broken{}, WithName("Broken"))

		err := NewLoader(catalog).Load(context.Background(), NewSession(), []string{"Broken"})
		assert.ErrorIs(t, err, ErrUnreadableAnnotation)
	})
}

func TestLoader_Duplicates(t *testing.T) {
	logger, logs := newObservedLogger()
	s := loadSession(t, NewLoader(newSalesCatalog(t), WithLogger(logger)), "Duplicate")
	c := mustClass(t, s, "test_Duplicate")

	var names []string
	for _, p := range c.OwnProperties() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"id", "value", "values"}, names)
	assert.Equal(t, 2, logs.FilterMessage("duplicate property skipped").Len())

	values := mustProperty(t, c, "values")
	assert.Equal(t, CardinalityOneToMany, values.Cardinality())
	assert.Equal(t, "datatype:int", values.Range().String())
	assert.True(t, values.Range().Ordered())
}

func TestLoader_ModelObject(t *testing.T) {
	s := loadSession(t, NewLoader(newSalesCatalog(t)), "Summary")
	c := mustClass(t, s, "test_Summary")

	label := mustProperty(t, c, "label")
	assert.True(t, label.Mandatory())
	assert.Equal(t, StoreNoop, label.Store().Name())

	count := mustProperty(t, c, "count")
	assert.True(t, count.ReadOnly())
}

func TestLoader_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer provider.Shutdown(context.Background())

	loader := NewLoader(newSalesCatalog(t), WithTracer(provider.Tracer("test")))
	loadSession(t, loader, salesClasses...)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Equal(t, []string{
		"metamodel.classes_registered",
		"metamodel.ancestors_linked",
		"metamodel.properties_loaded",
		"metamodel.fully_resolved",
		"metamodel.Load",
	}, names)
}
