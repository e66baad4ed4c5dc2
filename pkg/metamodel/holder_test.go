package metamodel

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHolder(t *testing.T) {
	t.Run("publishes after a successful load", func(t *testing.T) {
		holder := NewHolder(NewLoader(newSalesCatalog(t)))
		assert.Nil(t, holder.Session())

		s, err := holder.Reload(context.Background(), salesClasses)
		require.NoError(t, err)
		assert.Same(t, s, holder.Session())
	})

	t.Run("failed reload keeps the previous session", func(t *testing.T) {
		holder := NewHolder(NewLoader(newSalesCatalog(t)))
		first, err := holder.Reload(context.Background(), salesClasses)
		require.NoError(t, err)

		_, err = holder.Reload(context.Background(), []string{"Lost"})
		require.ErrorIs(t, err, ErrUnknownRangeClass)
		assert.Same(t, first, holder.Session())
	})

	t.Run("every reload builds a new session", func(t *testing.T) {
		holder := NewHolder(NewLoader(newSalesCatalog(t)))
		first, err := holder.Reload(context.Background(), salesClasses)
		require.NoError(t, err)
		second, err := holder.Reload(context.Background(), salesClasses)
		require.NoError(t, err)

		assert.NotEqual(t, first.ID(), second.ID())
		assert.NotSame(t, mustClass(t, first, "test_Order"), mustClass(t, second, "test_Order"))
	})

	t.Run("concurrent readers and reloads", func(t *testing.T) {
		holder := NewHolder(NewLoader(newSalesCatalog(t)))
		_, err := holder.Reload(context.Background(), salesClasses)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, _ = holder.Reload(context.Background(), salesClasses)
			}()
			go func() {
				defer wg.Done()
				s := holder.Session()
				if s.Count() != 5 {
					t.Errorf("expected 5 classes, got %d", s.Count())
				}
			}()
		}
		wg.Wait()
	})
}
