// Package orderstest holds the behavioral suite every orders.Store must pass.
package orderstest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/ordernotify/internal/orders"
)

// Run executes the suite. newStore must return a store with no orders for the
// tenants "acme" and "globex".
func Run(t *testing.T, newStore func(t *testing.T) orders.Store) {
	t.Run("ListSinceSkipsTerminalInIDOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		var created []orders.Order
		for _, st := range []orders.Status{orders.StatusPending, orders.StatusCancelled, orders.StatusConfirmed, orders.StatusCompleted, orders.StatusReady} {
			o, err := s.Create(ctx, orders.Order{TenantID: "acme", CustomerName: "c", TotalAmount: 12.5, Status: st})
			require.NoError(t, err)
			created = append(created, o)
		}
		_, err := s.Create(ctx, orders.Order{TenantID: "globex"})
		require.NoError(t, err)

		evs, err := s.ListSince(ctx, "acme", 0, 10)
		require.NoError(t, err)
		assert.Equal(t, []int64{created[0].ID, created[2].ID, created[4].ID}, IDs(evs))
		for _, e := range evs {
			assert.Equal(t, "acme", e.TenantID)
			assert.False(t, e.Status.Terminal())
		}

		evs, err = s.ListSince(ctx, "acme", created[2].ID, 10)
		require.NoError(t, err)
		assert.Equal(t, []int64{created[4].ID}, IDs(evs))

		evs, err = s.ListSince(ctx, "acme", 0, 2)
		require.NoError(t, err)
		assert.Len(t, evs, 2)

		evs, err = s.ListSince(ctx, "acme", created[4].ID, 10)
		require.NoError(t, err)
		assert.Empty(t, evs)
	})

	t.Run("MaxActiveIDIgnoresTerminal", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id, err := s.MaxActiveID(ctx, "acme")
		require.NoError(t, err)
		assert.Zero(t, id)

		a, err := s.Create(ctx, orders.Order{TenantID: "acme"})
		require.NoError(t, err)
		_, err = s.Create(ctx, orders.Order{TenantID: "acme", Status: orders.StatusCancelled})
		require.NoError(t, err)

		id, err = s.MaxActiveID(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, a.ID, id)
	})

	t.Run("CreateFillsDefaults", func(t *testing.T) {
		s := newStore(t)
		o, err := s.Create(context.Background(), orders.Order{TenantID: "acme", CustomerName: "  Ann "})
		require.NoError(t, err)
		assert.Positive(t, o.ID)
		assert.NotEmpty(t, o.OrderNumber)
		assert.Equal(t, orders.StatusPending, o.Status)
		assert.Equal(t, "Ann", o.CustomerName)
		assert.False(t, o.CreatedAt.IsZero())
	})

	t.Run("CreateRejectsInvalid", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(context.Background(), orders.Order{TenantID: ""})
		assert.True(t, errors.Is(err, orders.ErrInvalidOrder))
		_, err = s.Create(context.Background(), orders.Order{TenantID: "acme", Status: "lost"})
		assert.True(t, errors.Is(err, orders.ErrInvalidOrder))
	})
}

// IDs extracts order ids in order.
func IDs(evs []orders.SummaryEvent) []int64 {
	out := make([]int64, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.OrderID)
	}
	return out
}
