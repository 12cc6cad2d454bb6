package orders_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/ordernotify/internal/orders"
	"github.com/rzbill/ordernotify/internal/orders/orderstest"
	pebblestore "github.com/rzbill/ordernotify/internal/storage/pebble"
)

func openDB(t *testing.T, dir string) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	require.NoError(t, err)
	return db
}

func TestPebbleStore(t *testing.T) {
	orderstest.Run(t, func(t *testing.T) orders.Store {
		db := openDB(t, t.TempDir())
		t.Cleanup(func() { _ = db.Close() })
		return orders.NewPebbleStore(db)
	})
}

func TestPebbleIDsArePerTenant(t *testing.T) {
	db := openDB(t, t.TempDir())
	defer db.Close()
	s := orders.NewPebbleStore(db)
	ctx := context.Background()

	a1, err := s.Create(ctx, orders.Order{TenantID: "a"})
	require.NoError(t, err)
	a2, err := s.Create(ctx, orders.Order{TenantID: "a"})
	require.NoError(t, err)
	b1, err := s.Create(ctx, orders.Order{TenantID: "b"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), a1.ID)
	assert.Equal(t, int64(2), a2.ID)
	assert.Equal(t, int64(1), b1.ID)
	assert.Equal(t, "2", a2.OrderNumber)
}

func TestPebbleLastIDSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir)
	_, err := orders.NewPebbleStore(db).Create(context.Background(), orders.Order{TenantID: "a"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db = openDB(t, dir)
	defer db.Close()
	o, err := orders.NewPebbleStore(db).Create(context.Background(), orders.Order{TenantID: "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), o.ID)
}

func TestTerminal(t *testing.T) {
	assert.True(t, orders.StatusCompleted.Terminal())
	assert.True(t, orders.StatusCancelled.Terminal())
	assert.False(t, orders.StatusPending.Terminal())
	assert.False(t, orders.StatusReady.Terminal())
}
