// Package subscriptionstest holds the behavioral suite every Registry
// implementation must pass.
package subscriptionstest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/ordernotify/internal/subscriptions"
)

// Run executes the suite. newRegistry must return an empty registry.
func Run(t *testing.T, newRegistry func(t *testing.T) subscriptions.Registry) {
	t.Run("UpsertIsIdempotentAndRefreshesKeys", func(t *testing.T) {
		r := newRegistry(t)
		ctx := context.Background()
		id1, err := r.Upsert(ctx, "acme", "https://push.example/a", subscriptions.Keys{P256dh: "k1", Auth: "a1"}, "ua1")
		require.NoError(t, err)
		id2, err := r.Upsert(ctx, "acme", "https://push.example/a", subscriptions.Keys{P256dh: "k2", Auth: "a2"}, "ua2")
		require.NoError(t, err)
		assert.Equal(t, id1, id2)

		subs, err := r.ListActive(ctx, "acme")
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, "k2", subs[0].Keys.P256dh)
		assert.Equal(t, "a2", subs[0].Keys.Auth)
		assert.Equal(t, "ua2", subs[0].UserAgent)
		assert.True(t, subs[0].Active)
	})

	t.Run("SameEndpointDifferentTenants", func(t *testing.T) {
		r := newRegistry(t)
		ctx := context.Background()
		a, err := r.Upsert(ctx, "acme", "https://push.example/shared", subscriptions.Keys{P256dh: "k", Auth: "a"}, "")
		require.NoError(t, err)
		b, err := r.Upsert(ctx, "globex", "https://push.example/shared", subscriptions.Keys{P256dh: "k", Auth: "a"}, "")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)

		subs, err := r.ListActive(ctx, "globex")
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, "globex", subs[0].TenantID)
	})

	t.Run("DeactivateHidesAndResubscribeRestores", func(t *testing.T) {
		r := newRegistry(t)
		ctx := context.Background()
		_, err := r.Upsert(ctx, "acme", "https://push.example/d", subscriptions.Keys{P256dh: "k", Auth: "a"}, "")
		require.NoError(t, err)
		require.NoError(t, r.Deactivate(ctx, "https://push.example/d"))

		subs, err := r.ListActive(ctx, "acme")
		require.NoError(t, err)
		assert.Empty(t, subs)

		_, err = r.Upsert(ctx, "acme", "https://push.example/d", subscriptions.Keys{P256dh: "k", Auth: "a"}, "")
		require.NoError(t, err)
		subs, err = r.ListActive(ctx, "acme")
		require.NoError(t, err)
		assert.Len(t, subs, 1)
	})

	t.Run("DeactivateUnknown", func(t *testing.T) {
		r := newRegistry(t)
		err := r.Deactivate(context.Background(), "https://push.example/none")
		assert.True(t, errors.Is(err, subscriptions.ErrNotFound))
	})

	t.Run("RemoveDeletes", func(t *testing.T) {
		r := newRegistry(t)
		ctx := context.Background()
		keep, err := r.Upsert(ctx, "acme", "https://push.example/keep", subscriptions.Keys{P256dh: "k", Auth: "a"}, "")
		require.NoError(t, err)
		gone, err := r.Upsert(ctx, "acme", "https://push.example/gone", subscriptions.Keys{P256dh: "k", Auth: "a"}, "")
		require.NoError(t, err)

		require.NoError(t, r.Remove(ctx, gone))
		subs, err := r.ListActive(ctx, "acme")
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, keep, subs[0].ID)

		assert.True(t, errors.Is(r.Remove(ctx, gone), subscriptions.ErrNotFound))

		again, err := r.Upsert(ctx, "acme", "https://push.example/gone", subscriptions.Keys{P256dh: "k", Auth: "a"}, "")
		require.NoError(t, err)
		assert.NotEqual(t, gone, again)
	})

	t.Run("ListActiveEmptyTenant", func(t *testing.T) {
		r := newRegistry(t)
		subs, err := r.ListActive(context.Background(), "nobody")
		require.NoError(t, err)
		assert.Empty(t, subs)
	})
}
