package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, sub *Subscription) []byte {
	t.Helper()
	select {
	case b, ok := <-sub.C:
		require.True(t, ok, "channel closed")
		return b
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestHubTenantIsolation(t *testing.T) {
	h := NewHub(4)
	defer h.Close()
	ctx := context.Background()
	a, err := h.Subscribe(ctx, "a")
	require.NoError(t, err)
	b, err := h.Subscribe(ctx, "b")
	require.NoError(t, err)

	require.NoError(t, h.Publish(ctx, "a", []byte("for-a")))
	assert.Equal(t, "for-a", string(recv(t, a)))
	select {
	case m := <-b.C:
		t.Fatalf("tenant b received %q", m)
	default:
	}
}

func TestHubFanOut(t *testing.T) {
	h := NewHub(4)
	defer h.Close()
	ctx := context.Background()
	s1, _ := h.Subscribe(ctx, "a")
	s2, _ := h.Subscribe(ctx, "a")
	require.NoError(t, h.Publish(ctx, "a", []byte("x")))
	assert.Equal(t, "x", string(recv(t, s1)))
	assert.Equal(t, "x", string(recv(t, s2)))
	assert.Equal(t, 2, h.Subscribers("a"))
}

func TestHubDropsWhenFull(t *testing.T) {
	h := NewHub(1)
	defer h.Close()
	ctx := context.Background()
	s, _ := h.Subscribe(ctx, "a")
	require.NoError(t, h.Publish(ctx, "a", []byte("1")))
	require.NoError(t, h.Publish(ctx, "a", []byte("2")))
	assert.Equal(t, "1", string(recv(t, s)))
	select {
	case m := <-s.C:
		t.Fatalf("unexpected %q", m)
	default:
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	h := NewHub(1)
	s, _ := h.Subscribe(context.Background(), "a")
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, ok := <-s.C
	assert.False(t, ok)
	assert.Zero(t, h.Subscribers("a"))
	require.NoError(t, h.Close())
	require.NoError(t, s.Close())
}

func TestHubCloseClosesSubscribers(t *testing.T) {
	h := NewHub(1)
	s, _ := h.Subscribe(context.Background(), "a")
	require.NoError(t, h.Close())
	_, ok := <-s.C
	assert.False(t, ok)
	_, err := h.Subscribe(context.Background(), "a")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, h.Publish(context.Background(), "a", nil), ErrClosed)
}
