package ordersvc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/ordernotify/internal/broadcast"
	"github.com/rzbill/ordernotify/internal/detector"
	"github.com/rzbill/ordernotify/internal/orders"
	"github.com/rzbill/ordernotify/internal/retry"
	"github.com/rzbill/ordernotify/internal/services/orderstream"
	"github.com/rzbill/ordernotify/internal/services/push"
	pebblestore "github.com/rzbill/ordernotify/internal/storage/pebble"
	"github.com/rzbill/ordernotify/pkg/log"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []push.Notification
}

func (d *recordingDispatcher) Dispatch(_ context.Context, _ string, n push.Notification) push.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, n)
	return push.Result{Succeeded: 1}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, []byte) error {
	return errors.New("broadcast down")
}

func newStore(t *testing.T) orders.Store {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return orders.NewPebbleStore(db)
}

func TestCreatePublishesAndDispatches(t *testing.T) {
	hub := broadcast.NewHub(4)
	defer hub.Close()
	sub, err := hub.Subscribe(context.Background(), "acme")
	require.NoError(t, err)
	disp := &recordingDispatcher{}
	svc := New(newStore(t), Options{Publisher: hub, Dispatcher: disp})

	o, err := svc.Create(context.Background(), orders.Order{TenantID: "acme", CustomerName: " Ada ", TotalAmount: 12.5})
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, int64(1), o.ID)
	assert.Equal(t, "Ada", o.CustomerName)
	assert.Equal(t, orders.StatusPending, o.Status)

	var ev orders.SummaryEvent
	require.NoError(t, json.Unmarshal(<-sub.C, &ev))
	assert.Equal(t, int64(1), ev.OrderID)
	assert.Equal(t, "acme", ev.TenantID)

	require.Len(t, disp.calls, 1)
	assert.Equal(t, "New order #1", disp.calls[0].Title)
	assert.Equal(t, "Ada · pickup · $12.50", disp.calls[0].Body)
	assert.Equal(t, "/orders/1", disp.calls[0].TargetURL)
}

func TestCreateTerminalIsSilent(t *testing.T) {
	hub := broadcast.NewHub(4)
	defer hub.Close()
	sub, err := hub.Subscribe(context.Background(), "acme")
	require.NoError(t, err)
	disp := &recordingDispatcher{}
	svc := New(newStore(t), Options{Publisher: hub, Dispatcher: disp})

	_, err = svc.Create(context.Background(), orders.Order{TenantID: "acme", Status: orders.StatusCancelled})
	require.NoError(t, err)
	svc.Wait()

	assert.Empty(t, disp.calls)
	select {
	case <-sub.C:
		t.Fatal("terminal order was published")
	default:
	}
}

func TestCreateSurvivesPublishFailure(t *testing.T) {
	disp := &recordingDispatcher{}
	svc := New(newStore(t), Options{Publisher: failingPublisher{}, Dispatcher: disp})

	o, err := svc.Create(context.Background(), orders.Order{TenantID: "acme"})
	require.NoError(t, err)
	svc.Wait()
	assert.Equal(t, int64(1), o.ID)
	assert.Len(t, disp.calls, 1)
}

func TestCreateRejectsInvalid(t *testing.T) {
	svc := New(newStore(t), Options{})
	_, err := svc.Create(context.Background(), orders.Order{TenantID: ""})
	assert.ErrorIs(t, err, orders.ErrInvalidOrder)
	_, err = svc.Create(context.Background(), orders.Order{TenantID: "acme", Status: "lost"})
	assert.ErrorIs(t, err, orders.ErrInvalidOrder)
}

type idSink struct {
	ctx context.Context

	mu  sync.Mutex
	ids []int64
}

func (s *idSink) Send(f orderstream.Frame) error {
	if f.Type == orderstream.FrameNewOrder {
		s.mu.Lock()
		s.ids = append(s.ids, f.OrderID)
		s.mu.Unlock()
	}
	return nil
}

func (s *idSink) Flush() error             { return nil }
func (s *idSink) Context() context.Context { return s.ctx }

func (s *idSink) snapshot() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.ids...)
}

func TestConcurrentCreatesReachNotifySession(t *testing.T) {
	const n = 300
	store := newStore(t)
	hub := broadcast.NewHub(8)
	defer hub.Close()
	policy := retry.Policy{Attempts: 2, Base: time.Millisecond}
	streams := orderstream.New(store, &detector.Factory{
		Strategy: "notify",
		Store:    store,
		Source:   hub,
		Retry:    policy,
		Logger:   log.NewNopLogger(),
	}, orderstream.Options{Heartbeat: time.Hour, Retry: policy, Logger: log.NewNopLogger()})

	sess, err := streams.Open(context.Background(), "acme", "")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	sink := &idSink{ctx: ctx}
	done := make(chan error, 1)
	go func() { done <- sess.Run(sink) }()
	require.Eventually(t, func() bool { return sess.State() == orderstream.StateOpen }, time.Second, 5*time.Millisecond)

	svc := New(store, Options{Publisher: hub})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), orders.Order{TenantID: "acme"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return len(sink.snapshot()) >= n }, 5*time.Second, 10*time.Millisecond)
	seen := make(map[int64]int, n)
	for _, id := range sink.snapshot() {
		seen[id]++
	}
	for id := int64(1); id <= n; id++ {
		assert.Equal(t, 1, seen[id], "order %d", id)
	}
	assert.Equal(t, int64(n), sess.Cursor())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close")
	}
}

func TestPublishFollowsIDOrder(t *testing.T) {
	const n = 200
	hub := broadcast.NewHub(n)
	defer hub.Close()
	sub, err := hub.Subscribe(context.Background(), "acme")
	require.NoError(t, err)
	svc := New(newStore(t), Options{Publisher: hub})

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), orders.Order{TenantID: "acme"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for want := int64(1); want <= n; want++ {
		var ev orders.SummaryEvent
		require.NoError(t, json.Unmarshal(<-sub.C, &ev))
		require.Equal(t, want, ev.OrderID)
	}
}
