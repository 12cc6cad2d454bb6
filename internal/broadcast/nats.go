package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rzbill/ordernotify/internal/metrics"
	"github.com/rzbill/ordernotify/pkg/log"
)

// SubjectPrefix prefixes the tenant id to form the NATS subject.
const SubjectPrefix = "ordernotify.orders."

// NATSSource uses one NATS subscription per local subscriber.
type NATSSource struct {
	nc     *nats.Conn
	buffer int
	logger log.Logger

	mu     sync.Mutex
	subs   map[*nats.Subscription]*natsSub
	closed bool
}

type natsSub struct {
	gap   atomic.Bool
	wake  func()
	close func()
}

// NewNATSSource connects to url.
func NewNATSSource(url string, buffer int, logger log.Logger) (*NATSSource, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = logger.WithComponent("broadcast.nats")
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &NATSSource{buffer: buffer, logger: logger, subs: make(map[*nats.Subscription]*natsSub)}
	nc, err := nats.Connect(url,
		nats.Name("ordernotify"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", log.Err(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", log.Str("url", c.ConnectedUrl()))
			s.markGaps()
		}),
	)
	if err != nil {
		return nil, err
	}
	s.nc = nc
	return s, nil
}

// markGaps flags every subscription after a reconnect; core NATS does not
// redeliver what was published while disconnected.
func (s *NATSSource) markGaps() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ns := range s.subs {
		ns.gap.Store(true)
		ns.wake()
	}
}

// Subject returns the NATS subject for tenantID.
func Subject(tenantID string) string { return SubjectPrefix + tenantID }

func (s *NATSSource) Publish(ctx context.Context, tenantID string, payload []byte) error {
	if err := s.nc.Publish(Subject(tenantID), payload); err != nil {
		return err
	}
	return s.nc.FlushWithContext(ctx)
}

func (s *NATSSource) Subscribe(ctx context.Context, tenantID string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	ch := make(chan []byte, s.buffer)
	var (
		chMu     sync.Mutex
		chClosed bool
	)
	ns := &natsSub{}
	send := func(b []byte) {
		chMu.Lock()
		defer chMu.Unlock()
		if chClosed {
			return
		}
		select {
		case ch <- b:
		default:
			if b != nil {
				ns.gap.Store(true)
				metrics.BroadcastDroppedTotal.Inc()
			}
		}
	}
	ns.wake = func() { send(nil) }
	sub, err := s.nc.Subscribe(Subject(tenantID), func(m *nats.Msg) { send(m.Data) })
	if err != nil {
		return nil, err
	}
	// Make sure the server knows about the interest before returning.
	if err := s.nc.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}
	ns.close = func() {
		chMu.Lock()
		defer chMu.Unlock()
		if !chClosed {
			chClosed = true
			close(ch)
		}
	}
	s.subs[sub] = ns
	return newSubscription(ch, &ns.gap, func() {
		_ = sub.Unsubscribe()
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
		ns.close()
	}), nil
}

// Close closes the connection and every subscription channel.
func (s *NATSSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := s.subs
	s.subs = make(map[*nats.Subscription]*natsSub)
	s.mu.Unlock()
	s.nc.Close()
	for _, ns := range pending {
		ns.close()
	}
	return nil
}
