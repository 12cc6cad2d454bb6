package broadcast

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/rzbill/ordernotify/internal/tenant"
	"github.com/rzbill/ordernotify/pkg/log"
)

const pgPingInterval = 90 * time.Second

// PGSource fans Postgres notifications out to local subscribers. It holds one
// LISTEN connection per process and listens on a tenant channel only while
// at least one local subscriber exists.
type PGSource struct {
	db       *sql.DB
	listener *pq.Listener
	hub      *Hub
	logger   log.Logger

	mu   sync.Mutex
	refs map[string]int

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewPGSource opens the LISTEN connection on url. db is used for Publish.
func NewPGSource(db *sql.DB, url string, buffer int, logger log.Logger) *PGSource {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = logger.WithComponent("broadcast.postgres")
	s := &PGSource{
		db:     db,
		hub:    NewHub(buffer),
		logger: logger,
		refs:   make(map[string]int),
		done:   make(chan struct{}),
	}
	s.listener = pq.NewListener(url, time.Second, time.Minute, s.onEvent)
	s.wg.Add(1)
	go s.loop()
	return s
}

func (s *PGSource) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnectionAttemptFailed:
		s.logger.Warn("listen connection attempt failed", log.Err(err))
	case pq.ListenerEventDisconnected:
		s.logger.Warn("listen connection lost", log.Err(err))
	case pq.ListenerEventReconnected:
		s.logger.Info("listen connection re-established")
	}
}

func (s *PGSource) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(pgPingInterval)
	defer ticker.Stop()
	for {
		select {
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			// nil after a reconnect; notifications sent meanwhile are lost.
			if n == nil {
				s.hub.MarkGaps()
				continue
			}
			id := strings.TrimPrefix(n.Channel, tenant.Channel(""))
			_ = s.hub.Publish(context.Background(), id, []byte(n.Extra))
		case <-ticker.C:
			go func() {
				if err := s.listener.Ping(); err != nil {
					s.logger.Debug("listen ping failed", log.Err(err))
				}
			}()
		case <-s.done:
			return
		}
	}
}

// Publish issues pg_notify on the tenant channel.
func (s *PGSource) Publish(ctx context.Context, tenantID string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, tenant.Channel(tenantID), string(payload))
	return err
}

func (s *PGSource) Subscribe(ctx context.Context, tenantID string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return nil, ErrClosed
	default:
	}
	if s.refs[tenantID] == 0 {
		if err := s.listener.Listen(tenant.Channel(tenantID)); err != nil && !errors.Is(err, pq.ErrChannelAlreadyOpen) {
			return nil, err
		}
	}
	sub, err := s.hub.Subscribe(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	s.refs[tenantID]++
	inner := sub
	return newSubscription(inner.C, inner.gap, func() {
		_ = inner.Close()
		s.release(tenantID)
	}), nil
}

func (s *PGSource) release(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[tenantID]--
	if s.refs[tenantID] > 0 {
		return
	}
	delete(s.refs, tenantID)
	select {
	case <-s.done:
		return
	default:
	}
	if err := s.listener.Unlisten(tenant.Channel(tenantID)); err != nil && !errors.Is(err, pq.ErrChannelNotOpen) {
		s.logger.Warn("unlisten failed", log.Str(log.TenantKey, tenantID), log.Err(err))
	}
}

// Close stops the listener and closes every subscription.
func (s *PGSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.done)
		s.mu.Unlock()
		err = s.listener.Close()
		s.wg.Wait()
		_ = s.hub.Close()
	})
	return err
}
