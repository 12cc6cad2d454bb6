package orderstream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rzbill/ordernotify/internal/detector"
	"github.com/rzbill/ordernotify/internal/orders"
	"github.com/rzbill/ordernotify/internal/retry"
	"github.com/rzbill/ordernotify/internal/tenant"
	"github.com/rzbill/ordernotify/pkg/log"
)

var (
	// ErrInvalidFilter is returned by Open for filters that do not compile.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrUnavailable is returned by Open when the cursor cannot be
	// initialized from storage.
	ErrUnavailable = errors.New("order stream unavailable")
	// ErrShuttingDown is returned by Open after Shutdown.
	ErrShuttingDown = errors.New("order stream shutting down")
)

// DetectorFactory builds one change detector per session.
type DetectorFactory interface {
	New(ctx context.Context, tenantID string) (detector.ChangeDetector, error)
}

// Options tunes sessions.
type Options struct {
	Heartbeat time.Duration
	Retry     retry.Policy
	Logger    log.Logger
}

// Service owns every open session.
type Service struct {
	store     orders.Store
	detectors DetectorFactory
	heartbeat time.Duration
	policy    retry.Policy
	logger    log.Logger

	base     context.Context
	stopBase context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	wg       sync.WaitGroup
}

// New returns a Service reading initial cursors from store.
func New(store orders.Store, detectors DetectorFactory, opts Options) *Service {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 30 * time.Second
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = retry.Default
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	base, stop := context.WithCancel(context.Background())
	return &Service{
		store:     store,
		detectors: detectors,
		heartbeat: opts.Heartbeat,
		policy:    opts.Retry,
		logger:    opts.Logger.WithComponent("orderstream"),
		base:      base,
		stopBase:  stop,
		sessions:  make(map[string]*Session),
	}
}

// Open performs the Connecting step: validate, subscribe the detector and
// initialize the cursor. The session is registered but emits nothing until
// Run.
func (s *Service) Open(ctx context.Context, tenantID, filterExpr string) (*Session, error) {
	if err := tenant.Validate(tenantID); err != nil {
		return nil, err
	}
	filter, err := newOrderFilter(filterExpr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrShuttingDown
	}

	// Subscribe before reading the cursor so nothing committed in between is
	// lost; overlap is discarded by the cursor.
	det, err := s.detectors.New(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	start, err := retry.Value(ctx, s.policy, func(ctx context.Context) (int64, error) {
		return s.store.MaxActiveID(ctx, tenantID)
	})
	if err != nil {
		_ = det.Close()
		return nil, fmt.Errorf("%w: initialize cursor: %v", ErrUnavailable, err)
	}

	sess := &Session{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		OpenedAt: time.Now().UTC(),
		svc:      s,
		det:      det,
		filter:   filter,
		cursor:   NewCursor(start),
	}
	sess.logger = s.logger.With(log.Tenant(tenantID), log.Str(log.SessionKey, sess.ID))
	sess.state.Store(int32(StateConnecting))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = det.Close()
		return nil, ErrShuttingDown
	}
	s.sessions[sess.ID] = sess
	s.wg.Add(1)
	s.mu.Unlock()
	sess.logger.Debug("session connecting", log.Int64("cursor", start))
	return sess, nil
}

func (s *Service) unregister(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess.ID)
	s.mu.Unlock()
	s.wg.Done()
}

// SessionInfo describes an open session.
type SessionInfo struct {
	ID       string    `json:"id"`
	TenantID string    `json:"tenantId"`
	State    string    `json:"state"`
	Cursor   int64     `json:"cursor"`
	OpenedAt time.Time `json:"openedAt"`
}

// Sessions lists registered sessions ordered by open time.
func (s *Service) Sessions() []SessionInfo {
	s.mu.Lock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, SessionInfo{
			ID:       sess.ID,
			TenantID: sess.TenantID,
			State:    sess.State().String(),
			Cursor:   sess.cursor.Load(),
			OpenedAt: sess.OpenedAt,
		})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// CountByTenant returns the number of registered sessions per tenant.
func (s *Service) CountByTenant() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int)
	for _, sess := range s.sessions {
		out[sess.TenantID]++
	}
	return out
}

// Shutdown refuses new sessions, drives every open one through Closing and
// waits for them to reach Closed or for ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stopBase()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Serve opens a session for the sink's context and runs it to completion.
// Transports that cannot report Open errors separately use this.
func (s *Service) Serve(tenantID, filterExpr string, sink Sink) error {
	sess, err := s.Open(sink.Context(), tenantID, filterExpr)
	if err != nil {
		return err
	}
	return sess.Run(sink)
}
