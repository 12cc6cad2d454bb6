package orderstream

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/ordernotify/internal/detector"
	"github.com/rzbill/ordernotify/internal/metrics"
	"github.com/rzbill/ordernotify/internal/orders"
	"github.com/rzbill/ordernotify/pkg/log"
)

// State is a session lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var errSessionClosed = errors.New("session closed")

// waitErrorPause spaces out retries after a failed detector wait.
const waitErrorPause = time.Second

// Session is one connected client.
type Session struct {
	ID       string
	TenantID string
	OpenedAt time.Time

	svc    *Service
	det    detector.ChangeDetector
	filter orderFilter
	cursor *Cursor
	logger log.Logger

	state atomic.Int32

	writeMu sync.Mutex
	sink    Sink
	cancel  context.CancelFunc

	closeOnce sync.Once
	ran       atomic.Bool
}

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Cursor returns the highest order id observed so far.
func (s *Session) Cursor() int64 { return s.cursor.Load() }

// Run emits the connected frame and serves the session until the sink's
// context ends, a write fails or the service shuts down. It returns nil for
// all of these; the only error is a failed connected frame. Run may be called
// once.
func (s *Session) Run(sink Sink) error {
	if !s.ran.CompareAndSwap(false, true) {
		return errors.New("orderstream: session already run")
	}
	ctx, cancel := context.WithCancel(sink.Context())
	stop := context.AfterFunc(s.svc.base, cancel)
	defer stop()

	s.writeMu.Lock()
	s.sink = sink
	s.cancel = cancel
	s.writeMu.Unlock()

	if err := s.write(Frame{Type: FrameConnected, SessionID: s.ID}, StateConnecting); err != nil {
		cancel()
		s.close()
		return err
	}
	s.state.Store(int32(StateOpen))
	metrics.StreamSessionsActive.Inc()
	defer metrics.StreamSessionsActive.Dec()
	s.logger.Info("session open", log.Int64("cursor", s.cursor.Load()))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.heartbeatLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.detectLoop(ctx)
	}()

	<-ctx.Done()
	s.state.Store(int32(StateClosing))
	wg.Wait()
	s.close()
	s.logger.Info("session closed", log.Int64("cursor", s.cursor.Load()))
	return nil
}

// Close abandons a session that was opened but never run. For running
// sessions it triggers the Closing path.
func (s *Session) Close() {
	s.writeMu.Lock()
	cancel := s.cancel
	s.writeMu.Unlock()
	if cancel != nil {
		cancel()
		return
	}
	if s.ran.CompareAndSwap(false, true) {
		s.close()
	}
}

// close releases the detector and unregisters. Runs once.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.state.Store(int32(StateClosed))
		s.writeMu.Unlock()
		if err := s.det.Close(); err != nil {
			s.logger.Warn("detector close failed", log.Err(err))
		}
		s.svc.unregister(s)
	})
}

// write serializes Send+Flush. It refuses to write unless the session is in
// the expected state; a failed write cancels the session.
func (s *Session) write(f Frame, want State) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if State(s.state.Load()) != want {
		return errSessionClosed
	}
	f.Timestamp = time.Now().UTC()
	err := s.sink.Send(f)
	if err == nil {
		err = s.sink.Flush()
	}
	if err != nil {
		s.logger.Debug("write failed, closing session", log.Str("frame", string(f.Type)), log.Err(err))
		s.cancel()
		return err
	}
	metrics.StreamFramesTotal.WithLabelValues(string(f.Type)).Inc()
	return nil
}

func (s *Session) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(s.svc.heartbeat)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.write(Frame{Type: FrameKeepalive}, StateOpen); err != nil {
				return
			}
		}
	}
}

func (s *Session) detectLoop(ctx context.Context) {
	for {
		if err := s.det.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, detector.ErrSourceClosed) {
				s.logger.Warn("change source closed, ending session")
				s.cancel()
				return
			}
			s.logger.Warn("detector wait failed", log.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(waitErrorPause):
			}
			continue
		}
		evs, err := s.det.SinceCursor(ctx, s.cursor.Load())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("detector query failed", log.Err(err))
			continue
		}
		if err := s.emit(evs); err != nil {
			return
		}
	}
}

// emit writes events the session has not seen yet in ascending id order.
// Filtered-out events still advance the cursor.
func (s *Session) emit(evs []orders.SummaryEvent) error {
	sort.Slice(evs, func(i, j int) bool { return evs[i].OrderID < evs[j].OrderID })
	for i := range evs {
		ev := evs[i]
		if ev.Status.Terminal() || !s.cursor.Advance(ev.OrderID) {
			continue
		}
		if !s.filter.Match(ev) {
			continue
		}
		if err := s.write(Frame{Type: FrameNewOrder, SessionID: s.ID, SummaryEvent: &ev}, StateOpen); err != nil {
			return err
		}
	}
	return nil
}
