package streamclient

import (
	"context"
	"errors"
	"time"

	"github.com/rzbill/ordernotify/internal/services/orderstream"
	"github.com/rzbill/ordernotify/pkg/log"
)

// Handler receives every frame. Returning an error stops the client.
type Handler func(orderstream.Frame) error

// Client keeps one stream open, reconnecting with backoff.
type Client struct {
	Transport Transport
	Backoff   *Backoff
	Logger    log.Logger
}

// New returns a client with the default backoff.
func New(t Transport, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Client{Transport: t, Backoff: NewBackoff(DefaultBase, DefaultCap), Logger: logger.WithComponent("streamclient")}
}

// Run streams req until ctx ends (returning nil), the handler fails or the
// server rejects the request.
func (c *Client) Run(ctx context.Context, req Request, h Handler) error {
	if c.Backoff == nil {
		c.Backoff = NewBackoff(DefaultBase, DefaultCap)
	}
	logger := c.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = logger.With(log.Tenant(req.TenantID))
	for {
		err := c.session(ctx, req, h)
		if ctx.Err() != nil {
			return nil
		}
		var herr *handlerError
		if errors.As(err, &herr) {
			return herr.err
		}
		if errors.Is(err, ErrRejected) {
			return err
		}
		delay := c.Backoff.Next()
		logger.Warn("stream interrupted, reconnecting",
			log.Err(err), log.Dur("delay", delay), log.Int("failures", c.Backoff.Failures()))
		if !sleep(ctx, delay) {
			return nil
		}
	}
}

type handlerError struct{ err error }

func (e *handlerError) Error() string { return e.err.Error() }

func (c *Client) session(ctx context.Context, req Request, h Handler) error {
	stream, err := c.Transport.Open(ctx, req)
	if err != nil {
		return err
	}
	defer stream.Close()
	// A stream counts as established only once the server sent a frame; gRPC
	// streams open before the server has accepted the call.
	for first := true; ; first = false {
		f, err := stream.Recv()
		if err != nil {
			return err
		}
		if first {
			c.Backoff.Reset()
		}
		if err := h(f); err != nil {
			return &handlerError{err: err}
		}
	}
}

// sleep waits d or until ctx ends, reporting whether the full delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
