package orderstream

import (
	"context"
	"time"

	"github.com/rzbill/ordernotify/internal/orders"
)

// FrameType discriminates stream frames.
type FrameType string

const (
	FrameConnected FrameType = "connected"
	FrameKeepalive FrameType = "keepalive"
	FrameNewOrder  FrameType = "new_order"
)

// Frame is one message on a session. For new_order frames the order fields
// are inlined.
type Frame struct {
	Type      FrameType `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	Timestamp time.Time `json:"ts"`
	*orders.SummaryEvent
}

// Sink is implemented by transports to receive frames.
type Sink interface {
	Send(Frame) error
	Context() context.Context
	Flush() error
}
