package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rzbill/ordernotify/internal/tenant"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is past the point of "new order" notification.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// TerminalStatuses lists the terminal set in a stable order, for queries.
func TerminalStatuses() []string {
	return []string{string(StatusCompleted), string(StatusCancelled)}
}

// ErrInvalidOrder is returned by Create for orders that fail validation.
var ErrInvalidOrder = errors.New("invalid order")

// Order is the stored order record. Only the fields projected into
// SummaryEvent are kept.
type Order struct {
	ID           int64     `json:"id"`
	TenantID     string    `json:"tenantId"`
	OrderNumber  string    `json:"orderNumber"`
	CustomerName string    `json:"customerName"`
	TotalAmount  float64   `json:"totalAmount"`
	OrderType    string    `json:"orderType"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Validate normalizes defaults and checks required fields.
func (o *Order) Validate() error {
	if err := tenant.Validate(o.TenantID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	if !o.Status.valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, o.Status)
	}
	if o.TotalAmount < 0 {
		return fmt.Errorf("%w: negative total", ErrInvalidOrder)
	}
	o.CustomerName = strings.TrimSpace(o.CustomerName)
	if o.OrderType == "" {
		o.OrderType = "pickup"
	}
	return nil
}

// Summary projects the order into its event form.
func (o Order) Summary() SummaryEvent {
	return SummaryEvent{
		OrderID:      o.ID,
		TenantID:     o.TenantID,
		OrderNumber:  o.OrderNumber,
		CustomerName: o.CustomerName,
		TotalAmount:  o.TotalAmount,
		OrderType:    o.OrderType,
		Status:       o.Status,
		CreatedAt:    o.CreatedAt,
	}
}

// SummaryEvent is the transient projection emitted for a qualifying order.
type SummaryEvent struct {
	OrderID      int64     `json:"orderId"`
	TenantID     string    `json:"tenantId"`
	OrderNumber  string    `json:"orderNumber"`
	CustomerName string    `json:"customerName"`
	TotalAmount  float64   `json:"totalAmount"`
	OrderType    string    `json:"orderType"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store persists orders and answers the cursor queries used by detectors.
type Store interface {
	// Create assigns the id (and order number when empty) and persists o.
	Create(ctx context.Context, o Order) (Order, error)
	// ListSince returns up to limit non-terminal orders with id > cursor in
	// ascending id order.
	ListSince(ctx context.Context, tenantID string, cursor int64, limit int) ([]SummaryEvent, error)
	// MaxActiveID returns the highest non-terminal order id, or 0.
	MaxActiveID(ctx context.Context, tenantID string) (int64, error)
}
