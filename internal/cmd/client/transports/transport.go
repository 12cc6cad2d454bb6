// Package transports provides the API transport used by the CLI.
package transports

import (
	"context"
	"errors"
	"fmt"

	"github.com/rzbill/ordernotify/internal/credential"
	"github.com/rzbill/ordernotify/internal/orders"
	"github.com/rzbill/ordernotify/internal/services/push"
)

// CreateOrderRequest is the body of an order creation.
type CreateOrderRequest struct {
	TenantID     string  `json:"tenantId"`
	OrderNumber  string  `json:"orderNumber,omitempty"`
	CustomerName string  `json:"customerName,omitempty"`
	TotalAmount  float64 `json:"totalAmount"`
	OrderType    string  `json:"orderType,omitempty"`
	Status       string  `json:"status,omitempty"`
}

// DispatchRequest triggers a push to every active subscription of a tenant.
type DispatchRequest struct {
	TenantID  string `json:"tenantId"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	TargetURL string `json:"targetUrl,omitempty"`
}

// Sessions reports open stream sessions.
type Sessions struct {
	Total    int            `json:"total"`
	ByTenant map[string]int `json:"byTenant"`
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status of an APIError, or 0.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

// API abstracts the transport used by the CLI.
type API interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (orders.Order, error)
	Sessions(ctx context.Context) (Sessions, error)
	Subscribe(ctx context.Context, req push.SubscribeRequest) (id string, err error)
	Unsubscribe(ctx context.Context, endpoint string) error
	Dispatch(ctx context.Context, req DispatchRequest) (push.Result, error)
	PublicKey(ctx context.Context) (string, error)
	Diagnostics(ctx context.Context) (credential.Report, error)
}
