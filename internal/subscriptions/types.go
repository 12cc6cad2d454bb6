// Package subscriptions is the registry of push endpoints per tenant.
//
// (tenantId, endpoint) is unique: re-subscribing refreshes key material and
// reactivates the existing record. Deactivate is the soft, recoverable path;
// Remove deletes the record after a permanent delivery failure.
package subscriptions

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record matches.
var ErrNotFound = errors.New("subscription not found")

// Keys is the per-endpoint encryption material issued by the browser.
type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is a registered push endpoint.
type Subscription struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Endpoint  string    `json:"endpoint"`
	Keys      Keys      `json:"keys"`
	UserAgent string    `json:"userAgent,omitempty"`
	Active    bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Registry is the only component that mutates subscriptions.
type Registry interface {
	Upsert(ctx context.Context, tenantID, endpoint string, keys Keys, userAgent string) (string, error)
	ListActive(ctx context.Context, tenantID string) ([]Subscription, error)
	Deactivate(ctx context.Context, endpoint string) error
	Remove(ctx context.Context, id string) error
}
