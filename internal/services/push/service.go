package push

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rzbill/ordernotify/internal/credential"
	"github.com/rzbill/ordernotify/internal/subscriptions"
	"github.com/rzbill/ordernotify/internal/tenant"
)

// ErrInvalidSubscription is returned for missing or malformed subscription
// fields.
var ErrInvalidSubscription = errors.New("invalid subscription")

const authSecretLen = 16

// SubscribeRequest is the browser's PushSubscription plus the tenant.
type SubscribeRequest struct {
	TenantID  string             `json:"tenantId"`
	Endpoint  string             `json:"endpoint"`
	Keys      subscriptions.Keys `json:"keys"`
	UserAgent string             `json:"userAgent,omitempty"`
}

// Validate checks every field and canonicalizes key material to unpadded
// base64url.
func (r *SubscribeRequest) Validate() error {
	if err := tenant.Validate(r.TenantID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSubscription, err)
	}
	r.Endpoint = strings.TrimSpace(r.Endpoint)
	u, err := url.Parse(r.Endpoint)
	if r.Endpoint == "" || err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("%w: endpoint must be an absolute http(s) URL", ErrInvalidSubscription)
	}
	p, err := credential.ParsePoint(r.Keys.P256dh)
	if err != nil {
		return fmt.Errorf("%w: keys.p256dh %v", ErrInvalidSubscription, err)
	}
	a, err := credential.DecodeKey(r.Keys.Auth)
	if err != nil {
		return fmt.Errorf("%w: keys.auth %v", ErrInvalidSubscription, err)
	}
	if len(a) != authSecretLen {
		return fmt.Errorf("%w: keys.auth decodes to %d bytes, want %d", ErrInvalidSubscription, len(a), authSecretLen)
	}
	r.Keys = subscriptions.Keys{P256dh: credential.EncodeKey(p), Auth: credential.EncodeKey(a)}
	return nil
}

// Service is the registration surface.
type Service struct {
	registry   subscriptions.Registry
	dispatcher *Dispatcher
}

// NewService wires registration to registry and delivery to dispatcher.
func NewService(registry subscriptions.Registry, dispatcher *Dispatcher) *Service {
	return &Service{registry: registry, dispatcher: dispatcher}
}

// Subscribe validates req and upserts it. Storage errors are returned to the
// caller.
func (s *Service) Subscribe(ctx context.Context, req SubscribeRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	id, err := s.registry.Upsert(ctx, req.TenantID, req.Endpoint, req.Keys, req.UserAgent)
	if err != nil {
		return "", fmt.Errorf("register subscription: %w", err)
	}
	return id, nil
}

// Unsubscribe deactivates every record for endpoint.
func (s *Service) Unsubscribe(ctx context.Context, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidSubscription)
	}
	return s.registry.Deactivate(ctx, endpoint)
}

// Dispatch forwards to the dispatcher.
func (s *Service) Dispatch(ctx context.Context, tenantID string, n Notification) Result {
	return s.dispatcher.Dispatch(ctx, tenantID, n)
}

// PublicKey is the application server key browsers subscribe with.
func (s *Service) PublicKey() string { return s.dispatcher.PublicKey() }

// CredentialErr reports the startup credential fault, if any.
func (s *Service) CredentialErr() error { return s.dispatcher.CredentialErr() }
