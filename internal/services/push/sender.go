package push

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/rzbill/ordernotify/internal/credential"
	"github.com/rzbill/ordernotify/internal/subscriptions"
)

// Sender performs one encrypted, signed push request and returns the push
// service's status code.
type Sender interface {
	Send(ctx context.Context, cred credential.Credential, sub subscriptions.Subscription, payload []byte) (int, error)
}

// WebPushSender sends through webpush-go (RFC 8291 encryption, RFC 8292
// VAPID signatures).
type WebPushSender struct {
	Client  *http.Client
	TTL     time.Duration
	Timeout time.Duration
	Urgency webpush.Urgency
}

// NewWebPushSender returns a sender with the given TTL and request timeout.
func NewWebPushSender(ttl, timeout time.Duration) *WebPushSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebPushSender{
		Client:  &http.Client{Timeout: timeout},
		TTL:     ttl,
		Timeout: timeout,
		Urgency: webpush.UrgencyHigh,
	}
}

// Send implements Sender.
func (s *WebPushSender) Send(ctx context.Context, cred credential.Credential, sub subscriptions.Subscription, payload []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
	}, &webpush.Options{
		HTTPClient:      s.Client,
		Subscriber:      subscriber(cred.Subject),
		TTL:             int(s.TTL / time.Second),
		Urgency:         s.Urgency,
		VAPIDPublicKey:  cred.PublicKey,
		VAPIDPrivateKey: cred.PrivateKey,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	return resp.StatusCode, nil
}

// subscriber strips mailto:, which webpush-go adds back itself. https
// subjects pass through unchanged.
func subscriber(subject string) string {
	if len(subject) >= len("mailto:") && strings.EqualFold(subject[:len("mailto:")], "mailto:") {
		return subject[len("mailto:"):]
	}
	return subject
}
