package transports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rzbill/ordernotify/internal/credential"
	"github.com/rzbill/ordernotify/internal/orders"
	"github.com/rzbill/ordernotify/internal/services/push"
)

// HTTPTransport implements API against the HTTP gateway.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport constructs a transport for baseURL. A nil client uses
// http.DefaultClient.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// CreateOrder posts a new order.
func (t *HTTPTransport) CreateOrder(ctx context.Context, req CreateOrderRequest) (orders.Order, error) {
	var o orders.Order
	err := t.do(ctx, http.MethodPost, "/v1/orders", req, &o)
	return o, err
}

// Sessions lists open stream sessions.
func (t *HTTPTransport) Sessions(ctx context.Context) (Sessions, error) {
	var s Sessions
	err := t.do(ctx, http.MethodGet, "/v1/orders/sessions", nil, &s)
	return s, err
}

// Subscribe registers a push subscription.
func (t *HTTPTransport) Subscribe(ctx context.Context, req push.SubscribeRequest) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := t.do(ctx, http.MethodPost, "/v1/push/subscribe", req, &out)
	return out.ID, err
}

// Unsubscribe deactivates the subscription for endpoint.
func (t *HTTPTransport) Unsubscribe(ctx context.Context, endpoint string) error {
	return t.do(ctx, http.MethodPost, "/v1/push/unsubscribe", map[string]string{"endpoint": endpoint}, nil)
}

// Dispatch triggers a push notification.
func (t *HTTPTransport) Dispatch(ctx context.Context, req DispatchRequest) (push.Result, error) {
	var res push.Result
	err := t.do(ctx, http.MethodPost, "/v1/push/dispatch", req, &res)
	return res, err
}

// PublicKey returns the server's VAPID public key.
func (t *HTTPTransport) PublicKey(ctx context.Context) (string, error) {
	var out struct {
		PublicKey string `json:"publicKey"`
	}
	err := t.do(ctx, http.MethodGet, "/v1/push/public-key", nil, &out)
	return out.PublicKey, err
}

// Diagnostics fetches the server's credential report.
func (t *HTTPTransport) Diagnostics(ctx context.Context) (credential.Report, error) {
	var r credential.Report
	err := t.do(ctx, http.MethodGet, "/v1/diagnostics/push-credential", nil, &r)
	return r, err
}
