package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	ordernotifyv1 "github.com/rzbill/ordernotify/api/ordernotify/v1"
	transports "github.com/rzbill/ordernotify/internal/cmd/client/transports"
	"github.com/rzbill/ordernotify/internal/credential"
	"github.com/rzbill/ordernotify/internal/orders"
	"github.com/rzbill/ordernotify/internal/services/orderstream"
)

type apiStub struct {
	mu       sync.Mutex
	lastPath string
	lastBody map[string]any
}

func (s *apiStub) last() (string, map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPath, s.lastBody
}

func (s *apiStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		s.mu.Lock()
		s.lastPath, s.lastBody = r.URL.Path, body
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/orders":
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(orders.Order{ID: 7, TenantID: "acme", OrderNumber: "7", Status: orders.StatusPending})
		case "/v1/push/dispatch":
			if body["tenantId"] == "bad tenant" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"error":"invalid tenant id"}`)
				return
			}
			_, _ = io.WriteString(w, `{"succeeded":2,"failed":1}`)
		case "/v1/push/unsubscribe":
			w.WriteHeader(http.StatusNoContent)
		case "/v1/push/public-key":
			_, _ = io.WriteString(w, `{"publicKey":"BPUB"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"not found"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err := cmd.Execute()
	return buf.String(), err
}

func TestOrderCreatePrintsOrder(t *testing.T) {
	stub := &apiStub{}
	srv := stub.server(t)
	out, err := run(t, NewOrderCommand(func() string { return srv.URL }),
		"create", "--tenant", "acme", "--customer", "Ada", "--total", "12.5")
	if err != nil {
		t.Fatalf("order create: %v", err)
	}
	path, body := stub.last()
	if path != "/v1/orders" {
		t.Fatalf("path = %q", path)
	}
	if body["customerName"] != "Ada" || body["totalAmount"] != 12.5 {
		t.Fatalf("body = %v", body)
	}

	var o orders.Order
	if err := json.Unmarshal([]byte(out), &o); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if o.ID != 7 {
		t.Fatalf("id = %d, want 7", o.ID)
	}
}

func TestPushSendPrintsCounts(t *testing.T) {
	stub := &apiStub{}
	srv := stub.server(t)
	out, err := run(t, NewPushCommand(func() string { return srv.URL }),
		"send", "--tenant", "acme", "--title", "Kitchen", "--body", "Ticket ready")
	if err != nil {
		t.Fatalf("push send: %v", err)
	}
	if out != "succeeded: 2 failed: 1\n" {
		t.Fatalf("output = %q", out)
	}
	if _, body := stub.last(); body["title"] != "Kitchen" {
		t.Fatalf("body = %v", body)
	}
}

func TestPushSendSurfacesAPIError(t *testing.T) {
	stub := &apiStub{}
	srv := stub.server(t)
	_, err := run(t, NewPushCommand(func() string { return srv.URL }),
		"send", "--tenant", "bad tenant", "--title", "x")
	if err == nil || !strings.Contains(err.Error(), "invalid tenant id") {
		t.Fatalf("err = %v, want API error", err)
	}
}

func TestPushUnsubscribeAndPublicKey(t *testing.T) {
	stub := &apiStub{}
	srv := stub.server(t)
	base := func() string { return srv.URL }

	out, err := run(t, NewPushCommand(base), "unsubscribe", "--endpoint", "https://push.example.com/x")
	if err != nil || !strings.Contains(out, "OK") {
		t.Fatalf("unsubscribe: %q, %v", out, err)
	}
	if _, body := stub.last(); body["endpoint"] != "https://push.example.com/x" {
		t.Fatalf("body = %v", body)
	}

	out, err = run(t, NewPushCommand(base), "public-key")
	if err != nil || out != "BPUB\n" {
		t.Fatalf("public-key: %q, %v", out, err)
	}
}

func parseEnvLines(out string) map[string]string {
	m := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		k, v, _ := strings.Cut(line, "=")
		m[k] = v
	}
	return m
}

func TestVAPIDGenerateEmitsUsableCredential(t *testing.T) {
	out, err := run(t, NewVAPIDCommand(), "generate", "--subject", "ops@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	env := parseEnvLines(out)
	if len(env) != 3 {
		t.Fatalf("env lines = %v", env)
	}

	cred, err := credential.Load(credential.Values{
		PublicKey:  env["ORDERNOTIFY_PUSH_VAPID_PUBLIC_KEY"],
		PrivateKey: env["ORDERNOTIFY_PUSH_VAPID_PRIVATE_KEY"],
		Subject:    env["ORDERNOTIFY_PUSH_VAPID_SUBJECT"],
	})
	if err != nil {
		t.Fatalf("load generated credential: %v", err)
	}
	if cred.PublicKey != env["ORDERNOTIFY_PUSH_VAPID_PUBLIC_KEY"] {
		t.Fatalf("public key not canonical: %q", cred.PublicKey)
	}
}

func TestVAPIDCheck(t *testing.T) {
	out, err := run(t, NewVAPIDCommand(), "generate", "--subject", "ops@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for k, v := range parseEnvLines(out) {
		t.Setenv(k, v)
	}
	t.Setenv("ORDERNOTIFY_VAULT_ENABLED", "false")

	out, err = run(t, NewVAPIDCommand(), "check")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	var r credential.Report
	if err := json.Unmarshal([]byte(out), &r); err != nil || !r.Ready {
		t.Fatalf("report = %+v, %v", r, err)
	}

	t.Setenv("ORDERNOTIFY_PUSH_VAPID_PRIVATE_KEY", "")
	out, err = run(t, NewVAPIDCommand(), "check")
	if !errors.Is(err, ErrCredentialNotReady) {
		t.Fatalf("err = %v, want ErrCredentialNotReady", err)
	}
	r = credential.Report{}
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if r.PrivateKey.Valid || !r.PublicKey.Valid {
		t.Fatalf("report = %+v", r)
	}
}

func sseServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tenant") != "acme" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid tenant id"}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"connected\",\"sessionId\":\"s1\",\"ts\":\"2026-01-01T00:00:00Z\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"new_order\",\"ts\":\"2026-01-01T00:00:01Z\",\"orderId\":101,\"tenantId\":\"acme\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWatchSSEStopsAtLimit(t *testing.T) {
	srv := sseServer(t)
	out, err := run(t, NewWatchCommand(func() string { return srv.URL }), "--tenant", "acme", "--limit", "1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %q", lines)
	}
	var f orderstream.Frame
	if err := json.Unmarshal([]byte(lines[0]), &f); err != nil {
		t.Fatalf("decode %q: %v", lines[0], err)
	}
	if f.Type != orderstream.FrameNewOrder || f.OrderID != 101 {
		t.Fatalf("frame = %+v", f)
	}
}

func TestWatchRejectedTenantFails(t *testing.T) {
	srv := sseServer(t)
	if _, err := run(t, NewWatchCommand(func() string { return srv.URL }), "--tenant", "other"); err == nil {
		t.Fatal("expected rejection")
	}
}

func TestWatchInvalidTransport(t *testing.T) {
	if _, err := run(t, NewWatchCommand(func() string { return "http://127.0.0.1:0" }), "--tenant", "acme", "--transport", "ws"); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}

type orderStreamStub struct{}

func (orderStreamStub) Subscribe(req *ordernotifyv1.SubscribeRequest, stream ordernotifyv1.OrderStream_SubscribeServer) error {
	if err := stream.Send(&ordernotifyv1.Frame{Type: orderstream.FrameConnected, SessionID: "g1", Timestamp: time.Now()}); err != nil {
		return err
	}
	f := &ordernotifyv1.Frame{Type: orderstream.FrameNewOrder, Timestamp: time.Now(), SummaryEvent: &orders.SummaryEvent{OrderID: 5, TenantID: req.TenantID}}
	if err := stream.Send(f); err != nil {
		return err
	}
	<-stream.Context().Done()
	return nil
}

func startGRPCStub(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	gs := grpc.NewServer()
	ordernotifyv1.RegisterOrderStreamServer(gs, orderStreamStub{})
	done := make(chan struct{})
	go func() {
		_ = gs.Serve(l)
		close(done)
	}()
	t.Cleanup(func() {
		gs.Stop()
		<-done
	})
	return l.Addr().String()
}

func TestWatchGRPC(t *testing.T) {
	t.Setenv("ORDERNOTIFY_GRPC", startGRPCStub(t))
	out, err := run(t, NewWatchCommand(func() string { return "" }), "--tenant", "acme", "--transport", "grpc", "--limit", "1")
	if err != nil {
		t.Fatalf("watch grpc: %v", err)
	}
	var f orderstream.Frame
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &f); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if f.OrderID != 5 || f.TenantID != "acme" {
		t.Fatalf("frame = %+v", f)
	}
}

func TestAPIErrorStatus(t *testing.T) {
	stub := &apiStub{}
	srv := stub.server(t)
	_, err := getTransport(func() string { return srv.URL }).Sessions(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := transports.StatusOf(err); got != http.StatusNotFound {
		t.Fatalf("status = %d", got)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v", err)
	}
}
