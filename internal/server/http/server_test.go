package httpserver

import (
	"bufio"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/ordernotify/internal/config"
	"github.com/rzbill/ordernotify/internal/credential"
	"github.com/rzbill/ordernotify/internal/orders"
	"github.com/rzbill/ordernotify/internal/retry"
	"github.com/rzbill/ordernotify/internal/runtime"
	"github.com/rzbill/ordernotify/internal/server/http/controllers"
	ordersvc "github.com/rzbill/ordernotify/internal/services/orders"
	"github.com/rzbill/ordernotify/internal/services/orderstream"
	"github.com/rzbill/ordernotify/internal/services/push"
	logpkg "github.com/rzbill/ordernotify/pkg/log"
)

type env struct {
	rt     *runtime.Runtime
	server *Server
	stream *orderstream.Service
	orders *ordersvc.Service
}

func keyPair(t *testing.T) (pub, priv string) {
	t.Helper()
	k, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return credential.EncodeKey(k.PublicKey().Bytes()), credential.EncodeKey(k.Bytes())
}

func newEnv(t *testing.T, values credential.Values) *env {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.Fsync = "never"
	cfg.Detector.PollInterval = 10 * time.Millisecond
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text"})

	rt, err := runtime.Open(context.Background(), runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	policy := retry.Policy{Attempts: 2, Base: time.Millisecond}
	dispatcher := push.NewDispatcher(rt.Subscriptions(), push.DispatcherOptions{
		Credential: values,
		Sender:     push.NewWebPushSender(time.Hour, 2*time.Second),
		Retry:      policy,
		Logger:     logger,
	})
	stream := orderstream.New(rt.Orders(), rt.Detectors(), orderstream.Options{Heartbeat: time.Hour, Retry: policy, Logger: logger})
	orderSvc := ordersvc.New(rt.Orders(), ordersvc.Options{Publisher: rt.Broadcast(), Logger: logger})
	svcs := controllers.Services{
		Orders:     orderSvc,
		Stream:     stream,
		Push:       push.NewService(rt.Subscriptions(), dispatcher),
		Credential: values,
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = stream.Shutdown(ctx)
	})
	return &env{rt: rt, server: New(rt, svcs, logger), stream: stream, orders: orderSvc}
}

func validValues(t *testing.T) credential.Values {
	pub, priv := keyPair(t)
	return credential.Values{PublicKey: pub, PrivateKey: priv, Subject: "ops@example.com"}
}

func (e *env) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func subscribeBody(t *testing.T, tenantID, endpoint string) string {
	pub, _ := keyPair(t)
	auth := make([]byte, 16)
	_, _ = rand.Read(auth)
	return fmt.Sprintf(`{"tenantId":%q,"endpoint":%q,"keys":{"p256dh":%q,"auth":%q}}`,
		tenantID, endpoint, pub, credential.EncodeKey(auth))
}

func TestHealthHandler(t *testing.T) {
	e := newEnv(t, validValues(t))
	for _, path := range []string{"/health", "/v1/healthz"} {
		w := e.do(http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s status: %d", path, w.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t, validValues(t))
	w := e.do(http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestCreateOrderHandler(t *testing.T) {
	e := newEnv(t, validValues(t))
	w := e.do(http.MethodPost, "/v1/orders", `{"tenantId":"acme","customerName":"Ada","totalAmount":12.5}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status: %d body: %s", w.Code, w.Body.String())
	}
	var got struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != 1 || got.Status != "pending" {
		t.Fatalf("unexpected order: %+v", got)
	}

	if w := e.do(http.MethodPost, "/v1/orders", `{"tenantId":"acme","bogus":1}`); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status: %d", w.Code)
	}
	if w := e.do(http.MethodPost, "/v1/orders", `{"tenantId":"a b"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad tenant status: %d", w.Code)
	}
	if w := e.do(http.MethodGet, "/v1/orders", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("method status: %d", w.Code)
	}
}

func TestSubscribeHandler(t *testing.T) {
	e := newEnv(t, validValues(t))
	w := e.do(http.MethodPost, "/v1/push/subscribe", subscribeBody(t, "acme", "https://push.example/a"))
	if w.Code != http.StatusCreated {
		t.Fatalf("status: %d body: %s", w.Code, w.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.ID == "" {
		t.Fatalf("missing id: %s", w.Body.String())
	}

	bad := []string{
		`{"tenantId":"acme","endpoint":"https://push.example/a"}`,
		`{"tenantId":"acme","endpoint":"not a url","keys":{"p256dh":"x","auth":"y"}}`,
		`{"tenantId":"acme","endpoint":"https://push.example/a","keys":{"p256dh":"x","auth":"y"},"extra":true}`,
		`{`,
	}
	for _, body := range bad {
		if w := e.do(http.MethodPost, "/v1/push/subscribe", body); w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status %d", body, w.Code)
		}
	}

	if w := e.do(http.MethodPost, "/v1/push/unsubscribe", `{"endpoint":"https://push.example/a"}`); w.Code != http.StatusNoContent {
		t.Fatalf("unsubscribe status: %d", w.Code)
	}
	if w := e.do(http.MethodPost, "/v1/push/unsubscribe", `{"endpoint":"https://push.example/none"}`); w.Code != http.StatusNotFound {
		t.Fatalf("unsubscribe unknown status: %d", w.Code)
	}
}

func TestDispatchHandler(t *testing.T) {
	pushSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/gone") {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer pushSrv.Close()

	e := newEnv(t, validValues(t))
	for _, p := range []string{"/a", "/b", "/gone"} {
		if w := e.do(http.MethodPost, "/v1/push/subscribe", subscribeBody(t, "acme", pushSrv.URL+p)); w.Code != http.StatusCreated {
			t.Fatalf("subscribe: %d", w.Code)
		}
	}

	w := e.do(http.MethodPost, "/v1/push/dispatch", `{"tenantId":"acme","title":"New order","body":"#1","targetUrl":"/orders/1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	var res push.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res != (push.Result{Succeeded: 2, Failed: 1}) {
		t.Fatalf("result = %+v", res)
	}
	subs, err := e.rt.Subscriptions().ListActive(context.Background(), "acme")
	if err != nil || len(subs) != 2 {
		t.Fatalf("active subscriptions = %d, %v", len(subs), err)
	}

	if w := e.do(http.MethodPost, "/v1/push/dispatch", `{"tenantId":"acme"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing title status: %d", w.Code)
	}
}

func TestDispatchWithBrokenCredential(t *testing.T) {
	values := validValues(t)
	values.PrivateKey = "short"
	e := newEnv(t, values)
	if w := e.do(http.MethodPost, "/v1/push/subscribe", subscribeBody(t, "acme", "https://push.example/a")); w.Code != http.StatusCreated {
		t.Fatalf("subscribe: %d", w.Code)
	}
	w := e.do(http.MethodPost, "/v1/push/dispatch", `{"tenantId":"acme","title":"x"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != `{"succeeded":0,"failed":0}` {
		t.Fatalf("body: %s", w.Body.String())
	}
	if w := e.do(http.MethodGet, "/v1/push/public-key", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("public key status: %d", w.Code)
	}
}

func TestDiagnosticsNeverExposePrivateKey(t *testing.T) {
	values := validValues(t)
	e := newEnv(t, values)
	w := e.do(http.MethodGet, "/v1/diagnostics/push-credential", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if strings.Contains(w.Body.String(), values.PrivateKey) {
		t.Fatalf("private key leaked: %s", w.Body.String())
	}
	var rep credential.Report
	if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !rep.Ready || !rep.KeyPairMatches {
		t.Fatalf("report = %+v", rep)
	}

	pk := e.do(http.MethodGet, "/v1/push/public-key", "")
	if pk.Code != http.StatusOK || !strings.Contains(pk.Body.String(), values.PublicKey) {
		t.Fatalf("public key: %d %s", pk.Code, pk.Body.String())
	}
}

func readFrame(t *testing.T, r *bufio.Reader) orderstream.Frame {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var f orderstream.Frame
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &f); err != nil {
			t.Fatalf("decode frame %q: %v", line, err)
		}
		return f
	}
}

func TestOrderStreamSSE(t *testing.T) {
	e := newEnv(t, validValues(t))
	srv := httptest.NewServer(e.server.Handler())
	defer srv.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := e.rt.Orders().Create(ctx, ordersOf("acme")); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(reqCtx, http.MethodGet, srv.URL+"/v1/orders/stream?tenant=acme", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	for k, v := range map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache",
		"X-Accel-Buffering": "no",
	} {
		if got := resp.Header.Get(k); got != v {
			t.Fatalf("%s = %q, want %q", k, got, v)
		}
	}

	br := bufio.NewReader(resp.Body)
	if f := readFrame(t, br); f.Type != orderstream.FrameConnected || f.SessionID == "" {
		t.Fatalf("first frame = %+v", f)
	}

	w := e.do(http.MethodPost, "/v1/orders", `{"tenantId":"acme","customerName":"Grace","totalAmount":30}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d", w.Code)
	}
	f := readFrame(t, br)
	if f.Type != orderstream.FrameNewOrder || f.SummaryEvent == nil || f.OrderID != 3 || f.CustomerName != "Grace" {
		t.Fatalf("order frame = %+v", f)
	}

	sessions := e.do(http.MethodGet, "/v1/orders/sessions", "")
	if !strings.Contains(sessions.Body.String(), `"acme":1`) {
		t.Fatalf("sessions: %s", sessions.Body.String())
	}
}

// bareWriter is a ResponseWriter without Flush.
type bareWriter struct {
	header http.Header
	code   int
	body   strings.Builder
}

func (b *bareWriter) Header() http.Header         { return b.header }
func (b *bareWriter) Write(p []byte) (int, error) { return b.body.Write(p) }
func (b *bareWriter) WriteHeader(code int)        { b.code = code }

func TestOrderStreamNeedsFlusher(t *testing.T) {
	e := newEnv(t, validValues(t))
	w := &bareWriter{header: http.Header{}}
	req := httptest.NewRequest(http.MethodGet, "/v1/orders/stream?tenant=acme", nil)
	e.server.Handler().ServeHTTP(w, req)
	if w.code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.code)
	}
	if n := len(e.stream.CountByTenant()); n != 0 {
		t.Fatalf("session left registered: %v", e.stream.CountByTenant())
	}
}

func TestOrderStreamRejectsBadRequests(t *testing.T) {
	e := newEnv(t, validValues(t))
	cases := map[string]int{
		"/v1/orders/stream":                           http.StatusBadRequest,
		"/v1/orders/stream?tenant=a%2Fb":              http.StatusBadRequest,
		"/v1/orders/stream?tenant=acme&filter=total+": http.StatusBadRequest,
	}
	for path, want := range cases {
		if w := e.do(http.MethodGet, path, ""); w.Code != want {
			t.Fatalf("%s: status %d, want %d", path, w.Code, want)
		}
	}
}

func ordersOf(tenantID string) orders.Order {
	return orders.Order{TenantID: tenantID, CustomerName: "seed"}
}
