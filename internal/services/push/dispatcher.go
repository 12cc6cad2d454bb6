package push

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/ordernotify/internal/credential"
	"github.com/rzbill/ordernotify/internal/metrics"
	"github.com/rzbill/ordernotify/internal/retry"
	"github.com/rzbill/ordernotify/internal/subscriptions"
	"github.com/rzbill/ordernotify/pkg/log"
)

// Notification is the user-visible content of a push message.
type Notification struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	TargetURL string `json:"targetUrl,omitempty"`
	Tag       string `json:"tag,omitempty"`
}

// payload is what the service worker receives after decryption.
type payload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	URL       string `json:"url,omitempty"`
	Tag       string `json:"tag,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Result counts settled attempts.
type Result struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Credential credential.Values
	Sender     Sender
	Retry      retry.Policy
	Logger     log.Logger
}

// Dispatcher delivers a notification to every active subscription of a
// tenant.
type Dispatcher struct {
	registry subscriptions.Registry
	sender   Sender
	policy   retry.Policy
	logger   log.Logger

	cred    credential.Credential
	credErr error
	fault   sync.Once

	attempts atomic.Int64
}

// NewDispatcher validates the credential once. A broken credential does not
// fail construction; it disables Dispatch instead.
func NewDispatcher(registry subscriptions.Registry, opts DispatcherOptions) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = retry.Default
	}
	if opts.Sender == nil {
		opts.Sender = NewWebPushSender(24*time.Hour, 10*time.Second)
	}
	cred, err := credential.Load(opts.Credential)
	return &Dispatcher{
		registry: registry,
		sender:   opts.Sender,
		policy:   opts.Retry,
		logger:   opts.Logger.WithComponent("push"),
		cred:     cred,
		credErr:  err,
	}
}

// CredentialErr returns the startup validation error, if any.
func (d *Dispatcher) CredentialErr() error { return d.credErr }

// PublicKey returns the canonical public key, or "" when the credential is
// invalid.
func (d *Dispatcher) PublicKey() string {
	if d.credErr != nil {
		return ""
	}
	return d.cred.PublicKey
}

// Attempts returns the number of send attempts started since construction.
func (d *Dispatcher) Attempts() int64 { return d.attempts.Load() }

// Dispatch sends n to every active subscription of tenantID and waits for all
// attempts. It never returns an error: faults are logged and counted as
// failures. Cancelling ctx does not abort attempts already started.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID string, n Notification) Result {
	if d.credErr != nil {
		d.fault.Do(func() {
			d.logger.Error("push credential misconfigured, dispatch disabled", log.Err(d.credErr))
		})
		metrics.DispatchSkippedTotal.Inc()
		return Result{}
	}
	logger := d.logger.With(log.Tenant(tenantID))
	start := time.Now()
	defer func() { metrics.DispatchDuration.Observe(time.Since(start).Seconds()) }()

	ctx = context.WithoutCancel(ctx)
	subs, err := retry.Value(ctx, d.policy, func(ctx context.Context) ([]subscriptions.Subscription, error) {
		return d.registry.ListActive(ctx, tenantID)
	})
	if err != nil {
		logger.Warn("list subscriptions failed, skipping dispatch", log.Err(err))
		return Result{}
	}
	if len(subs) == 0 {
		return Result{}
	}

	body, err := json.Marshal(payload{
		Title:     n.Title,
		Body:      n.Body,
		URL:       n.TargetURL,
		Tag:       n.Tag,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		logger.Error("encode payload failed", log.Err(err))
		return Result{Failed: len(subs)}
	}

	outcomes := make([]Outcome, len(subs))
	var wg sync.WaitGroup
	for i := range subs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = d.attempt(ctx, logger, subs[i], body)
		}(i)
	}
	wg.Wait()

	var res Result
	for _, o := range outcomes {
		if o == OutcomeSuccess {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	logger.Info("dispatch settled", log.Int("succeeded", res.Succeeded), log.Int("failed", res.Failed))
	return res
}

// attempt sends to one subscription and applies the registry consequence of
// its outcome. Panics are folded into a transient failure.
func (d *Dispatcher) attempt(ctx context.Context, logger log.Logger, sub subscriptions.Subscription, body []byte) (out Outcome) {
	d.attempts.Add(1)
	logger = logger.With(log.Str("subscription", sub.ID))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("push attempt panicked", log.Err(fmt.Errorf("%v", r)))
			out = OutcomeTransient
		}
		metrics.PushAttemptsTotal.WithLabelValues(out.String()).Inc()
	}()

	status, err := d.sender.Send(ctx, d.cred, sub, body)
	out = Classify(status, err)
	switch out {
	case OutcomePermanent:
		logger.Info("push endpoint rejected permanently, removing subscription", log.Int("status", status))
		if err := d.registry.Remove(ctx, sub.ID); err != nil {
			logger.Warn("remove subscription failed", log.Err(err))
		} else {
			metrics.PushPrunedTotal.Inc()
		}
	case OutcomeTransient:
		if err != nil {
			logger.Warn("push send failed", log.Err(err))
		} else {
			logger.Warn("push send failed", log.Int("status", status))
		}
	}
	return out
}
