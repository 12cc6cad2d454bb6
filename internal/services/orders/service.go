package ordersvc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rzbill/ordernotify/internal/orders"
	"github.com/rzbill/ordernotify/internal/services/push"
	"github.com/rzbill/ordernotify/pkg/log"
)

// Publisher is the broadcast side used after a write.
type Publisher interface {
	Publish(ctx context.Context, tenantID string, payload []byte) error
}

// Dispatcher is the push side used after a write.
type Dispatcher interface {
	Dispatch(ctx context.Context, tenantID string, n push.Notification) push.Result
}

// Options configures a Service. A nil Publisher or Dispatcher disables that
// side effect.
type Options struct {
	Publisher  Publisher
	Dispatcher Dispatcher
	Logger     log.Logger
}

// Service creates orders.
type Service struct {
	store      orders.Store
	publisher  Publisher
	dispatcher Dispatcher
	logger     log.Logger

	// tenantMu holds one lock per tenant so that publish order follows id
	// order.
	tenantMu sync.Map
	inflight sync.WaitGroup
}

// New returns a Service writing to store.
func New(store orders.Store, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	return &Service{
		store:      store,
		publisher:  opts.Publisher,
		dispatcher: opts.Dispatcher,
		logger:     opts.Logger.WithComponent("orders"),
	}
}

// Create validates and persists o. Non-terminal orders are then published
// and dispatched asynchronously.
func (s *Service) Create(ctx context.Context, o orders.Order) (orders.Order, error) {
	if err := o.Validate(); err != nil {
		return orders.Order{}, err
	}
	created, err := s.persist(ctx, o)
	if err != nil {
		return orders.Order{}, err
	}
	logger := s.logger.With(log.Tenant(created.TenantID), log.Int64("order_id", created.ID))
	if created.Status.Terminal() {
		return created, nil
	}
	if s.dispatcher != nil {
		n := Notification(created)
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			res := s.dispatcher.Dispatch(context.WithoutCancel(ctx), created.TenantID, n)
			logger.Debug("order notification dispatched", log.Int("succeeded", res.Succeeded), log.Int("failed", res.Failed))
		}()
	}
	return created, nil
}

// persist writes o and, for non-terminal orders, publishes it before the
// next write for the same tenant can start.
func (s *Service) persist(ctx context.Context, o orders.Order) (orders.Order, error) {
	if s.publisher != nil {
		mu, _ := s.tenantMu.LoadOrStore(o.TenantID, new(sync.Mutex))
		mu.(*sync.Mutex).Lock()
		defer mu.(*sync.Mutex).Unlock()
	}
	created, err := s.store.Create(ctx, o)
	if err != nil {
		return orders.Order{}, fmt.Errorf("create order: %w", err)
	}
	logger := s.logger.With(log.Tenant(created.TenantID), log.Int64("order_id", created.ID))
	logger.Debug("order created", log.Str("status", string(created.Status)))
	if s.publisher == nil || created.Status.Terminal() {
		return created, nil
	}
	payload, err := json.Marshal(created.Summary())
	if err == nil {
		err = s.publisher.Publish(ctx, created.TenantID, payload)
	}
	if err != nil {
		logger.Warn("publish order failed", log.Err(err))
	}
	return created, nil
}

// Wait blocks until in-flight dispatches have settled.
func (s *Service) Wait() { s.inflight.Wait() }

// Notification renders the "new order" push message for o.
func Notification(o orders.Order) push.Notification {
	parts := make([]string, 0, 3)
	if o.CustomerName != "" {
		parts = append(parts, o.CustomerName)
	}
	if o.OrderType != "" {
		parts = append(parts, o.OrderType)
	}
	parts = append(parts, "$"+strconv.FormatFloat(o.TotalAmount, 'f', 2, 64))
	return push.Notification{
		Title:     "New order #" + o.OrderNumber,
		Body:      strings.Join(parts, " · "),
		TargetURL: "/orders/" + strconv.FormatInt(o.ID, 10),
		Tag:       "order-" + strconv.FormatInt(o.ID, 10),
	}
}
