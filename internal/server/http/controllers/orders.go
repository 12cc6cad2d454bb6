package controllers

import (
	"errors"
	"net/http"

	"github.com/rzbill/ordernotify/internal/orders"
	ordersvc "github.com/rzbill/ordernotify/internal/services/orders"
	"github.com/rzbill/ordernotify/internal/services/orderstream"
	"github.com/rzbill/ordernotify/internal/tenant"
	"github.com/rzbill/ordernotify/pkg/log"
)

// OrdersController handles order writes and the live order stream.
type OrdersController struct {
	orders *ordersvc.Service
	stream *orderstream.Service
	logger log.Logger
}

// NewOrdersController creates a new orders controller.
func NewOrdersController(orderSvc *ordersvc.Service, streamSvc *orderstream.Service, logger log.Logger) *OrdersController {
	return &OrdersController{orders: orderSvc, stream: streamSvc, logger: logger}
}

// RegisterRoutes registers order routes with the given mux.
//
//   - POST /v1/orders: create an order
//   - GET  /v1/orders/stream?tenant=T[&filter=CEL]: SSE stream of new orders
//   - GET  /v1/orders/sessions: open stream sessions per tenant
func (c *OrdersController) RegisterRoutes(mux *http.ServeMux) {
	handle(mux, "/v1/orders", c.handleCreate)
	handle(mux, "/v1/orders/stream", c.handleStreamSSE)
	handle(mux, "/v1/orders/sessions", c.handleSessions)
}

func (c *OrdersController) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req createOrderReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	o, err := c.orders.Create(r.Context(), orders.Order{
		TenantID:     req.TenantID,
		OrderNumber:  req.OrderNumber,
		CustomerName: req.CustomerName,
		TotalAmount:  req.TotalAmount,
		OrderType:    req.OrderType,
		Status:       orders.Status(req.Status),
	})
	if err != nil {
		if errors.Is(err, orders.ErrInvalidOrder) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		c.logger.Error("create order failed", log.Tenant(req.TenantID), log.Err(err))
		writeError(w, http.StatusInternalServerError, "Failed to create order")
		return
	}
	writeStatusJSON(w, http.StatusCreated, o)
}

// handleStreamSSE opens a session before committing to a streaming response,
// so validation and storage failures still get a proper status code.
func (c *OrdersController) handleStreamSSE(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	tenantID := q.Get("tenant")
	if tenantID == "" {
		tenantID = q.Get("tenantId")
	}
	sess, err := c.stream.Open(r.Context(), tenantID, q.Get("filter"))
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrInvalid), errors.Is(err, orderstream.ErrInvalidFilter):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, orderstream.ErrUnavailable), errors.Is(err, orderstream.ErrShuttingDown):
			c.logger.Warn("order stream unavailable", log.Tenant(tenantID), log.Err(err))
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			c.logger.Error("open order stream failed", log.Tenant(tenantID), log.Err(err))
			writeError(w, http.StatusInternalServerError, "Failed to open stream")
		}
		return
	}
	if !flushable(w) {
		sess.Close()
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}
	setStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := sess.Run(sseSink{w: w, r: r}); err != nil {
		c.logger.Debug("stream ended before connected frame", log.Tenant(tenantID), log.Err(err))
	}
}

func (c *OrdersController) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	counts := c.stream.CountByTenant()
	total := 0
	for _, n := range counts {
		total += n
	}
	writeJSON(w, sessionsResp{Total: total, ByTenant: counts})
}
