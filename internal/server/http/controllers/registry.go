package controllers

import (
	"net/http"

	"github.com/rzbill/ordernotify/internal/credential"
	"github.com/rzbill/ordernotify/internal/runtime"
	ordersvc "github.com/rzbill/ordernotify/internal/services/orders"
	"github.com/rzbill/ordernotify/internal/services/orderstream"
	"github.com/rzbill/ordernotify/internal/services/push"
	"github.com/rzbill/ordernotify/pkg/log"
)

// Services bundles what the controllers call into.
type Services struct {
	Orders     *ordersvc.Service
	Stream     *orderstream.Service
	Push       *push.Service
	Credential credential.Values
}

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general *GeneralController
	orders  *OrdersController
	push    *PushController
}

// NewControllerRegistry creates a new controller registry.
func NewControllerRegistry(rt *runtime.Runtime, svcs Services, logger log.Logger) *ControllerRegistry {
	return &ControllerRegistry{
		general: NewGeneralController(rt),
		orders:  NewOrdersController(svcs.Orders, svcs.Stream, logger),
		push:    NewPushController(svcs.Push, svcs.Credential, logger),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.orders.RegisterRoutes(mux)
	r.push.RegisterRoutes(mux)
}
