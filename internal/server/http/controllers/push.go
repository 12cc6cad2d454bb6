package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rzbill/ordernotify/internal/credential"
	"github.com/rzbill/ordernotify/internal/services/push"
	"github.com/rzbill/ordernotify/internal/subscriptions"
	"github.com/rzbill/ordernotify/internal/tenant"
	"github.com/rzbill/ordernotify/pkg/log"
)

// PushController handles subscription registration, dispatch triggers and
// credential diagnostics.
type PushController struct {
	push   *push.Service
	values credential.Values
	logger log.Logger
}

// NewPushController creates a new push controller. values are the raw
// credential strings reported by the diagnostic endpoint.
func NewPushController(svc *push.Service, values credential.Values, logger log.Logger) *PushController {
	return &PushController{push: svc, values: values, logger: logger}
}

// RegisterRoutes registers push routes with the given mux.
func (c *PushController) RegisterRoutes(mux *http.ServeMux) {
	handle(mux, "/v1/push/subscribe", c.handleSubscribe)
	handle(mux, "/v1/push/unsubscribe", c.handleUnsubscribe)
	handle(mux, "/v1/push/dispatch", c.handleDispatch)
	handle(mux, "/v1/push/public-key", c.handlePublicKey)
	handle(mux, "/v1/diagnostics/push-credential", c.handleDiagnostics)
}

func (c *PushController) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req push.SubscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := c.push.Subscribe(r.Context(), req)
	if err != nil {
		if errors.Is(err, push.ErrInvalidSubscription) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		c.logger.Error("register subscription failed", log.Tenant(req.TenantID), log.Err(err))
		writeError(w, http.StatusInternalServerError, "Failed to register subscription")
		return
	}
	writeStatusJSON(w, http.StatusCreated, subscribeResp{ID: id})
}

func (c *PushController) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req unsubscribeReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := c.push.Unsubscribe(r.Context(), req.Endpoint)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, push.ErrInvalidSubscription):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, subscriptions.ErrNotFound):
		writeError(w, http.StatusNotFound, "Subscription not found")
	default:
		c.logger.Error("deactivate subscription failed", log.Err(err))
		writeError(w, http.StatusInternalServerError, "Failed to unsubscribe")
	}
}

// handleDispatch always answers 200 with counts once the request is
// well-formed; delivery problems only show up as failures.
func (c *PushController) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req dispatchReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := tenant.Validate(req.TenantID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	res := c.push.Dispatch(r.Context(), req.TenantID, push.Notification{
		Title:     req.Title,
		Body:      req.Body,
		TargetURL: req.TargetURL,
	})
	writeJSON(w, res)
}

func (c *PushController) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	key := c.push.PublicKey()
	if key == "" {
		writeError(w, http.StatusServiceUnavailable, "push credential not configured")
		return
	}
	writeJSON(w, map[string]string{"publicKey": key})
}

func (c *PushController) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, credential.Diagnose(c.values))
}
