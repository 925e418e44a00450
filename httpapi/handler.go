// Package httpapi exposes the authorization redirect, the OAuth callback and
// the webhook receiver as chi routes.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-tiktokshop/core"
	"github.com/goliatone/go-tiktokshop/webhooks"
)

const (
	AuthorizePath = "/tiktok/authorize"
	CallbackPath  = "/tiktok/callback"
	HealthPath    = "/healthz"
	MetricsPath   = "/metrics"

	maxWebhookBody = 1 << 20
)

// Service is the subset of the Manager used by the routes.
type Service interface {
	GenerateAuthorizationURL(ctx context.Context, tenantID string) (string, error)
	HandleAuthorizationCallback(ctx context.Context, code string, state string) (core.CallbackResult, error)
	AcceptWebhookRequest(ctx context.Context, body []byte, headers http.Header) (webhooks.Result, error)
}

type Handler struct {
	service     Service
	logger      core.Logger
	webhookPath string
	metrics     http.Handler
}

type Option func(*Handler)

func WithLogger(logger core.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithWebhookPath(path string) Option {
	return func(h *Handler) {
		if path = strings.TrimSpace(path); path != "" {
			h.webhookPath = path
		}
	}
}

// WithMetricsHandler mounts handler on /metrics, typically promhttp.Handler().
func WithMetricsHandler(handler http.Handler) Option {
	return func(h *Handler) {
		h.metrics = handler
	}
}

func New(service Service, opts ...Option) *Handler {
	h := &Handler{
		service:     service,
		webhookPath: core.DefaultWebhookPath,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.logger == nil {
		_, h.logger = glog.Resolve("tiktokshop.http", nil, nil)
	}
	return h
}

// Router returns a chi router with every route mounted.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	h.Mount(r)
	return r
}

// Mount registers the routes on an existing router.
func (h *Handler) Mount(r chi.Router) {
	r.Get(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Get(AuthorizePath, h.Authorize)
	r.Get(CallbackPath, h.Callback)
	r.Post(h.webhookPath, h.Webhook)
	if h.metrics != nil {
		r.Method(http.MethodGet, MetricsPath, h.metrics)
	}
}

// Authorize redirects to the consent page for ?tenant_id=.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	target, err := h.service.GenerateAuthorizationURL(r.Context(), r.URL.Query().Get("tenant_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if reason := strings.TrimSpace(query.Get("error")); reason != "" {
		h.writeError(w, r, core.NewError(core.ErrorAuthExchangeFailed, "tiktokshop: authorization denied", map[string]any{
			"reason": reason,
		}))
		return
	}
	code := query.Get("code")
	if code == "" {
		code = query.Get("auth_code")
	}
	result, err := h.service.HandleAuthorizationCallback(r.Context(), code, query.Get("state"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Webhook reads the raw body unchanged; the signature covers its exact
// bytes. Dispatch failures answer 500 so the platform redelivers.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.writeError(w, r, core.WrapError(err, core.ErrorBadInput, "tiktokshop: read webhook body", nil))
		return
	}
	result, err := h.service.AcceptWebhookRequest(r.Context(), body, r.Header)
	if err != nil {
		status := result.StatusCode
		if status == 0 {
			status = http.StatusUnauthorized
		}
		h.logger.Warn("webhook not accepted",
			"status", status,
			"error", err.Error(),
			"request_id", middleware.GetReqID(r.Context()),
		)
		writeJSON(w, status, errorBody(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accepted":        result.Accepted,
		"notification_id": result.Event.NotificationID,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	mapped := core.MapError(err)
	if mapped.Code >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err.Error(), "request_id", middleware.GetReqID(r.Context()))
	}
	writeJSON(w, mapped.Code, errorBody(mapped))
}

type errorPayload struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func errorBody(err error) errorPayload {
	mapped := core.MapError(err)
	return errorPayload{Error: errorDetail{
		Code:    mapped.TextCode,
		Message: mapped.Message,
		Status:  mapped.Code,
	}}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
