package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-tiktokshop/core"
)

const (
	StatusAccepted  = "accepted"
	StatusRejected  = "rejected"
	StatusCoalesced = "coalesced"
	StatusFailed    = "failed"
)

// Result is what the HTTP layer needs to answer a delivery.
type Result struct {
	Accepted   bool
	StatusCode int
	Event      core.WebhookEvent
	Metadata   map[string]any
}

// DefaultInFlightTimeout is how long a pending ledger reservation is trusted
// to belong to a live dispatch. Older reservations are dispatched again.
const DefaultInFlightTimeout = 30 * time.Second

// Processor verifies deliveries and hands accepted events to a dispatcher.
// Rejected deliveries are never dispatched.
type Processor struct {
	Verifier        *Verifier
	Dispatcher      core.WebhookDispatcher
	Burst           BurstController
	Ledger          DeliveryLedger
	InFlightTimeout time.Duration
	Logger          core.Logger
	Metrics         core.MetricsRecorder
	Now             func() time.Time
}

func NewProcessor(verifier *Verifier, dispatcher core.WebhookDispatcher) *Processor {
	return &Processor{
		Verifier:   verifier,
		Dispatcher: dispatcher,
		Logger:     glog.Nop(),
		Metrics:    core.NopMetricsRecorder{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Accept verifies body against the configured signature header in headers.
func (p *Processor) Accept(ctx context.Context, body []byte, headers http.Header) (Result, error) {
	header := core.DefaultWebhookHeader
	if p != nil && p.Verifier != nil {
		header = p.Verifier.headerName()
	}
	result, err := p.AcceptSignature(ctx, body, HeaderValue(headers, header))
	if result.Accepted && result.Event.RequestID == "" {
		result.Event.RequestID = HeaderValue(headers, core.RequestIDHeader)
	}
	return result, err
}

// AcceptSignature verifies body against signature and dispatches the parsed
// event. A body that is not valid JSON is still dispatched with its raw
// bytes once the signature checks out.
func (p *Processor) AcceptSignature(ctx context.Context, body []byte, signature string) (result Result, err error) {
	if p == nil || p.Verifier == nil {
		return Result{Accepted: false, StatusCode: http.StatusUnauthorized},
			core.NewError(core.ErrorWebhookSignatureInvalid, "tiktokshop: webhook verifier is not configured", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := time.Now()
	status := StatusAccepted
	defer func() {
		p.observe(ctx, startedAt, status, result, err)
	}()

	if verifyErr := p.Verifier.Verify(body, signature); verifyErr != nil {
		status = StatusRejected
		return Result{
			Accepted:   false,
			StatusCode: http.StatusUnauthorized,
			Metadata:   map[string]any{"rejected": true},
		}, verifyErr
	}

	event := ParseEvent(body)
	event.ReceivedAt = p.now()

	burstHeld := false
	if p.Burst != nil {
		decision, burstErr := p.Burst.Allow(ctx, event)
		if burstErr != nil {
			status = StatusFailed
			return Result{Accepted: false, StatusCode: http.StatusInternalServerError, Event: event},
				core.WrapError(burstErr, core.ErrorInternal, "tiktokshop: webhook burst control failed", nil)
		}
		if !decision.Allow {
			status = StatusCoalesced
			metadata := ensureMetadata(decision.Metadata)
			metadata["deduped"] = true
			return Result{Accepted: true, StatusCode: http.StatusOK, Event: event, Metadata: metadata}, nil
		}
		burstHeld = true
	}
	// Anything below that does not reach a successful dispatch must release
	// the burst key, or the redelivery it triggers would be coalesced away.
	defer func() {
		if burstHeld && !result.Accepted {
			if releaseErr := p.Burst.Release(ctx, event); releaseErr != nil {
				p.warn(ctx, "webhook burst release failed", releaseErr, event)
			}
		}
	}()

	tracked := p.Ledger != nil && event.NotificationID != ""
	if tracked {
		record, existed, reserveErr := p.Ledger.Reserve(ctx, event)
		if reserveErr != nil {
			status = StatusFailed
			return Result{Accepted: false, StatusCode: http.StatusInternalServerError, Event: event},
				core.WrapError(reserveErr, core.ErrorInternal, "tiktokshop: webhook ledger reserve failed", nil)
		}
		if existed && record.Status == DeliveryStatusProcessed {
			status = StatusCoalesced
			return Result{Accepted: true, StatusCode: http.StatusOK, Event: event, Metadata: map[string]any{
				"deduped":  true,
				"attempts": record.Attempts,
			}}, nil
		}
		if existed && record.Status == DeliveryStatusPending && p.inFlight(record, event.ReceivedAt) {
			status = StatusCoalesced
			return Result{Accepted: true, StatusCode: http.StatusOK, Event: event, Metadata: map[string]any{
				"deduped":   true,
				"in_flight": true,
				"attempts":  record.Attempts,
			}}, nil
		}
	}

	if p.Dispatcher != nil {
		if dispatchErr := p.Dispatcher.Dispatch(ctx, event); dispatchErr != nil {
			status = StatusFailed
			if tracked {
				if markErr := p.Ledger.MarkFailed(ctx, event.NotificationID, dispatchErr); markErr != nil {
					p.warn(ctx, "webhook ledger mark failed", markErr, event)
				}
			}
			return Result{Accepted: false, StatusCode: http.StatusInternalServerError, Event: event},
				core.WrapError(dispatchErr, core.ErrorInternal, "tiktokshop: webhook dispatch failed", map[string]any{
					"notification_id": event.NotificationID,
					"shop_id":         event.ShopID,
				})
		}
	}
	if tracked {
		if markErr := p.Ledger.MarkProcessed(ctx, event.NotificationID); markErr != nil {
			p.warn(ctx, "webhook ledger mark processed failed", markErr, event)
		}
	}
	return Result{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Event:      event,
		Metadata:   map[string]any{"notification_id": event.NotificationID},
	}, nil
}

// ParseEvent decodes the notification envelope. Unparseable bodies yield an
// event carrying only RawBody.
func ParseEvent(body []byte) core.WebhookEvent {
	event := core.WebhookEvent{}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &event); err != nil {
			event = core.WebhookEvent{}
		}
	}
	event.NotificationID = strings.TrimSpace(event.NotificationID)
	event.ShopID = strings.TrimSpace(event.ShopID)
	event.RawBody = append([]byte(nil), body...)
	return event
}

func (p *Processor) observe(ctx context.Context, startedAt time.Time, status string, result Result, err error) {
	tags := map[string]string{
		"operation": "webhook",
		"status":    status,
	}
	if kind := core.ErrorKind(err); kind != "" {
		tags["error_kind"] = kind
	}
	if p.Metrics != nil {
		p.Metrics.IncCounter(ctx, core.MetricWebhooksTotal, 1, tags)
	}
	if p.Logger == nil {
		return
	}
	fields := []any{
		"event_type", "webhook",
		"status", status,
		"duration_ms", time.Since(startedAt).Milliseconds(),
		"notification_id", result.Event.NotificationID,
		"shop_id", result.Event.ShopID,
		"type", result.Event.Type,
	}
	logger := p.Logger.WithContext(ctx)
	switch status {
	case StatusRejected:
		logger.Warn("webhook rejected", append(fields, "error", err.Error())...)
	case StatusFailed:
		logger.Error("webhook failed", append(fields, "error", err.Error())...)
	default:
		logger.Info("webhook "+status, fields...)
	}
}

func (p *Processor) warn(ctx context.Context, msg string, err error, event core.WebhookEvent) {
	if p.Logger == nil {
		return
	}
	p.Logger.WithContext(ctx).Warn(msg, "error", err.Error(), "notification_id", event.NotificationID)
}

// inFlight reports whether a pending reservation is recent enough to belong
// to a dispatch that is still running.
func (p *Processor) inFlight(record DeliveryRecord, now time.Time) bool {
	timeout := p.InFlightTimeout
	if timeout <= 0 {
		timeout = DefaultInFlightTimeout
	}
	return now.Sub(record.CreatedAt) < timeout
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return metadata
}
