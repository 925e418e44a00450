package gojob

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	"github.com/goliatone/go-tiktokshop/core"
)

const (
	JobIDWebhook      = "tiktokshop.webhook"
	ScriptPathWebhook = "tiktokshop.webhook.handle"

	paramQueue          = "queue"
	paramType           = "type"
	paramNotificationID = "notification_id"
	paramShopID         = "shop_id"
	paramTimestamp      = "timestamp"
	paramRequestID      = "request_id"
	paramReceivedAt     = "received_at"
	paramBody           = "body"

	dedupDrop = job.DeduplicationPolicy("drop")
)

// RetryPolicy bounds how often a failing webhook job is requeued.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt clamps nack options for the given attempt.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// Dispatcher enqueues accepted webhook events as go-job execution messages.
type Dispatcher struct {
	enqueuer queue.Enqueuer
	queue    string
}

func NewDispatcher(enqueuer queue.Enqueuer, queueName string) *Dispatcher {
	queueName = strings.TrimSpace(queueName)
	if queueName == "" {
		queueName = core.DefaultWebhookQueue
	}
	return &Dispatcher{enqueuer: enqueuer, queue: queueName}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event core.WebhookEvent) error {
	if d == nil || d.enqueuer == nil {
		return core.NewError(core.ErrorInternal, "gojob: enqueuer is not configured", nil)
	}
	return d.enqueuer.Enqueue(ctx, ToExecutionMessage(event, d.queue))
}

// ToExecutionMessage maps an event to a webhook job. The idempotency key is
// the notification id, or a body hash when the payload carries none.
func ToExecutionMessage(event core.WebhookEvent, queueName string) *job.ExecutionMessage {
	params := map[string]any{
		paramQueue:          strings.TrimSpace(queueName),
		paramType:           event.Type,
		paramNotificationID: event.NotificationID,
		paramShopID:         event.ShopID,
		paramTimestamp:      event.Timestamp,
		paramRequestID:      event.RequestID,
		paramBody:           base64.StdEncoding.EncodeToString(event.RawBody),
	}
	if !event.ReceivedAt.IsZero() {
		params[paramReceivedAt] = event.ReceivedAt.UTC().Format(time.RFC3339Nano)
	}
	return &job.ExecutionMessage{
		JobID:          JobIDWebhook,
		ScriptPath:     ScriptPathWebhook,
		Parameters:     params,
		IdempotencyKey: IdempotencyKey(event),
		DedupPolicy:    dedupDrop,
	}
}

func IdempotencyKey(event core.WebhookEvent) string {
	if id := strings.TrimSpace(event.NotificationID); id != "" {
		return "tiktokshop:webhook:" + id
	}
	sum := sha256.Sum256(event.RawBody)
	return "tiktokshop:webhook:sha256:" + hex.EncodeToString(sum[:])
}

// EventFromMessage restores the webhook event carried by msg. The raw body
// is re-parsed so consumers see the same data the processor accepted.
func EventFromMessage(msg *job.ExecutionMessage) (core.WebhookEvent, error) {
	if msg == nil {
		return core.WebhookEvent{}, core.NewError(core.ErrorBadInput, "gojob: execution message is required", nil)
	}
	if strings.TrimSpace(msg.JobID) != JobIDWebhook {
		return core.WebhookEvent{}, core.NewError(core.ErrorBadInput, "gojob: not a webhook job", map[string]any{
			"job_id": msg.JobID,
		})
	}
	encoded, _ := msg.Parameters[paramBody].(string)
	body, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return core.WebhookEvent{}, core.WrapError(err, core.ErrorBadInput, "gojob: decode webhook body", nil)
	}

	event := core.WebhookEvent{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &event); err != nil {
			event = core.WebhookEvent{}
		}
	}
	event.RawBody = body
	if event.NotificationID == "" {
		event.NotificationID = stringParam(msg.Parameters, paramNotificationID)
	}
	if event.ShopID == "" {
		event.ShopID = stringParam(msg.Parameters, paramShopID)
	}
	event.RequestID = stringParam(msg.Parameters, paramRequestID)
	if raw := stringParam(msg.Parameters, paramReceivedAt); raw != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			event.ReceivedAt = parsed
		}
	}
	return event, nil
}

// Consumer drains webhook jobs and hands each event to a dispatcher,
// acking on success and nacking under RetryPolicy on failure.
type Consumer struct {
	dequeuer queue.Dequeuer
	handler  core.WebhookDispatcher
	policy   RetryPolicy
	hook     worker.Hook
	delay    time.Duration
}

type ConsumerOption func(*Consumer)

func WithRetryPolicy(policy RetryPolicy) ConsumerOption {
	return func(c *Consumer) { c.policy = policy }
}

// WithRetryDelay sets the base delay of a requeued job.
func WithRetryDelay(delay time.Duration) ConsumerOption {
	return func(c *Consumer) { c.delay = delay }
}

func WithWorkerHook(hook worker.Hook) ConsumerOption {
	return func(c *Consumer) { c.hook = hook }
}

func NewConsumer(dequeuer queue.Dequeuer, handler core.WebhookDispatcher, opts ...ConsumerOption) *Consumer {
	consumer := &Consumer{
		dequeuer: dequeuer,
		handler:  handler,
		policy:   RetryPolicy{MaxAttempts: 5, MaxDelay: time.Minute, DeadLetterOnMax: true},
		delay:    time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(consumer)
		}
	}
	return consumer
}

// ProcessNext handles one delivery. attempt is the delivery count reported
// by the queue backend, starting at 1.
func (c *Consumer) ProcessNext(ctx context.Context, attempt int) error {
	if c == nil || c.dequeuer == nil || c.handler == nil {
		return core.NewError(core.ErrorInternal, "gojob: consumer is not configured", nil)
	}
	delivery, err := c.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	return c.handle(ctx, delivery, attempt)
}

// Run processes deliveries until ctx is done. Handler failures are reported
// through the worker hook and do not stop the loop.
func (c *Consumer) Run(ctx context.Context) error {
	if c == nil || c.dequeuer == nil || c.handler == nil {
		return core.NewError(core.ErrorInternal, "gojob: consumer is not configured", nil)
	}
	for {
		delivery, err := c.dequeuer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if delivery == nil {
			continue
		}
		attempt := 1
		if counted, ok := delivery.(interface{ Attempt() int }); ok {
			attempt = counted.Attempt()
		}
		_ = c.handle(ctx, delivery, attempt)
	}
}

func (c *Consumer) handle(ctx context.Context, delivery queue.Delivery, attempt int) error {
	msg := delivery.Message()
	startedAt := time.Now()
	event := worker.Event{Message: msg, Delivery: delivery, Attempt: attempt, StartedAt: startedAt}
	c.onStart(ctx, event)

	webhookEvent, err := EventFromMessage(msg)
	if err != nil {
		event.Err = err
		event.Duration = time.Since(startedAt)
		c.onFailure(ctx, event)
		return errors.Join(err, delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()}))
	}

	if err := c.handler.Dispatch(ctx, webhookEvent); err != nil {
		opts := c.policy.NormalizeAttempt(queue.NackOptions{
			Delay:   c.delay * time.Duration(max(attempt, 1)),
			Requeue: true,
			Reason:  err.Error(),
		}, attempt)
		event.Err = err
		event.Delay = opts.Delay
		event.Duration = time.Since(startedAt)
		if opts.Requeue {
			c.onRetry(ctx, event)
		} else {
			c.onFailure(ctx, event)
		}
		return errors.Join(err, delivery.Nack(ctx, opts))
	}

	event.Duration = time.Since(startedAt)
	c.onSuccess(ctx, event)
	return delivery.Ack(ctx)
}

func (c *Consumer) onStart(ctx context.Context, event worker.Event) {
	if c.hook != nil {
		c.hook.OnStart(ctx, event)
	}
}

func (c *Consumer) onSuccess(ctx context.Context, event worker.Event) {
	if c.hook != nil {
		c.hook.OnSuccess(ctx, event)
	}
}

func (c *Consumer) onFailure(ctx context.Context, event worker.Event) {
	if c.hook != nil {
		c.hook.OnFailure(ctx, event)
	}
}

func (c *Consumer) onRetry(ctx context.Context, event worker.Event) {
	if c.hook != nil {
		c.hook.OnRetry(ctx, event)
	}
}

func stringParam(params map[string]any, key string) string {
	value, _ := params[key].(string)
	return strings.TrimSpace(value)
}

var _ core.WebhookDispatcher = (*Dispatcher)(nil)
