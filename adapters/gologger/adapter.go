package gologger

import (
	"context"
	"strings"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

const DefaultName = "tiktokshop"

// Resolve picks provider > logger > nop. A blank name resolves the
// package default.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	return glog.Resolve(name, provider, logger)
}

// ResolveForJob resolves the glog pair and its go-job bridges, for workers
// that consume webhook jobs.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	var jobProvider job.LoggerProvider
	if resolvedProvider != nil {
		jobProvider = job.GoLoggerProvider(resolvedProvider)
	}
	var jobLogger job.Logger
	if resolvedLogger != nil {
		jobLogger = job.GoLogger(resolvedLogger)
	}
	return resolvedProvider, resolvedLogger, jobProvider, jobLogger
}

// JobLogHook logs worker lifecycle events for queued webhook jobs.
type JobLogHook struct {
	logger glog.Logger
}

func NewJobLogHook(logger glog.Logger) *JobLogHook {
	return &JobLogHook{logger: glog.Ensure(logger)}
}

func (h *JobLogHook) OnStart(ctx context.Context, event worker.Event) {
	h.log(ctx, "debug", "webhook job started", event)
}

func (h *JobLogHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.log(ctx, "info", "webhook job completed", event)
}

func (h *JobLogHook) OnFailure(ctx context.Context, event worker.Event) {
	h.log(ctx, "error", "webhook job failed", event)
}

func (h *JobLogHook) OnRetry(ctx context.Context, event worker.Event) {
	h.log(ctx, "warn", "webhook job requeued", event)
}

func (h *JobLogHook) log(ctx context.Context, level string, msg string, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	fields := []any{
		"attempt", event.Attempt,
		"duration_ms", event.Duration.Milliseconds(),
	}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message != nil {
		fields = append(fields, "job_id", message.JobID, "idempotency_key", message.IdempotencyKey)
	}
	if event.Delay > 0 {
		fields = append(fields, "delay_ms", event.Delay.Milliseconds())
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err.Error())
	}
	logger := h.logger.WithContext(ctx)
	switch level {
	case "debug":
		logger.Debug(msg, fields...)
	case "warn":
		logger.Warn(msg, fields...)
	case "error":
		logger.Error(msg, fields...)
	default:
		logger.Info(msg, fields...)
	}
}

var _ worker.Hook = (*JobLogHook)(nil)
