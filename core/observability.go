package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// observer logs and records metrics for one component.
type observer struct {
	logger  Logger
	metrics MetricsRecorder
}

func (o observer) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	elapsed := time.Since(startedAt)

	contextFields := cloneFields(fields)
	contextFields["event_type"] = operation
	contextFields["status"] = status
	contextFields["duration_ms"] = elapsed.Milliseconds()
	if err != nil {
		enrichErrorFields(contextFields, err)
	}

	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range []string{"tenant_id", "path"} {
		if value := strings.TrimSpace(fmt.Sprint(contextFields[key])); value != "" && value != "<nil>" {
			tags[key] = value
		}
	}
	if kind := ErrorKind(err); kind != "" {
		tags["error_kind"] = kind
	}

	switch operation {
	case "refresh", "force_refresh":
		o.recordCounter(ctx, MetricRefreshTotal, 1, tags)
	case "request":
		o.recordCounter(ctx, MetricRequestsTotal, 1, tags)
		o.recordHistogram(ctx, MetricRequestDuration, elapsed.Seconds(), tags)
	case "webhook":
		o.recordCounter(ctx, MetricWebhooksTotal, 1, tags)
	}

	if err != nil {
		o.logWithLevel(ctx, "error", operation+" failed", contextFields)
		return
	}
	o.logWithLevel(ctx, "info", operation+" succeeded", contextFields)
}

func (o observer) logInfo(ctx context.Context, message string, fields map[string]any) {
	o.logWithLevel(ctx, "info", message, fields)
}

func (o observer) logWarn(ctx context.Context, message string, fields map[string]any) {
	o.logWithLevel(ctx, "warn", message, fields)
}

func (o observer) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if o.logger == nil {
		return
	}
	logger := o.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	safe := RedactSensitiveMap(fields)
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(safe))
	}
	args := flattenFields(safe)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (o observer) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if o.metrics == nil {
		return
	}
	o.metrics.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (o observer) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if o.metrics == nil {
		return
	}
	o.metrics.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func enrichErrorFields(fields map[string]any, err error) {
	fields["error"] = err.Error()
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return
	}
	fields["error_category"] = fmt.Sprint(richErr.Category)
	fields["error_text_code"] = richErr.TextCode
	if richErr.Code != 0 {
		fields["error_code"] = richErr.Code
	}
	if len(richErr.Metadata) > 0 {
		fields["error_metadata"] = RedactSensitiveMap(richErr.Metadata)
	}
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	return operation
}
