package prometheus

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/goliatone/go-tiktokshop/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// labelNames is the fixed label set of every collector. Tenant ids and
// request paths are left out to keep cardinality bounded.
var labelNames = []string{"operation", "status", "error_kind"}

var metricHelp = map[string]string{
	core.MetricRequestsTotal:   "Signed API calls by outcome.",
	core.MetricRequestDuration: "Signed API call duration in seconds.",
	core.MetricRefreshTotal:    "Token refreshes by outcome.",
	core.MetricWebhooksTotal:   "Webhook deliveries by outcome.",
}

// Recorder implements core.MetricsRecorder on a Prometheus registerer.
// Collectors are created on first use.
type Recorder struct {
	registerer prom.Registerer
	mu         sync.Mutex
	counters   map[string]*prom.CounterVec
	histograms map[string]*prom.HistogramVec
}

func NewRecorder(registerer prom.Registerer) *Recorder {
	if registerer == nil {
		registerer = prom.DefaultRegisterer
	}
	return &Recorder{
		registerer: registerer,
		counters:   map[string]*prom.CounterVec{},
		histograms: map[string]*prom.HistogramVec{},
	}
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value <= 0 {
		return
	}
	counter := r.counter(name)
	if counter == nil {
		return
	}
	counter.With(labels(tags)).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	histogram := r.histogram(name)
	if histogram == nil {
		return
	}
	histogram.With(labels(tags)).Observe(value)
}

func (r *Recorder) counter(name string) *prom.CounterVec {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.counters[name]; ok {
		return existing
	}
	vec := prom.NewCounterVec(prom.CounterOpts{Name: name, Help: help(name)}, labelNames)
	if err := r.registerer.Register(vec); err != nil {
		var already prom.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil
		}
		registered, ok := already.ExistingCollector.(*prom.CounterVec)
		if !ok {
			return nil
		}
		vec = registered
	}
	r.counters[name] = vec
	return vec
}

func (r *Recorder) histogram(name string) *prom.HistogramVec {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.histograms[name]; ok {
		return existing
	}
	vec := prom.NewHistogramVec(prom.HistogramOpts{
		Name:    name,
		Help:    help(name),
		Buckets: prom.DefBuckets,
	}, labelNames)
	if err := r.registerer.Register(vec); err != nil {
		var already prom.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil
		}
		registered, ok := already.ExistingCollector.(*prom.HistogramVec)
		if !ok {
			return nil
		}
		vec = registered
	}
	r.histograms[name] = vec
	return vec
}

func help(name string) string {
	if text, ok := metricHelp[name]; ok {
		return text
	}
	return name
}

func labels(tags map[string]string) prom.Labels {
	out := prom.Labels{}
	for _, key := range labelNames {
		out[key] = strings.TrimSpace(tags[key])
	}
	return out
}

var _ core.MetricsRecorder = (*Recorder)(nil)
