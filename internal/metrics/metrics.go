// Package metrics exports operation counters and latencies to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vbonduro/fgsamples/internal/domain"
)

// Result label values.
const (
	ResultSuccess    = "success"
	ResultValidation = "validation"
	ResultNotFound   = "not_found"
	ResultConflict   = "conflict"
	ResultError      = "error"
)

// Recorder counts operations by outcome. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fgsamples_operations_total",
			Help: "Sample operations by outcome.",
		}, []string{"operation", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fgsamples_operation_duration_seconds",
			Help:    "Sample operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	reg.MustRegister(
		r.ops,
		r.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Observe records one call of operation that finished with err after d.
func (r *Recorder) Observe(_ context.Context, operation string, err error, d time.Duration) {
	if r == nil || operation == "" {
		return
	}
	r.ops.WithLabelValues(operation, Result(err)).Inc()
	r.duration.WithLabelValues(operation).Observe(d.Seconds())
}

// Result classifies err into a result label.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case domain.IsValidation(err):
		return ResultValidation
	case domain.IsConflict(err):
		return ResultConflict
	case errors.Is(err, domain.ErrNotFound):
		return ResultNotFound
	default:
		return ResultError
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
