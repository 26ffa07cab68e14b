// Package metrics holds the Prometheus collectors and the OpenTelemetry
// tracer used to observe pipeline runs.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Registry is the registry served on /metrics.
var Registry = prometheus.NewRegistry()

// Prometheus metrics
var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pageqa_runs_total",
			Help: "Total number of QA runs by final state",
		},
		[]string{"state"},
	)
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pageqa_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~82s
		},
		[]string{"stage"},
	)
	documentsIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pageqa_documents_indexed_total",
			Help: "Total number of documents written to the store",
		},
	)
	answersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pageqa_answers_total",
			Help: "Total number of QA records by outcome (answered, no_answer)",
		},
		[]string{"outcome"},
	)
)

var tracer = otel.Tracer("github.com/kalambet/pageqa")

func init() {
	Registry.MustRegister(
		runsTotal, stageDuration, documentsIndexed, answersTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// StartStage opens a span for a pipeline stage and starts its timer. The
// returned function ends both and must be called exactly once.
func StartStage(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	ctx, span := tracer.Start(ctx, "pageqa."+stage, trace.WithAttributes(attrs...))
	start := time.Now()
	return ctx, func(err error) {
		stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// RunFinished counts a run that ended in state.
func RunFinished(state string) {
	runsTotal.WithLabelValues(state).Inc()
}

// DocumentsIndexed adds n to the indexed documents counter.
func DocumentsIndexed(n int) {
	documentsIndexed.Add(float64(n))
}

// Answered counts one QA record.
func Answered(noAnswer bool) {
	outcome := "answered"
	if noAnswer {
		outcome = "no_answer"
	}
	answersTotal.WithLabelValues(outcome).Inc()
}
