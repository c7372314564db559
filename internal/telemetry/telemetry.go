// Package telemetry unifies OpenTelemetry tracing (Google Cloud) and Prometheus metrics.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/JakeFAU/aram-crawler/internal/config"
)

const instrumentationName = "github.com/JakeFAU/aram-crawler"

var (
	riotRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riot_requests_total",
			Help: "Upstream match API requests, labeled by route and status class.",
		},
		[]string{"route", "status_class"},
	)

	riotRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riot_request_duration_seconds",
			Help:    "Upstream match API latency, labeled by route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route"},
	)

	riotThrottledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riot_throttled_total",
			Help: "Upstream 429 responses, labeled by route.",
		},
		[]string{"route"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	queueItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aram_queue_items",
			Help: "Identifier queue sizes, labeled by queue and part (list or set).",
		},
		[]string{"queue", "part"},
	)

	cycleResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aram_cycle_results_total",
			Help: "Cycle outcomes, labeled by cycle and status.",
		},
		[]string{"cycle", "status"},
	)

	participantsAddedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aram_participants_added_total",
			Help: "Participants newly queued by the match cycle.",
		},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aram_rate_limit_delay_seconds",
			Help:    "Histogram of local rate limiter waits, labeled by route.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"route"},
	)

	schedulerRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aram_scheduler_retries_total",
			Help: "Cycle retries scheduled after a failure.",
		},
		[]string{"cycle"},
	)
)

var (
	initOnce  sync.Once
	traceProv *sdktrace.TracerProvider
	meterProv *metric.MeterProvider
	initErr   error
)

// InitTelemetry sets up tracing (Google Cloud Trace when a project is set) and
// bridges OpenTelemetry metrics into the default Prometheus registry.
func InitTelemetry(ctx context.Context, cfg *config.Config) (*sdktrace.TracerProvider, *metric.MeterProvider, error) {
	initOnce.Do(func() {
		res, err := resource.New(ctx,
			resource.WithAttributes(
				semconv.ServiceName(cfg.Application.ServiceName),
				semconv.ServiceVersion(cfg.Application.Version),
				semconv.CloudAccountID(cfg.Application.ProjectNumber),
				semconv.CloudRegion(cfg.Application.Region),
				semconv.CloudProviderGCP,
				semconv.CloudPlatformGCPCloudRun,
			),
		)
		if err != nil {
			initErr = fmt.Errorf("create resource: %w", err)
			return
		}

		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(1))),
		}
		if cfg.Application.ProjectID != "" {
			exporter, err := texporter.New(texporter.WithProjectID(cfg.Application.ProjectID))
			if err != nil {
				initErr = fmt.Errorf("create google trace exporter: %w", err)
				return
			}
			opts = append(opts, sdktrace.WithBatcher(exporter))
		}

		tp := sdktrace.NewTracerProvider(opts...)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(
			propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
		)

		// Share the promauto registry so OTel instruments land on /metrics too.
		promExporter, err := otelprom.New(otelprom.WithRegisterer(prometheus.DefaultRegisterer))
		if err != nil {
			initErr = fmt.Errorf("create prometheus exporter: %w", err)
			return
		}
		mp := metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(promExporter),
		)
		otel.SetMeterProvider(mp)
		traceProv = tp
		meterProv = mp
	})
	return traceProv, meterProv, initErr
}

// StartSpan opens a span on the global tracer.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name)
}

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, routePattern, rec.statusCode, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// ObserveHTTPRequest records metrics for an inbound admin API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRiotRequest records one upstream call.
func ObserveRiotRequest(route, statusClass string, duration time.Duration) {
	riotRequestsTotal.WithLabelValues(route, statusClass).Inc()
	riotRequestDurationSeconds.WithLabelValues(route).Observe(duration.Seconds())
}

// ObserveThrottled counts an upstream 429.
func ObserveThrottled(route string) {
	riotThrottledTotal.WithLabelValues(route).Inc()
}

// ObserveQueue publishes the list and set sizes of one identifier queue.
func ObserveQueue(name string, listSize, setSize int64) {
	queueItems.WithLabelValues(name, "list").Set(float64(listSize))
	queueItems.WithLabelValues(name, "set").Set(float64(setSize))
}

// ObserveCycle counts a cycle outcome.
func ObserveCycle(cycle, status string) {
	cycleResultsTotal.WithLabelValues(cycle, status).Inc()
}

// AddParticipants counts newly queued participants.
func AddParticipants(n int) {
	if n > 0 {
		participantsAddedTotal.Add(float64(n))
	}
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(route string, duration time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(route).Observe(duration.Seconds())
}

// ObserveSchedulerRetry counts a scheduled retry.
func ObserveSchedulerRetry(cycle string) {
	schedulerRetriesTotal.WithLabelValues(cycle).Inc()
}
