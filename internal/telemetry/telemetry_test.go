package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/aram-crawler/internal/config"
)

func TestInitTelemetryWithoutProject(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Application: config.ApplicationConfig{ServiceName: "aram-crawler-test"}}
	tp, mp, err := InitTelemetry(context.Background(), &cfg)
	require.NoError(t, err)
	require.NotNil(t, tp)
	require.NotNil(t, mp)

	_, span := StartSpan(context.Background(), "test-span")
	span.End()
}

func TestObserveRiotRequest(t *testing.T) {
	t.Parallel()

	before := testutil.ToFloat64(riotRequestsTotal.WithLabelValues("timeline", "5xx"))
	ObserveRiotRequest("timeline", "5xx", 10*time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(riotRequestsTotal.WithLabelValues("timeline", "5xx")))
}

func TestObserveQueue(t *testing.T) {
	t.Parallel()

	ObserveQueue("test_queue", 4, 6)
	require.Equal(t, 4.0, testutil.ToFloat64(queueItems.WithLabelValues("test_queue", "list")))
	require.Equal(t, 6.0, testutil.ToFloat64(queueItems.WithLabelValues("test_queue", "set")))
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/probe/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/probe/42", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418")))

	metrics := httptest.NewRecorder()
	Handler().ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.True(t, strings.Contains(metrics.Body.String(), `route="/probe/{id}"`))
}
