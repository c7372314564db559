package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/aram-crawler/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageCycleStart, Cycle: "matches"},
		{
			TS:          now.Add(time.Second),
			Stage:       progress.StageFetchDone,
			Route:       "match",
			StatusClass: progress.Status2xx,
			Dur:         200 * time.Millisecond,
		},
		{RunID: runID, TS: now.Add(2 * time.Second), Stage: progress.StageMatchSaved, Count: 2},
		{RunID: runID, TS: now.Add(3 * time.Second), Stage: progress.StageCycleDone, Cycle: "matches", Dur: 3 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.cyclesStarted.WithLabelValues("matches")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.cyclesCompleted.WithLabelValues("matches", "success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.cyclesRunning.WithLabelValues("matches")))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.matchesSaved))
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.fetchRequests.WithLabelValues("match", "2xx")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.fetchDuration, "aram_fetch_duration_seconds"))
}

func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
