package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/aram-crawler/internal/progress"
)

// PrometheusSink exports cycle progress metrics. It owns the collectors for
// cycle runs and per-route upstream fetch outcomes.
type PrometheusSink struct {
	cyclesStarted   *prometheus.CounterVec
	cyclesCompleted *prometheus.CounterVec
	cyclesRunning   *prometheus.GaugeVec
	cycleRuntime    *prometheus.HistogramVec
	matchesSaved    prometheus.Counter

	fetchRequests *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		cyclesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aram_cycles_started_total",
			Help: "Cycle runs started, by cycle.",
		}, []string{"cycle"}),
		cyclesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aram_cycles_completed_total",
			Help: "Cycle runs completed, by cycle and result.",
		}, []string{"cycle", "result"}),
		cyclesRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aram_cycles_running",
			Help: "Cycle runs currently in flight.",
		}, []string{"cycle"}),
		cycleRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aram_cycle_runtime_seconds",
			Help:    "Wall time per completed cycle run.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"cycle", "result"}),
		matchesSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aram_matches_saved_total",
			Help: "ARAM matches persisted by the match cycle.",
		}),
		fetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aram_fetch_requests_total",
			Help: "Upstream fetch completions by route and status class.",
		}, []string{"route", "status_class"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aram_fetch_duration_seconds",
			Help:    "Upstream fetch duration by route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"route"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.cyclesStarted,
		s.cyclesCompleted,
		s.cyclesRunning,
		s.cycleRuntime,
		s.matchesSaved,
		s.fetchRequests,
		s.fetchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageCycleStart:
			s.cyclesStarted.WithLabelValues(evt.Cycle).Inc()
			if s.tracker.start(evt.RunID) {
				s.cyclesRunning.WithLabelValues(evt.Cycle).Inc()
			}
		case progress.StageCycleDone:
			s.finish(evt, "success")
		case progress.StageCycleError:
			s.finish(evt, "error")
		case progress.StageMatchSaved:
			s.matchesSaved.Add(float64(evt.Count))
		case progress.StageFetchDone:
			s.fetchRequests.WithLabelValues(evt.Route, string(evt.StatusClass)).Inc()
			if evt.Dur > 0 {
				s.fetchDuration.WithLabelValues(evt.Route).Observe(evt.Dur.Seconds())
			}
		}
	}
	return nil
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.cyclesCompleted.WithLabelValues(evt.Cycle, result).Inc()
	if evt.Dur > 0 {
		s.cycleRuntime.WithLabelValues(evt.Cycle, result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.cyclesRunning.WithLabelValues(evt.Cycle).Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
