package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/aram-crawler/internal/progress"
	"github.com/JakeFAU/aram-crawler/internal/telemetry"
)

// ErrNoAPIKey is reported when a cycle starts without an upstream token.
var ErrNoAPIKey = errors.New("riot api key is not configured")

// noAPIKeyMessage is the result message of a cycle refused for lack of a key.
const noAPIKeyMessage = "No API key"

// Cycle names used in events, metrics and run records.
const (
	CycleUsers   = "users"
	CycleMatches = "matches"
)

// Result statuses.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusNoUsers   = "no_users"
	StatusNoMatches = "no_matches"
)

// Published event names.
const (
	EventMatchSaved     = "match.saved"
	EventCycleCompleted = "cycle.completed"
)

// DefaultSeedUserIDs are pushed into an empty user queue so a fresh
// deployment has somewhere to start.
var DefaultSeedUserIDs = []string{
	"lgSZZkKWsSd0q6-ZIIXaBrSjWzHs7KKtSkKjuD6mYkHAEbSE12GRxwWA_io27Ov0xRU218FqL1WSaA",
	"nMwEA3weON9TMEKbjNlljKebJbQvDz-6RncjcNVufAaZ0O2qyWZTsoPTyPps2QwHRg9XANqnXenTpQ",
}

const (
	defaultMatchPageSize = 100
	defaultWindow        = 2000
	defaultBatchSize     = 200
	defaultBatchPause    = time.Second
	defaultUserTTL       = 6 * time.Hour
	requestsPerMatch     = 2
)

// Config tunes both cycles. Zero values fall back to the production limits.
type Config struct {
	APIKey               string
	SeedUserIDs          []string
	MatchPageSize        int
	MaxRequestsPerWindow int
	BatchSize            int
	BatchPause           time.Duration
	UserTTL              time.Duration
	EventTopic           string
	// ClearStaleSets empties the user queue when it holds set members but no
	// queued items, which happens after markers expire.
	ClearStaleSets bool
}

func (c Config) withDefaults() Config {
	if len(c.SeedUserIDs) == 0 {
		c.SeedUserIDs = DefaultSeedUserIDs
	}
	if c.MatchPageSize <= 0 {
		c.MatchPageSize = defaultMatchPageSize
	}
	if c.MaxRequestsPerWindow <= 0 {
		c.MaxRequestsPerWindow = defaultWindow
	}
	c.MaxRequestsPerWindow = max(c.MaxRequestsPerWindow, requestsPerMatch)
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.BatchPause < 0 {
		c.BatchPause = 0
	}
	if c.UserTTL <= 0 {
		c.UserTTL = defaultUserTTL
	}
	return c
}

// Deps are the collaborators of an Orchestrator. Publisher, Emitter and
// Logger are optional.
type Deps struct {
	Users     UserQueue
	Matches   MatchQueue
	Gateway   Gateway
	Store     DocumentStore
	Publisher Publisher
	Clock     Clock
	IDs       IDGenerator
	Emitter   progress.Emitter
	Logger    *zap.Logger
}

// Orchestrator runs the user and match cycles.
type Orchestrator struct {
	cfg       Config
	users     UserQueue
	matches   MatchQueue
	gateway   Gateway
	store     DocumentStore
	publisher Publisher
	clock     Clock
	ids       IDGenerator
	emitter   progress.Emitter
	logger    *zap.Logger
}

// New validates deps and builds an Orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Users == nil:
		return nil, fmt.Errorf("user queue is required")
	case deps.Matches == nil:
		return nil, fmt.Errorf("match queue is required")
	case deps.Gateway == nil:
		return nil, fmt.Errorf("gateway is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("document store is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	o := &Orchestrator{
		cfg:       cfg.withDefaults(),
		users:     deps.Users,
		matches:   deps.Matches,
		gateway:   deps.Gateway,
		store:     deps.Store,
		publisher: deps.Publisher,
		clock:     deps.Clock,
		ids:       deps.IDs,
		emitter:   deps.Emitter,
		logger:    deps.Logger,
	}
	if o.emitter == nil {
		o.emitter = progress.NopEmitter{}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o, nil
}

func (o *Orchestrator) hasAPIKey() bool {
	return strings.TrimSpace(o.cfg.APIKey) != ""
}

// run tracks one cycle invocation for events, spans and metrics.
type run struct {
	id      uuid.UUID
	cycle   string
	started time.Time
	span    trace.Span
	logger  *zap.Logger
}

func (o *Orchestrator) startRun(ctx context.Context, cycle string) (context.Context, *run, error) {
	id, err := o.ids.NewRawID()
	if err != nil {
		return ctx, nil, fmt.Errorf("generate run id: %w", err)
	}
	ctx, span := telemetry.StartSpan(ctx, "crawler."+cycle)
	span.SetAttributes(attribute.String("run.id", id.String()), attribute.String("cycle", cycle))
	ctx = progress.WithRunID(ctx, progress.UUIDToBytes(id))

	r := &run{
		id:      id,
		cycle:   cycle,
		started: o.clock.Now(),
		span:    span,
		logger:  o.logger.With(zap.String("cycle", cycle), zap.String("run_id", id.String())),
	}
	o.emitter.Emit(progress.Event{
		RunID: progress.UUIDToBytes(id),
		TS:    r.started,
		Stage: progress.StageCycleStart,
		Cycle: cycle,
	})
	r.logger.Debug("cycle started")
	return ctx, r, nil
}

// finishRun closes the run. A non-nil err marks it failed; status is the
// reported result status otherwise.
func (o *Orchestrator) finishRun(ctx context.Context, r *run, status string, err error) {
	now := o.clock.Now()
	evt := progress.Event{
		RunID: progress.UUIDToBytes(r.id),
		TS:    now,
		Stage: progress.StageCycleDone,
		Cycle: r.cycle,
		Dur:   max(now.Sub(r.started), 0),
		Note:  status,
	}
	if err != nil {
		evt.Stage = progress.StageCycleError
		evt.Note = err.Error()
		status = StatusError
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, err.Error())
		r.logger.Error("cycle failed", zap.Error(err), zap.Duration("elapsed", evt.Dur))
	} else {
		r.logger.Info("cycle finished", zap.String("status", status), zap.Duration("elapsed", evt.Dur))
	}
	o.emitter.Emit(evt)
	telemetry.ObserveCycle(r.cycle, status)
	r.span.SetAttributes(attribute.String("cycle.status", status))
	r.span.End()

	o.publish(ctx, CycleCompletedEvent{
		Event:  EventCycleCompleted,
		Cycle:  r.cycle,
		RunID:  r.id.String(),
		Status: status,
	})
	o.observeQueues(ctx)
}

func (o *Orchestrator) observeQueues(ctx context.Context) {
	if stats, err := o.users.Stats(ctx); err == nil {
		telemetry.ObserveQueue(CycleUsers, stats.QueueSize, stats.SetSize)
	} else {
		o.logger.Debug("read user queue stats", zap.Error(err))
	}
	if stats, err := o.matches.Stats(ctx); err == nil {
		telemetry.ObserveQueue(CycleMatches, stats.QueueSize, stats.SetSize)
	} else {
		o.logger.Debug("read match queue stats", zap.Error(err))
	}
}

// MatchSavedEvent is published after a match is persisted.
type MatchSavedEvent struct {
	Event    string `json:"event"`
	MatchID  string `json:"match_id"`
	GameMode string `json:"game_mode,omitempty"`
	RunID    string `json:"run_id,omitempty"`
}

// EventName is carried as a message attribute so subscribers can filter.
func (e MatchSavedEvent) EventName() string { return e.Event }

// CycleCompletedEvent is published when a cycle run ends.
type CycleCompletedEvent struct {
	Event  string `json:"event"`
	Cycle  string `json:"cycle"`
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// EventName is carried as a message attribute so subscribers can filter.
func (e CycleCompletedEvent) EventName() string { return e.Event }

func (o *Orchestrator) publish(ctx context.Context, payload any) {
	if o.publisher == nil || o.cfg.EventTopic == "" {
		return
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.EventTopic, payload); err != nil {
		o.logger.Warn("publish event failed", zap.String("topic", o.cfg.EventTopic), zap.Error(err))
	}
}
