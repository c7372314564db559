package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/aram-crawler/internal/progress"
)

// LogSink emits one structured line per event. Fetch events are logged at
// debug level since a match cycle produces thousands of them.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("stage", string(evt.Stage)),
			zap.Time("ts", evt.TS),
		}
		if evt.HasRun() {
			fields = append(fields, zap.Stringer("run_id", evt.RunUUID()))
		}
		if evt.Cycle != "" {
			fields = append(fields, zap.String("cycle", evt.Cycle))
		}
		if evt.Route != "" {
			fields = append(fields, zap.String("route", evt.Route), zap.String("status_class", string(evt.StatusClass)))
		}
		if evt.Count != 0 {
			fields = append(fields, zap.Int64("count", evt.Count))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StageFetchDone {
			s.logger.Debug("progress event", fields...)
			continue
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
