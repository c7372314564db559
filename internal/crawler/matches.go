package crawler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/JakeFAU/aram-crawler/internal/progress"
	"github.com/JakeFAU/aram-crawler/internal/riot"
	"github.com/JakeFAU/aram-crawler/internal/storage"
	"github.com/JakeFAU/aram-crawler/internal/telemetry"
)

const timelineKey = "timeline"

// MatchCycleResult summarizes one match cycle.
type MatchCycleResult struct {
	Status            string `json:"status"`
	Message           string `json:"message,omitempty"`
	RunID             string `json:"run_id,omitempty"`
	MatchesProcessed  int    `json:"matches_processed"`
	MatchesSaved      int    `json:"matches_saved"`
	ParticipantsAdded int    `json:"participants_added"`
	APIRequests       int    `json:"api_requests"`
}

// RunMatchCycle drains match ids, fetches detail and timeline for each in
// batches that stay inside the request window, persists ARAM matches and
// queues every participant with the rediscovery TTL. A failure to persist one
// match skips that match; a user queue failure aborts the cycle.
func (o *Orchestrator) RunMatchCycle(ctx context.Context) (MatchCycleResult, error) {
	if !o.hasAPIKey() {
		o.logger.Error("match cycle refused", zap.Error(ErrNoAPIKey))
		return MatchCycleResult{Status: StatusError, Message: noAPIKeyMessage}, nil
	}
	ctx, r, err := o.startRun(ctx, CycleMatches)
	if err != nil {
		return MatchCycleResult{}, err
	}
	res, err := o.matchCycle(ctx, r)
	res.RunID = r.id.String()
	o.finishRun(ctx, r, res.Status, err)
	if err != nil {
		return MatchCycleResult{}, err
	}
	return res, nil
}

func (o *Orchestrator) matchCycle(ctx context.Context, r *run) (MatchCycleResult, error) {
	ids, err := o.drain(ctx)
	if err != nil {
		return MatchCycleResult{}, err
	}
	if len(ids) == 0 {
		r.logger.Info("match queue is empty")
		return MatchCycleResult{Status: StatusNoMatches}, nil
	}
	r.logger.Info("processing match ids", zap.Int("count", len(ids)))

	res := MatchCycleResult{Status: StatusSuccess}
	for start := 0; start < len(ids); {
		end := min(start+o.cfg.BatchSize, len(ids))
		batch := ids[start:end]
		start = end

		r.logger.Debug("fetching batch", zap.Int("size", len(batch)))
		results := o.gateway.FetchMatches(ctx, batch)
		res.APIRequests += len(batch) * requestsPerMatch
		res.MatchesProcessed += len(batch)

		for _, data := range results {
			saved, participants, err := o.processMatch(ctx, r, data)
			res.ParticipantsAdded += participants
			if err != nil {
				return MatchCycleResult{}, err
			}
			if saved {
				res.MatchesSaved++
			}
		}

		if start < len(ids) {
			if err := o.clock.Sleep(ctx, o.cfg.BatchPause); err != nil {
				return MatchCycleResult{}, fmt.Errorf("pause between batches: %w", err)
			}
		}
	}
	telemetry.AddParticipants(res.ParticipantsAdded)
	r.logger.Info("match cycle complete",
		zap.Int("saved", res.MatchesSaved),
		zap.Int("participants_added", res.ParticipantsAdded),
		zap.Int("api_requests", res.APIRequests))
	return res, nil
}

// drain pops only as many match ids as the request window can fetch. Ids
// beyond that stay queued for the next cycle.
func (o *Orchestrator) drain(ctx context.Context) ([]string, error) {
	capacity := o.cfg.MaxRequestsPerWindow / requestsPerMatch
	ids := make([]string, 0, min(capacity, o.cfg.BatchSize))
	for len(ids) < capacity {
		id, ok, err := o.matches.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("get match id: %w", err)
		}
		if !ok {
			break
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// processMatch handles one fetched id. The returned error is fatal to the
// cycle; persistence failures are logged and reported as not saved.
func (o *Orchestrator) processMatch(ctx context.Context, r *run, data riot.MatchData) (bool, int, error) {
	logger := r.logger.With(zap.String("match_id", data.MatchID))
	if !data.Found() {
		logger.Warn("skipping match, detail and timeline both unavailable")
		return false, 0, nil
	}

	if data.Detail == nil {
		if err := o.saveTimelineOnly(ctx, data); err != nil {
			logger.Error("save timeline failed", zap.Error(err))
			return false, 0, nil
		}
		o.matchSaved(ctx, r, data.MatchID, "")
		return true, 0, nil
	}

	detail, err := riot.DecodeMatch(data.Detail)
	if err != nil {
		logger.Warn("skipping match with unreadable detail", zap.Error(err))
		return false, 0, nil
	}

	added := 0
	for _, puuid := range detail.Metadata.Participants {
		if puuid == "" {
			continue
		}
		ok, err := o.users.Add(ctx, puuid, o.cfg.UserTTL)
		if err != nil {
			return false, added, fmt.Errorf("add participant: %w", err)
		}
		if ok {
			added++
		}
	}

	if !detail.IsARAM() {
		logger.Info("skipping non-ARAM match", zap.String("game_mode", detail.Info.GameMode))
		return false, added, nil
	}

	key := detail.Metadata.MatchID
	if key == "" {
		logger.Warn("match detail has no metadata.matchId, keying by queue id")
		key = data.MatchID
	}
	if err := o.saveMatch(ctx, key, data); err != nil {
		logger.Error("save match failed", zap.Error(err))
		return false, added, nil
	}
	o.matchSaved(ctx, r, key, detail.Info.GameMode)
	return true, added, nil
}

func (o *Orchestrator) saveMatch(ctx context.Context, key string, data riot.MatchData) error {
	merged, err := mergeTimeline(data.Detail, data.Timeline)
	if err != nil {
		return err
	}
	if err := o.store.Save(ctx, storage.CollectionMatch, key, json.RawMessage(data.Detail)); err != nil {
		return fmt.Errorf("save %s: %w", storage.CollectionMatch, err)
	}
	if err := o.store.Save(ctx, storage.CollectionMatchDetail, key, merged); err != nil {
		return fmt.Errorf("save %s: %w", storage.CollectionMatchDetail, err)
	}
	return nil
}

func (o *Orchestrator) saveTimelineOnly(ctx context.Context, data riot.MatchData) error {
	merged, err := mergeTimeline(nil, data.Timeline)
	if err != nil {
		return err
	}
	if err := o.store.Save(ctx, storage.CollectionMatchDetail, data.MatchID, merged); err != nil {
		return fmt.Errorf("save %s: %w", storage.CollectionMatchDetail, err)
	}
	return nil
}

func (o *Orchestrator) matchSaved(ctx context.Context, r *run, matchID, gameMode string) {
	o.emitter.Emit(progress.Event{
		RunID: progress.UUIDToBytes(r.id),
		TS:    o.clock.Now(),
		Stage: progress.StageMatchSaved,
		Count: 1,
		Note:  matchID,
	})
	o.publish(ctx, MatchSavedEvent{
		Event:    EventMatchSaved,
		MatchID:  matchID,
		GameMode: gameMode,
		RunID:    r.id.String(),
	})
}

// mergeTimeline nests timeline under the "timeline" key of detail. A nil
// detail yields a document holding only the timeline; a nil timeline is
// stored as JSON null.
func mergeTimeline(detail, timeline riot.Document) (json.RawMessage, error) {
	doc := map[string]json.RawMessage{}
	if detail != nil {
		if err := sonic.Unmarshal(detail, &doc); err != nil {
			return nil, fmt.Errorf("decode match detail: %w", err)
		}
		if doc == nil {
			doc = map[string]json.RawMessage{}
		}
	}
	doc[timelineKey] = json.RawMessage("null")
	if timeline != nil {
		doc[timelineKey] = json.RawMessage(timeline)
	}
	out, err := sonic.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode merged match: %w", err)
	}
	return out, nil
}
