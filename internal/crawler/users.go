package crawler

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// UserCycleResult summarizes one user cycle.
type UserCycleResult struct {
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
	RunID         string `json:"run_id,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	MatchIDsFound int    `json:"match_ids_found"`
	MatchIDsAdded int    `json:"match_ids_added"`
}

// RunUserCycle pops one user, lists their recent matches and queues the new
// match ids. An empty user queue is seeded once with the configured seeds.
// Queue failures are returned as errors; everything else is a result status.
func (o *Orchestrator) RunUserCycle(ctx context.Context) (UserCycleResult, error) {
	if !o.hasAPIKey() {
		o.logger.Error("user cycle refused", zap.Error(ErrNoAPIKey))
		return UserCycleResult{Status: StatusError, Message: noAPIKeyMessage}, nil
	}
	ctx, r, err := o.startRun(ctx, CycleUsers)
	if err != nil {
		return UserCycleResult{}, err
	}
	res, err := o.userCycle(ctx, r)
	res.RunID = r.id.String()
	o.finishRun(ctx, r, res.Status, err)
	if err != nil {
		return UserCycleResult{}, err
	}
	return res, nil
}

func (o *Orchestrator) userCycle(ctx context.Context, r *run) (UserCycleResult, error) {
	if o.cfg.ClearStaleSets {
		if err := o.clearStaleUsers(ctx, r); err != nil {
			return UserCycleResult{}, err
		}
	}
	userID, ok, err := o.users.Get(ctx)
	if err != nil {
		return UserCycleResult{}, fmt.Errorf("get user id: %w", err)
	}
	if !ok {
		r.logger.Info("user queue is empty, adding seed user ids", zap.Int("seeds", len(o.cfg.SeedUserIDs)))
		for _, seed := range o.cfg.SeedUserIDs {
			added, err := o.users.Add(ctx, seed, 0)
			if err != nil {
				return UserCycleResult{}, fmt.Errorf("seed user id: %w", err)
			}
			if added {
				r.logger.Debug("added seed user id", zap.String("user_id", seed))
			}
		}
		userID, ok, err = o.users.Get(ctx)
		if err != nil {
			return UserCycleResult{}, fmt.Errorf("get user id after seeding: %w", err)
		}
		if !ok {
			r.logger.Warn("no user ids available after seeding")
			return UserCycleResult{Status: StatusNoUsers}, nil
		}
	}

	logger := r.logger.With(zap.String("user_id", userID))
	matchIDs := o.gateway.ListMatchIDs(ctx, userID, 0, o.cfg.MatchPageSize)
	if len(matchIDs) == 0 {
		logger.Info("no match ids found for user")
		return UserCycleResult{Status: StatusSuccess, UserID: userID}, nil
	}

	added := 0
	for _, id := range matchIDs {
		ok, err := o.matches.Add(ctx, id)
		if err != nil {
			return UserCycleResult{}, fmt.Errorf("add match id: %w", err)
		}
		if ok {
			added++
		}
	}
	logger.Info("queued match ids", zap.Int("found", len(matchIDs)), zap.Int("added", added))
	return UserCycleResult{
		Status:        StatusSuccess,
		UserID:        userID,
		MatchIDsFound: len(matchIDs),
		MatchIDsAdded: added,
	}, nil
}

func (o *Orchestrator) clearStaleUsers(ctx context.Context, r *run) error {
	stats, err := o.users.Stats(ctx)
	if err != nil {
		return fmt.Errorf("user queue stats: %w", err)
	}
	if !stats.Stale() {
		return nil
	}
	r.logger.Warn("user queue is stale, clearing it", zap.Int64("set_size", stats.SetSize))
	if err := o.users.Clear(ctx); err != nil {
		return fmt.Errorf("clear stale user queue: %w", err)
	}
	return nil
}
