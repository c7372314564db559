package api

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/aram-crawler/internal/features"
	"github.com/JakeFAU/aram-crawler/internal/queue"
	"github.com/JakeFAU/aram-crawler/internal/ranking"
	"github.com/JakeFAU/aram-crawler/internal/riot"
	"github.com/JakeFAU/aram-crawler/internal/storage"
)

// runUserCycle handles POST /v1/cycles/users. A refused cycle (no API key)
// still answers 200 with its status body; only queue failures are 500s.
func (s *Server) runUserCycle(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cycles == nil {
		writeError(w, http.StatusServiceUnavailable, "crawler unavailable")
		return
	}
	res, err := s.deps.Cycles.RunUserCycle(r.Context())
	if err != nil {
		s.logger.Error("user cycle failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "user cycle failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// runMatchCycle handles POST /v1/cycles/matches.
func (s *Server) runMatchCycle(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cycles == nil {
		writeError(w, http.StatusServiceUnavailable, "crawler unavailable")
		return
	}
	res, err := s.deps.Cycles.RunMatchCycle(r.Context())
	if err != nil {
		s.logger.Error("match cycle failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "match cycle failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type queueDTO struct {
	Name string `json:"name"`
	queue.Stats
	Stale bool `json:"stale"`
}

// queueStats handles GET /v1/queues and returns {"queues": [...]} sorted by name.
func (s *Server) queueStats(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.deps.Queues))
	for name := range s.deps.Queues {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]queueDTO, 0, len(names))
	for _, name := range names {
		stats, err := s.deps.Queues[name].Stats(r.Context())
		if err != nil {
			s.logger.Error("queue stats failed", zap.String("queue", name), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to read queue "+name)
			return
		}
		out = append(out, queueDTO{Name: name, Stats: stats, Stale: stats.Stale()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"queues": out})
}

// clearQueue handles POST /v1/queues/{name}/clear.
func (s *Server) clearQueue(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	q, ok := s.deps.Queues[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown queue")
		return
	}
	if err := q.Clear(r.Context()); err != nil {
		s.logger.Error("queue clear failed", zap.String("queue", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear queue")
		return
	}
	s.logger.Info("queue cleared", zap.String("queue", name))
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "name": name})
}

type playerRankDTO struct {
	PUUID    string  `json:"puuid"`
	Champion string  `json:"champion"`
	TeamID   int     `json:"team_id"`
	Win      bool    `json:"win"`
	Score    float64 `json:"score"`
	Rank     int     `json:"rank"`
}

// matchRankings handles GET /v1/matches/{match_id}/rankings. It loads the
// stored detail document, extracts per-player rows and ranks them with the
// loaded model bundle.
func (s *Server) matchRankings(w http.ResponseWriter, r *http.Request) {
	if s.deps.Matches == nil || s.deps.Scorer == nil {
		writeError(w, http.StatusServiceUnavailable, "ranking model unavailable")
		return
	}
	matchID := strings.TrimSpace(chi.URLParam(r, "match_id"))
	if matchID == "" {
		writeError(w, http.StatusBadRequest, "match id required")
		return
	}
	doc, err := s.deps.Matches.Load(r.Context(), storage.CollectionMatch, matchID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "match not found")
			return
		}
		s.logger.Error("load match failed", zap.String("match_id", matchID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load match")
		return
	}
	detail, err := riot.DecodeMatch(doc)
	if err != nil {
		s.logger.Warn("stored match is not decodable", zap.String("match_id", matchID), zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, "stored match is malformed")
		return
	}
	rows := features.ExtractMatch(detail)
	if len(rows) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "match has no participants")
		return
	}
	ranks, err := s.deps.Scorer.Score(rows)
	if err != nil {
		if errors.Is(err, ranking.ErrNotTrained) {
			writeError(w, http.StatusServiceUnavailable, "ranking model unavailable")
			return
		}
		s.logger.Error("score match failed", zap.String("match_id", matchID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to score match")
		return
	}

	players := make([]playerRankDTO, 0, len(rows))
	for i, p := range detail.Info.Participants {
		players = append(players, playerRankDTO{
			PUUID:    p.PUUID,
			Champion: p.ChampionName,
			TeamID:   p.TeamID,
			Win:      p.Win,
			Score:    ranks.Scores[i],
			Rank:     ranks.Rankings[i],
		})
	}
	sort.SliceStable(players, func(i, j int) bool { return players[i].Rank < players[j].Rank })
	writeJSON(w, http.StatusOK, map[string]any{
		"match_id":  detail.Metadata.MatchID,
		"game_mode": detail.Info.GameMode,
		"players":   players,
	})
}
