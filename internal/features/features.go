// Package features turns stored match documents into per-player feature rows
// and labels each row with a performance score and its rank in the match.
package features

import (
	"github.com/JakeFAU/aram-crawler/internal/riot"
)

// Row is one (match, participant) observation.
type Row struct {
	MatchID      string  `json:"match_id"`
	PUUID        string  `json:"puuid"`
	Champion     string  `json:"champion"`
	Win          bool    `json:"win"`
	GameDuration float64 `json:"game_duration"`

	KDA                   float64 `json:"kda"`
	Kills                 float64 `json:"kills"`
	Deaths                float64 `json:"deaths"`
	Assists               float64 `json:"assists"`
	DamagePerMin          float64 `json:"damage_per_min"`
	DamageTakenPerMin     float64 `json:"damage_taken_per_min"`
	DamageMitigatedPerMin float64 `json:"damage_mitigated_per_min"`
	TotalDamageShare      float64 `json:"total_damage_share"`
	GoldPerMin            float64 `json:"gold_per_min"`
	CSPerMin              float64 `json:"cs_per_min"`
	GoldEfficiency        float64 `json:"gold_efficiency"`
	CCTime                float64 `json:"cc_time"`
	HealShieldGiven       float64 `json:"heal_shield_given"`
	KillParticipation     float64 `json:"kill_participation"`
	DeathShare            float64 `json:"death_share"`
	LongestTimeAlive      float64 `json:"longest_time_alive"`

	PerformanceScore float64 `json:"performance_score"`
	RankInMatch      int     `json:"rank_in_match"`
}

// ExtractPlayerFeatures derives the feature row of one participant.
// gameDurationMin is the game length in minutes and teamDeaths maps a team id
// to the summed deaths of its players.
func ExtractPlayerFeatures(p riot.Participant, gameDurationMin float64, matchID string, teamDeaths map[int]int) Row {
	kills := float64(p.Kills)
	deaths := float64(p.Deaths)
	assists := float64(p.Assists)

	row := Row{
		MatchID:          matchID,
		PUUID:            p.PUUID,
		Champion:         p.ChampionName,
		Win:              p.Win,
		GameDuration:     gameDurationMin,
		KDA:              (kills + assists) / max(deaths, 1),
		Kills:            kills,
		Deaths:           deaths,
		Assists:          assists,
		GoldEfficiency:   p.GoldSpent / max(p.GoldEarned, 1),
		CCTime:           p.TimeCCingOthers,
		HealShieldGiven:  p.TotalHealsOnTeammates + p.TotalDamageShieldedOnTeammates,
		LongestTimeAlive: p.LongestTimeSpentLiving,
	}
	if gameDurationMin > 0 {
		row.DamagePerMin = p.TotalDamageDealtToChampions / gameDurationMin
		row.DamageTakenPerMin = p.TotalDamageTaken / gameDurationMin
		row.DamageMitigatedPerMin = p.DamageSelfMitigated / gameDurationMin
		row.GoldPerMin = p.GoldEarned / gameDurationMin
		row.CSPerMin = (p.TotalMinionsKilled + p.NeutralMinionsKilled) / gameDurationMin
	}
	if c := p.Challenges; c != nil {
		if c.KillParticipation != nil {
			row.KillParticipation = *c.KillParticipation
		}
		if c.TeamDamagePercentage != nil {
			row.TotalDamageShare = *c.TeamDamagePercentage
		}
	}
	if total := teamDeaths[p.TeamID]; total > 0 {
		row.DeathShare = deaths / float64(total)
	}
	return row
}

// ExtractMatch returns one row per participant of detail.
func ExtractMatch(detail riot.MatchDetail) []Row {
	teamDeaths := make(map[int]int)
	for _, p := range detail.Info.Participants {
		teamDeaths[p.TeamID] += p.Deaths
	}
	minutes := float64(detail.Info.GameDuration) / 60
	rows := make([]Row, 0, len(detail.Info.Participants))
	for _, p := range detail.Info.Participants {
		rows = append(rows, ExtractPlayerFeatures(p, minutes, detail.Metadata.MatchID, teamDeaths))
	}
	return rows
}
