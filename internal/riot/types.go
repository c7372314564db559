package riot

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// Document is a raw match or timeline JSON object as returned upstream.
type Document = json.RawMessage

// ModeARAM is the gameMode value of All Random All Mid matches.
const ModeARAM = "ARAM"

// MatchDetail is the typed view of a match document. Only the fields the
// crawler and the feature extractor read are mapped.
type MatchDetail struct {
	Metadata Metadata `json:"metadata"`
	Info     Info     `json:"info"`
}

// Metadata identifies the match and its participants.
type Metadata struct {
	MatchID      string   `json:"matchId"`
	DataVersion  string   `json:"dataVersion"`
	Participants []string `json:"participants"`
}

// Info carries game-level fields. GameDuration is in seconds.
type Info struct {
	GameMode     string        `json:"gameMode"`
	GameDuration int64         `json:"gameDuration"`
	GameVersion  string        `json:"gameVersion"`
	GameCreation int64         `json:"gameCreation"`
	QueueID      int           `json:"queueId"`
	Participants []Participant `json:"participants"`
	Teams        []Team        `json:"teams"`
}

// Participant holds the per-player stats used for feature extraction.
type Participant struct {
	PUUID                          string      `json:"puuid"`
	ChampionName                   string      `json:"championName"`
	ChampionID                     int         `json:"championId"`
	TeamID                         int         `json:"teamId"`
	Win                            bool        `json:"win"`
	Kills                          int         `json:"kills"`
	Deaths                         int         `json:"deaths"`
	Assists                        int         `json:"assists"`
	TotalDamageDealtToChampions    float64     `json:"totalDamageDealtToChampions"`
	TotalDamageTaken               float64     `json:"totalDamageTaken"`
	DamageSelfMitigated            float64     `json:"damageSelfMitigated"`
	GoldEarned                     float64     `json:"goldEarned"`
	GoldSpent                      float64     `json:"goldSpent"`
	TotalMinionsKilled             float64     `json:"totalMinionsKilled"`
	NeutralMinionsKilled           float64     `json:"neutralMinionsKilled"`
	TimeCCingOthers                float64     `json:"timeCCingOthers"`
	TotalHealsOnTeammates          float64     `json:"totalHealsOnTeammates"`
	TotalDamageShieldedOnTeammates float64     `json:"totalDamageShieldedOnTeammates"`
	LongestTimeSpentLiving         float64     `json:"longestTimeSpentLiving"`
	Challenges                     *Challenges `json:"challenges,omitempty"`
}

// Challenges holds derived ratios Riot computes per participant. Either may
// be missing on older matches.
type Challenges struct {
	KillParticipation    *float64 `json:"killParticipation,omitempty"`
	TeamDamagePercentage *float64 `json:"teamDamagePercentage,omitempty"`
}

// Team is one side of the match.
type Team struct {
	TeamID int  `json:"teamId"`
	Win    bool `json:"win"`
}

// DecodeMatch parses a match document into its typed view.
func DecodeMatch(doc Document) (MatchDetail, error) {
	var detail MatchDetail
	if err := sonic.Unmarshal(doc, &detail); err != nil {
		return MatchDetail{}, fmt.Errorf("decode match: %w", err)
	}
	return detail, nil
}

// IsARAM reports whether the match was played in ARAM mode.
func (m MatchDetail) IsARAM() bool {
	return m.Info.GameMode == ModeARAM
}
