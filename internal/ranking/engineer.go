package ranking

import (
	"fmt"

	"github.com/JakeFAU/aram-crawler/internal/features"
)

// FeatureColumns is the fixed column order of every feature matrix.
var FeatureColumns = []string{
	"kda", "kills", "deaths", "assists",
	"damage_per_min", "damage_taken_per_min",
	"damage_mitigated_per_min", "total_damage_share",
	"gold_per_min", "cs_per_min", "gold_efficiency",
	"cc_time", "heal_shield_given",
	"kill_participation", "death_share",
	"longest_time_alive",
	"aggression_index", "survival_index",
	"team_contribution", "combat_efficiency",
}

// UnseenChampion encodes a champion absent from the training rows.
const UnseenChampion = -1

const (
	clipLow  = 0.01
	clipHigh = 0.99
)

// clipped columns and their indices in FeatureColumns.
var clipColumns = map[string]int{
	"kda":            0,
	"damage_per_min": 4,
	"gold_per_min":   8,
}

// Bounds is a closed clip interval.
type Bounds struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// FeatureEngineer turns rows into a scaled feature matrix. Its state is
// learned by Fit and frozen for every later Transform.
type FeatureEngineer struct {
	Columns   []string          `json:"columns"`
	Champions map[string]int    `json:"champions"`
	Clip      map[string]Bounds `json:"clip"`
	Median    []float64         `json:"median"`
	Scale     []float64         `json:"scale"`
	Fitted    bool              `json:"fitted"`
}

// NewFeatureEngineer returns an unfitted engineer.
func NewFeatureEngineer() *FeatureEngineer {
	return &FeatureEngineer{}
}

// Fit learns the champion encoding, clip bounds and robust scaling from the
// training rows.
func (f *FeatureEngineer) Fit(train []features.Row) error {
	if len(train) == 0 {
		return ErrEmptyDataset
	}
	f.Columns = append([]string(nil), FeatureColumns...)
	f.Champions = make(map[string]int)
	for _, r := range train {
		if _, ok := f.Champions[r.Champion]; !ok {
			f.Champions[r.Champion] = len(f.Champions)
		}
	}

	raw := make([][]float64, len(train))
	for i, r := range train {
		raw[i] = baseVector(r)
	}
	f.Clip = make(map[string]Bounds, len(clipColumns))
	for name, j := range clipColumns {
		sorted := sortedCopy(column(raw, j))
		f.Clip[name] = Bounds{Low: quantile(sorted, clipLow), High: quantile(sorted, clipHigh)}
	}

	clipped := make([][]float64, len(raw))
	for i, v := range raw {
		clipped[i] = f.clip(v)
	}
	width := len(FeatureColumns)
	f.Median = make([]float64, width)
	f.Scale = make([]float64, width)
	for j := range width {
		sorted := sortedCopy(column(clipped, j))
		f.Median[j] = quantile(sorted, 0.5)
		iqr := quantile(sorted, 0.75) - quantile(sorted, 0.25)
		if iqr == 0 {
			iqr = 1
		}
		f.Scale[j] = iqr
	}
	f.Fitted = true
	return nil
}

// Transform returns the scaled matrix of rows in FeatureColumns order.
func (f *FeatureEngineer) Transform(rows []features.Row) ([][]float64, error) {
	if !f.Fitted {
		return nil, fmt.Errorf("transform: %w", ErrNotTrained)
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		v := f.clip(baseVector(r))
		for j := range v {
			v[j] = (v[j] - f.Median[j]) / f.Scale[j]
		}
		out[i] = v
	}
	return out, nil
}

// FitTransform fits on train and transforms it.
func (f *FeatureEngineer) FitTransform(train []features.Row) ([][]float64, error) {
	if err := f.Fit(train); err != nil {
		return nil, err
	}
	return f.Transform(train)
}

// ChampionCode returns the learned code of a champion, or UnseenChampion.
func (f *FeatureEngineer) ChampionCode(name string) int {
	if code, ok := f.Champions[name]; ok {
		return code
	}
	return UnseenChampion
}

// ChampionCodes encodes the champion of every row.
func (f *FeatureEngineer) ChampionCodes(rows []features.Row) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = f.ChampionCode(r.Champion)
	}
	return out
}

func (f *FeatureEngineer) clip(v []float64) []float64 {
	for name, j := range clipColumns {
		b, ok := f.Clip[name]
		if !ok {
			continue
		}
		v[j] = min(max(v[j], b.Low), b.High)
	}
	return v
}

// Targets extracts the performance score of each row.
func Targets(rows []features.Row) []float64 {
	y := make([]float64, len(rows))
	for i, r := range rows {
		y[i] = r.PerformanceScore
	}
	return y
}

// MatchIDs extracts the match id of each row.
func MatchIDs(rows []features.Row) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.MatchID
	}
	return ids
}

// baseVector builds the unscaled, unclipped row. The derived indices read the
// raw per-minute values.
func baseVector(r features.Row) []float64 {
	var aggression, survival float64
	if r.GameDuration > 0 {
		aggression = (r.Kills + 0.5*r.Assists) / r.GameDuration
		survival = r.LongestTimeAlive / (r.GameDuration * 60)
	}
	teamContribution := 0.4*r.KillParticipation + 0.4*r.TotalDamageShare + 0.2*(1-r.DeathShare)
	combat := r.DamagePerMin / max(r.DamageTakenPerMin, 1)
	return []float64{
		r.KDA, r.Kills, r.Deaths, r.Assists,
		r.DamagePerMin, r.DamageTakenPerMin,
		r.DamageMitigatedPerMin, r.TotalDamageShare,
		r.GoldPerMin, r.CSPerMin, r.GoldEfficiency,
		r.CCTime, r.HealShieldGiven,
		r.KillParticipation, r.DeathShare,
		r.LongestTimeAlive,
		aggression, survival,
		teamContribution, combat,
	}
}
