package features

import "sort"

// Label weights and normalizers.
const (
	weightKDA            = 0.25
	weightDamage         = 0.20
	weightKillPart       = 0.20
	weightGold           = 0.10
	weightSurvival       = 0.15
	weightGoldEfficiency = 0.10

	damageNormalizer = 1000.0
	goldNormalizer   = 500.0
	winBonus         = 1.1
)

// PerformanceScore is the weighted label of one row.
func PerformanceScore(r Row) float64 {
	score := weightKDA*r.KDA +
		weightDamage*(r.DamagePerMin/damageNormalizer) +
		weightKillPart*r.KillParticipation +
		weightGold*(r.GoldPerMin/goldNormalizer) +
		weightSurvival*(1-r.DeathShare) +
		weightGoldEfficiency*r.GoldEfficiency
	if r.Win {
		score *= winBonus
	}
	return score
}

// CalculatePerformanceLabels returns a copy of rows with PerformanceScore set
// and RankInMatch assigned per match, best score first.
func CalculatePerformanceLabels(rows []Row) []Row {
	out := make([]Row, len(rows))
	copy(out, rows)
	scores := make([]float64, len(out))
	matchIDs := make([]string, len(out))
	for i := range out {
		out[i].PerformanceScore = PerformanceScore(out[i])
		scores[i] = out[i].PerformanceScore
		matchIDs[i] = out[i].MatchID
	}
	for i, rank := range RankByMatch(scores, matchIDs) {
		out[i].RankInMatch = rank
	}
	return out
}

// RankMin ranks scores in descending order. Equal scores share the lowest
// rank of their group, so [5, 5, 3] ranks as [1, 1, 3].
func RankMin(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	ranks := make([]int, len(scores))
	for pos, i := range order {
		if pos > 0 && scores[i] == scores[order[pos-1]] {
			ranks[i] = ranks[order[pos-1]]
			continue
		}
		ranks[i] = pos + 1
	}
	return ranks
}

// RankByMatch applies RankMin to scores grouped by matchIDs.
func RankByMatch(scores []float64, matchIDs []string) []int {
	groups := make(map[string][]int)
	for i, id := range matchIDs {
		groups[id] = append(groups[id], i)
	}
	ranks := make([]int, len(scores))
	for _, idx := range groups {
		sub := make([]float64, len(idx))
		for j, i := range idx {
			sub[j] = scores[i]
		}
		for j, rank := range RankMin(sub) {
			ranks[idx[j]] = rank
		}
	}
	return ranks
}
