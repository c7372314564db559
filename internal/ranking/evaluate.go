package ranking

import (
	"math"
	"math/rand/v2"
	"sort"
)

// Metrics summarizes model quality on held-out rows.
type Metrics struct {
	MSE                float64 `json:"mse"`
	RMSE               float64 `json:"rmse"`
	MAE                float64 `json:"mae"`
	MeanRankDiff       float64 `json:"mean_rank_diff"`
	MedianRankDiff     float64 `json:"median_rank_diff"`
	RankExactAccuracy  float64 `json:"rank_exact_accuracy"`
	RankWithin1Accuracy float64 `json:"rank_within_1_accuracy"`
	RankWithin2Accuracy float64 `json:"rank_within_2_accuracy"`
}

// Evaluate compares predicted scores and ranks with the labels.
func Evaluate(pred, y []float64, rankTrue, rankPred []int) Metrics {
	var m Metrics
	if len(y) > 0 {
		m.MSE = MSE(pred, y)
		m.RMSE = math.Sqrt(m.MSE)
		var abs float64
		for i := range y {
			abs += math.Abs(pred[i] - y[i])
		}
		m.MAE = abs / float64(len(y))
	}
	if n := len(rankTrue); n > 0 {
		diffs := make([]float64, n)
		var exact, within1, within2 int
		for i := range rankTrue {
			d := math.Abs(float64(rankTrue[i] - rankPred[i]))
			diffs[i] = d
			switch {
			case d == 0:
				exact++
				within1++
				within2++
			case d <= 1:
				within1++
				within2++
			case d <= 2:
				within2++
			}
		}
		m.MeanRankDiff = mean(diffs)
		m.MedianRankDiff = quantile(sortedCopy(diffs), 0.5)
		m.RankExactAccuracy = float64(exact) / float64(n)
		m.RankWithin1Accuracy = float64(within1) / float64(n)
		m.RankWithin2Accuracy = float64(within2) / float64(n)
	}
	return m
}

// Importance is the MSE increase caused by shuffling one feature.
type Importance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// FeatureImportance computes permutation importance of each column, sorted
// from most to least important.
func (e *Ensemble) FeatureImportance(X [][]float64, y []float64, cols []string) ([]Importance, error) {
	if err := checkXY(X, y); err != nil {
		return nil, err
	}
	base, err := e.Predict(X)
	if err != nil {
		return nil, err
	}
	baseMSE := MSE(base, y)
	rng := rand.New(rand.NewPCG(e.Seed, e.Seed+17))

	out := make([]Importance, 0, len(cols))
	shuffled := make([][]float64, len(X))
	for j, name := range cols {
		perm := rng.Perm(len(X))
		for i, row := range X {
			cp := append([]float64(nil), row...)
			cp[j] = X[perm[i]][j]
			shuffled[i] = cp
		}
		pred, err := e.Predict(shuffled)
		if err != nil {
			return nil, err
		}
		out = append(out, Importance{Feature: name, Importance: MSE(pred, y) - baseMSE})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Importance > out[b].Importance })
	return out, nil
}
