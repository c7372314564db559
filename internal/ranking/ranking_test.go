package ranking

import (
	"bytes"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/aram-crawler/internal/features"
)

var champions = []string{"Lux", "Jinx", "Zed", "Sona", "Garen"}

// syntheticRows builds labeled rows for n matches of five players each.
func syntheticRows(n int, seed uint64) []features.Row {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	var rows []features.Row
	for m := range n {
		for p := range 5 {
			r := features.Row{
				MatchID:           fmt.Sprintf("KR_%03d", m),
				Champion:          champions[(m+p)%len(champions)],
				Win:               p%2 == 0,
				GameDuration:      15 + rng.Float64()*10,
				Kills:             float64(rng.IntN(15)),
				Deaths:            float64(rng.IntN(12)),
				Assists:           float64(rng.IntN(25)),
				DamagePerMin:      500 + rng.Float64()*1500,
				DamageTakenPerMin: 400 + rng.Float64()*1200,
				GoldPerMin:        300 + rng.Float64()*300,
				CSPerMin:          rng.Float64() * 4,
				GoldEfficiency:    0.6 + rng.Float64()*0.4,
				KillParticipation: rng.Float64(),
				TotalDamageShare:  rng.Float64() * 0.4,
				DeathShare:        rng.Float64() * 0.4,
				LongestTimeAlive:  rng.Float64() * 600,
			}
			r.KDA = (r.Kills + r.Assists) / max(r.Deaths, 1)
			rows = append(rows, r)
		}
	}
	return features.CalculatePerformanceLabels(rows)
}

func TestSplitByMatchKeepsMatchesTogether(t *testing.T) {
	t.Parallel()

	rows := syntheticRows(40, 1)
	train, test := SplitByMatch(rows, 0.2, 42)
	require.Len(t, append(train, test...), len(rows))

	trainIDs := map[string]bool{}
	for _, r := range train {
		trainIDs[r.MatchID] = true
	}
	testIDs := map[string]bool{}
	for _, r := range test {
		testIDs[r.MatchID] = true
		assert.False(t, trainIDs[r.MatchID], "match %s appears on both sides", r.MatchID)
	}
	assert.Len(t, testIDs, 8)

	again, _ := SplitByMatch(rows, 0.2, 42)
	assert.Equal(t, train, again)
}

func TestSplitByMatchSmallInputs(t *testing.T) {
	t.Parallel()

	train, test := SplitByMatch(syntheticRows(2, 3), 0.5, 1)
	assert.Len(t, train, 5)
	assert.Len(t, test, 5)

	train, test = SplitByMatch(syntheticRows(1, 3), 0.2, 1)
	assert.Len(t, train, 5)
	assert.Empty(t, test)
}

func TestQuantileInterpolates(t *testing.T) {
	t.Parallel()

	sorted := []float64{1, 2, 3, 4}
	assert.InDelta(t, 2.5, quantile(sorted, 0.5), 1e-12)
	assert.InDelta(t, 1.03, quantile(sorted, 0.01), 1e-12)
	assert.InDelta(t, 3.97, quantile(sorted, 0.99), 1e-12)
	assert.InDelta(t, 7.0, quantile([]float64{7}, 0.3), 1e-12)
}

func TestFeatureEngineer(t *testing.T) {
	t.Parallel()

	train := syntheticRows(20, 5)
	eng := NewFeatureEngineer()
	_, err := eng.Transform(train)
	require.ErrorIs(t, err, ErrNotTrained)

	X, err := eng.FitTransform(train)
	require.NoError(t, err)
	require.Len(t, X, len(train))
	require.Len(t, X[0], len(FeatureColumns))
	assert.Equal(t, 0, eng.ChampionCode(train[0].Champion))
	assert.Equal(t, UnseenChampion, eng.ChampionCode("Teemo"))

	outlier := train[0]
	outlier.Champion = "Teemo"
	outlier.KDA = 1e6
	Xo, err := eng.Transform([]features.Row{outlier})
	require.NoError(t, err)
	high := (eng.Clip["kda"].High - eng.Median[0]) / eng.Scale[0]
	assert.InDelta(t, high, Xo[0][0], 1e-9)
	assert.Equal(t, []int{UnseenChampion}, eng.ChampionCodes([]features.Row{outlier}))

	require.ErrorIs(t, NewFeatureEngineer().Fit(nil), ErrEmptyDataset)
}

func linearData(n int) ([][]float64, []float64) {
	rng := rand.New(rand.NewPCG(9, 10))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		a, b := rng.Float64()*10, rng.Float64()*10
		X[i] = []float64{a, b}
		y[i] = 2*a - 3*b + 1
	}
	return X, y
}

func TestRidgeRecoversLinearModel(t *testing.T) {
	t.Parallel()

	X, y := linearData(200)
	r := NewRidge(1e-6)
	require.NoError(t, r.Fit(X, y))
	assert.InDelta(t, 2.0, r.Coef[0], 1e-3)
	assert.InDelta(t, -3.0, r.Coef[1], 1e-3)
	assert.InDelta(t, 1.0, r.Intercept, 1e-2)
	assert.Less(t, MSE(r.Predict(X), y), 1e-6)
}

func TestTreeFitsStepFunction(t *testing.T) {
	t.Parallel()

	var X [][]float64
	var y []float64
	for i := range 40 {
		X = append(X, []float64{float64(i)})
		if i < 20 {
			y = append(y, 1)
		} else {
			y = append(y, 5)
		}
	}
	tree := NewTree(3, 2, 0, 1)
	require.NoError(t, tree.Fit(X, y))
	assert.Equal(t, []float64{1, 5}, tree.Predict([][]float64{{3}, {30}}))
	assert.InDelta(t, 19.5, tree.Nodes[0].Threshold, 1e-9)
}

func TestKNNAveragesNeighbours(t *testing.T) {
	t.Parallel()

	knn := NewKNN(2)
	require.NoError(t, knn.Fit([][]float64{{0}, {1}, {10}}, []float64{2, 4, 100}))
	assert.Equal(t, []float64{3}, knn.Predict([][]float64{{0.4}}))
}

func TestBoostingAndForestReduceError(t *testing.T) {
	t.Parallel()

	X, y := linearData(150)
	baseline := make([]float64, len(y))
	for i := range baseline {
		baseline[i] = mean(y)
	}
	baseMSE := MSE(baseline, y)

	gbm := NewGBM(50, 3, 2, 0.1)
	require.NoError(t, gbm.Fit(X, y))
	assert.Less(t, MSE(gbm.Predict(X), y), baseMSE/4)

	forest := NewForest(10, 6, 2, 3)
	require.NoError(t, forest.Fit(X, y))
	require.Len(t, forest.Trees, 10)
	assert.Less(t, MSE(forest.Predict(X), y), baseMSE/4)

	again := NewForest(10, 6, 2, 3)
	require.NoError(t, again.Fit(X, y))
	assert.Equal(t, forest.Predict(X), again.Predict(X))
}

func TestInverseWeights(t *testing.T) {
	t.Parallel()

	w := inverseWeights(map[string]float64{"a": 1, "b": 3})
	assert.InDelta(t, 0.75, w["a"], 1e-12)
	assert.InDelta(t, 0.25, w["b"], 1e-12)

	w = inverseWeights(map[string]float64{"exact": 0, "noisy": 1})
	assert.Greater(t, w["exact"], 0.999)
}

func TestKFoldsPartitionRows(t *testing.T) {
	t.Parallel()

	folds := kFolds(23, 5, 7)
	require.Len(t, folds, 5)
	seen := map[int]bool{}
	for _, f := range folds {
		for _, i := range f {
			assert.False(t, seen[i])
			seen[i] = true
		}
	}
	assert.Len(t, seen, 23)
	assert.Equal(t, folds, kFolds(23, 5, 7))
}

func TestEnsembleTrainPredictSaveLoad(t *testing.T) {
	t.Parallel()

	rows := syntheticRows(16, 11)
	eng := NewFeatureEngineer()
	X, err := eng.FitTransform(rows)
	require.NoError(t, err)
	y := Targets(rows)

	ens := NewEnsemble(42)
	_, err = ens.Predict(X)
	require.ErrorIs(t, err, ErrNotTrained)
	require.ErrorIs(t, ens.Save(&bytes.Buffer{}), ErrNotTrained)

	require.NoError(t, ens.Train(X, y))
	require.True(t, ens.Trained())
	var total float64
	for _, name := range ens.Members() {
		require.Contains(t, ens.Weights, name)
		total += ens.Weights[name]
	}
	assert.InDelta(t, 1.0, total, 1e-9)

	ranked, err := ens.PredictRankings(X, MatchIDs(rows))
	require.NoError(t, err)
	require.Len(t, ranked.Scores, len(rows))
	for _, r := range ranked.Rankings {
		assert.GreaterOrEqual(t, r, 1)
		assert.LessOrEqual(t, r, 5)
	}

	var buf bytes.Buffer
	require.NoError(t, ens.Save(&buf))
	loaded, err := LoadEnsemble(&buf)
	require.NoError(t, err)
	want, err := ens.Predict(X)
	require.NoError(t, err)
	got, err := loaded.Predict(X)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9)
	}

	imp, err := ens.FeatureImportance(X, y, FeatureColumns)
	require.NoError(t, err)
	require.Len(t, imp, len(FeatureColumns))
	for i := 1; i < len(imp); i++ {
		assert.GreaterOrEqual(t, imp[i-1].Importance, imp[i].Importance)
	}
}

func TestEnsembleRejectsBadInput(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, NewEnsemble(1).Train(nil, nil), ErrEmptyDataset)
	require.Error(t, NewEnsemble(1).Train([][]float64{{1}}, []float64{1, 2}))
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	m := Evaluate([]float64{1, 2, 3}, []float64{1, 2, 5}, []int{1, 2, 3, 4}, []int{1, 3, 5, 1})
	assert.InDelta(t, 4.0/3, m.MSE, 1e-12)
	assert.InDelta(t, math.Sqrt(4.0/3), m.RMSE, 1e-12)
	assert.InDelta(t, 2.0/3, m.MAE, 1e-12)
	assert.InDelta(t, 1.5, m.MeanRankDiff, 1e-12)
	assert.InDelta(t, 1.5, m.MedianRankDiff, 1e-12)
	assert.InDelta(t, 0.25, m.RankExactAccuracy, 1e-12)
	assert.InDelta(t, 0.5, m.RankWithin1Accuracy, 1e-12)
	assert.InDelta(t, 0.75, m.RankWithin2Accuracy, 1e-12)
}

func TestTrainPipelineAndBundle(t *testing.T) {
	t.Parallel()

	rows := syntheticRows(20, 21)
	bundle, report, err := Train(rows, TrainOptions{TestSize: 0.25, Seed: 7, Importance: true})
	require.NoError(t, err)
	assert.Equal(t, 75, report.TrainRows)
	assert.Equal(t, 25, report.TestRows)
	assert.Len(t, report.Importance, len(FeatureColumns))
	assert.Positive(t, report.Metrics.RMSE)

	dir := t.TempDir()
	require.NoError(t, SaveBundle(dir, *bundle))
	loaded, err := LoadBundle(dir)
	require.NoError(t, err)

	want, err := bundle.Score(rows[:5])
	require.NoError(t, err)
	got, err := loaded.Score(rows[:5])
	require.NoError(t, err)
	assert.Equal(t, want.Rankings, got.Rankings)

	_, _, err = Train(nil, TrainOptions{})
	require.ErrorIs(t, err, ErrEmptyDataset)
	_, err = LoadBundle(t.TempDir())
	require.Error(t, err)
}
