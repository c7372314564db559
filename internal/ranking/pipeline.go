package ranking

import (
	"fmt"

	"github.com/JakeFAU/aram-crawler/internal/features"
)

// TrainOptions control a full training run.
type TrainOptions struct {
	TestSize   float64
	Seed       uint64
	Importance bool
}

// Report describes a finished training run.
type Report struct {
	TrainRows  int                `json:"train_rows"`
	TestRows   int                `json:"test_rows"`
	MSE        map[string]float64 `json:"cv_mse"`
	Weights    map[string]float64 `json:"weights"`
	Metrics    Metrics            `json:"metrics"`
	Importance []Importance       `json:"importance,omitempty"`
}

// Train splits labeled rows by match, fits the engineer on the training
// side, trains the ensemble and evaluates it on the test side.
func Train(labeled []features.Row, opts TrainOptions) (*Bundle, Report, error) {
	if len(labeled) == 0 {
		return nil, Report{}, ErrEmptyDataset
	}
	train, test := SplitByMatch(labeled, opts.TestSize, opts.Seed)
	eng := NewFeatureEngineer()
	xTrain, err := eng.FitTransform(train)
	if err != nil {
		return nil, Report{}, fmt.Errorf("fit features: %w", err)
	}
	ens := NewEnsemble(opts.Seed)
	if err := ens.Train(xTrain, Targets(train)); err != nil {
		return nil, Report{}, fmt.Errorf("train ensemble: %w", err)
	}
	bundle := &Bundle{Engineer: eng, Ensemble: ens}
	report := Report{
		TrainRows: len(train),
		TestRows:  len(test),
		MSE:       ens.MSE,
		Weights:   ens.Weights,
	}
	if len(test) == 0 {
		return bundle, report, nil
	}

	xTest, err := eng.Transform(test)
	if err != nil {
		return nil, Report{}, err
	}
	yTest := Targets(test)
	ranked, err := ens.PredictRankings(xTest, MatchIDs(test))
	if err != nil {
		return nil, Report{}, err
	}
	rankTrue := make([]int, len(test))
	for i, r := range test {
		rankTrue[i] = r.RankInMatch
	}
	report.Metrics = Evaluate(ranked.Scores, yTest, rankTrue, ranked.Rankings)
	if opts.Importance {
		imp, err := ens.FeatureImportance(xTest, yTest, FeatureColumns)
		if err != nil {
			return nil, Report{}, fmt.Errorf("feature importance: %w", err)
		}
		report.Importance = imp
	}
	return bundle, report, nil
}
