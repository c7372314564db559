package ranking

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/JakeFAU/aram-crawler/internal/features"
)

// Ensemble hyperparameters.
const (
	RidgeLambda     = 1.0
	KNNNeighbours   = 15
	TreeMaxDepth    = 6
	TreeMinLeaf     = 5
	ForestTrees     = 25
	GBMRounds       = 100
	GBMMaxDepth     = 3
	GBMLearningRate = 0.05
	CVFolds         = 5
	minMSE          = 1e-12
)

// member pairs a name with a constructor so cross-validation can fit fresh
// copies.
type member struct {
	name string
	make func(seed uint64) Regressor
}

var members = []member{
	{"ridge", func(uint64) Regressor { return NewRidge(RidgeLambda) }},
	{"knn", func(uint64) Regressor { return NewKNN(KNNNeighbours) }},
	{"tree", func(seed uint64) Regressor { return NewTree(TreeMaxDepth, TreeMinLeaf, 0, seed) }},
	{"forest", func(seed uint64) Regressor { return NewForest(ForestTrees, TreeMaxDepth, TreeMinLeaf, seed) }},
	{"gbm", func(uint64) Regressor { return NewGBM(GBMRounds, GBMMaxDepth, TreeMinLeaf, GBMLearningRate) }},
}

// Ensemble blends its members by inverse cross-validated MSE.
type Ensemble struct {
	Seed    uint64
	Models  map[string]Regressor
	MSE     map[string]float64
	Weights map[string]float64
	order   []string
	trained bool
}

// NewEnsemble returns an untrained ensemble of ridge, knn, tree, forest and
// gbm regressors.
func NewEnsemble(seed uint64) *Ensemble {
	order := make([]string, len(members))
	for i, m := range members {
		order[i] = m.name
	}
	return &Ensemble{Seed: seed, order: order}
}

// Members returns the member names in blending order.
func (e *Ensemble) Members() []string {
	return append([]string(nil), e.order...)
}

// Trained reports whether Train or Load succeeded.
func (e *Ensemble) Trained() bool { return e.trained }

// Train cross-validates every member, refits it on all rows and derives the
// blending weights.
func (e *Ensemble) Train(X [][]float64, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	folds := kFolds(len(X), CVFolds, e.Seed)
	e.Models = make(map[string]Regressor, len(members))
	e.MSE = make(map[string]float64, len(members))
	for _, m := range members {
		mse, err := crossValidate(m, X, y, folds, e.Seed)
		if err != nil {
			return fmt.Errorf("cross-validate %s: %w", m.name, err)
		}
		model := m.make(e.Seed)
		if err := model.Fit(X, y); err != nil {
			return fmt.Errorf("fit %s: %w", m.name, err)
		}
		e.Models[m.name] = model
		e.MSE[m.name] = mse
	}
	e.Weights = inverseWeights(e.MSE)
	e.trained = true
	return nil
}

func inverseWeights(mse map[string]float64) map[string]float64 {
	inv := make(map[string]float64, len(mse))
	var total float64
	for name, v := range mse {
		inv[name] = 1 / max(v, minMSE)
		total += inv[name]
	}
	for name := range inv {
		inv[name] /= total
	}
	return inv
}

// kFolds assigns each row index to one of k folds after a seeded shuffle.
func kFolds(n, k int, seed uint64) [][]int {
	k = min(k, n)
	perm := rand.New(rand.NewPCG(seed, seed+0x5851f42d)).Perm(n)
	folds := make([][]int, k)
	for pos, i := range perm {
		folds[pos%k] = append(folds[pos%k], i)
	}
	return folds
}

func crossValidate(m member, X [][]float64, y []float64, folds [][]int, seed uint64) (float64, error) {
	if len(folds) < 2 {
		model := m.make(seed)
		if err := model.Fit(X, y); err != nil {
			return 0, err
		}
		return MSE(model.Predict(X), y), nil
	}
	var total float64
	for f, held := range folds {
		var trainIdx []int
		for g, fold := range folds {
			if g != f {
				trainIdx = append(trainIdx, fold...)
			}
		}
		xTrain, yTrain := subset(X, y, trainIdx)
		xTest, yTest := subset(X, y, held)
		model := m.make(seed + uint64(f))
		if err := model.Fit(xTrain, yTrain); err != nil {
			return 0, err
		}
		total += MSE(model.Predict(xTest), yTest)
	}
	return total / float64(len(folds)), nil
}

// Predict returns the weighted sum of member predictions.
func (e *Ensemble) Predict(X [][]float64) ([]float64, error) {
	if !e.trained {
		return nil, ErrNotTrained
	}
	out := make([]float64, len(X))
	for _, name := range e.order {
		w := e.Weights[name]
		for i, v := range e.Models[name].Predict(X) {
			out[i] += w * v
		}
	}
	return out, nil
}

// Rankings holds predicted scores and their per-match min ranks.
type Rankings struct {
	Scores   []float64 `json:"scores"`
	Rankings []int     `json:"rankings"`
}

// PredictRankings scores X and ranks rows within each match.
func (e *Ensemble) PredictRankings(X [][]float64, matchIDs []string) (Rankings, error) {
	if len(X) != len(matchIDs) {
		return Rankings{}, fmt.Errorf("rows and match ids differ in length")
	}
	scores, err := e.Predict(X)
	if err != nil {
		return Rankings{}, err
	}
	return Rankings{Scores: scores, Rankings: features.RankByMatch(scores, matchIDs)}, nil
}

type ensembleState struct {
	Seed    uint64                     `json:"seed"`
	MSE     map[string]float64         `json:"mse"`
	Weights map[string]float64         `json:"weights"`
	Models  map[string]json.RawMessage `json:"models"`
}

// Save writes the trained ensemble as JSON.
func (e *Ensemble) Save(w io.Writer) error {
	if !e.trained {
		return ErrNotTrained
	}
	state := ensembleState{
		Seed:    e.Seed,
		MSE:     e.MSE,
		Weights: e.Weights,
		Models:  make(map[string]json.RawMessage, len(e.Models)),
	}
	for name, model := range e.Models {
		raw, err := json.Marshal(model)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		state.Models[name] = raw
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(state); err != nil {
		return fmt.Errorf("encode ensemble: %w", err)
	}
	return nil
}

// LoadEnsemble reads an ensemble written by Save.
func LoadEnsemble(r io.Reader) (*Ensemble, error) {
	var state ensembleState
	if err := json.NewDecoder(r).Decode(&state); err != nil {
		return nil, fmt.Errorf("decode ensemble: %w", err)
	}
	e := NewEnsemble(state.Seed)
	e.MSE = state.MSE
	e.Weights = state.Weights
	e.Models = make(map[string]Regressor, len(members))
	for _, m := range members {
		raw, ok := state.Models[m.name]
		if !ok {
			return nil, fmt.Errorf("ensemble is missing member %s", m.name)
		}
		model := m.make(state.Seed)
		if err := json.Unmarshal(raw, model); err != nil {
			return nil, fmt.Errorf("decode %s: %w", m.name, err)
		}
		e.Models[m.name] = model
	}
	e.trained = true
	return e, nil
}
