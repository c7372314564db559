package ranking

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"

	"github.com/sourcegraph/conc/pool"
)

// Regressor is one ensemble member.
type Regressor interface {
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) []float64
	Name() string
}

// Ridge is L2-regularized least squares with an unpenalized intercept.
type Ridge struct {
	Lambda    float64   `json:"lambda"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// NewRidge returns a ridge regressor with penalty lambda.
func NewRidge(lambda float64) *Ridge { return &Ridge{Lambda: lambda} }

// Name implements Regressor.
func (*Ridge) Name() string { return "ridge" }

// Fit solves (XcᵀXc + λI)w = Xcᵀyc on centered data.
func (r *Ridge) Fit(X [][]float64, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	n, d := len(X), len(X[0])
	xMean := make([]float64, d)
	for _, row := range X {
		for j, v := range row {
			xMean[j] += v
		}
	}
	for j := range xMean {
		xMean[j] /= float64(n)
	}
	yMean := mean(y)

	a := make([][]float64, d)
	for i := range a {
		a[i] = make([]float64, d)
	}
	b := make([]float64, d)
	for i, row := range X {
		yc := y[i] - yMean
		for j := range d {
			xj := row[j] - xMean[j]
			b[j] += xj * yc
			for k := j; k < d; k++ {
				a[j][k] += xj * (row[k] - xMean[k])
			}
		}
	}
	for j := range d {
		for k := 0; k < j; k++ {
			a[j][k] = a[k][j]
		}
		a[j][j] += r.Lambda
	}
	coef, err := solve(a, b)
	if err != nil {
		return fmt.Errorf("ridge: %w", err)
	}
	r.Coef = coef
	r.Intercept = yMean
	for j := range d {
		r.Intercept -= xMean[j] * coef[j]
	}
	return nil
}

// Predict implements Regressor.
func (r *Ridge) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		v := r.Intercept
		for j, c := range r.Coef {
			v += c * row[j]
		}
		out[i] = v
	}
	return out
}

// solve runs Gaussian elimination with partial pivoting. a and b are modified.
func solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	for col := range n {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, errors.New("singular system")
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]
		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			if f == 0 {
				continue
			}
			for c := col; c < n; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}
	x := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		v := b[r]
		for c := r + 1; c < n; c++ {
			v -= a[r][c] * x[c]
		}
		x[r] = v / a[r][r]
	}
	return x, nil
}

// KNN averages the targets of the k nearest training rows.
type KNN struct {
	K int         `json:"k"`
	X [][]float64 `json:"x"`
	Y []float64   `json:"y"`
}

// NewKNN returns a k-nearest-neighbours regressor.
func NewKNN(k int) *KNN { return &KNN{K: k} }

// Name implements Regressor.
func (*KNN) Name() string { return "knn" }

// Fit memorizes the training data.
func (m *KNN) Fit(X [][]float64, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	m.X = X
	m.Y = append([]float64(nil), y...)
	return nil
}

// Predict implements Regressor.
func (m *KNN) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	k := min(max(m.K, 1), len(m.X))
	if k == 0 {
		return out
	}
	type neighbour struct {
		dist float64
		idx  int
	}
	dists := make([]neighbour, len(m.X))
	for i, q := range X {
		for j, row := range m.X {
			var d float64
			for c, v := range row {
				diff := v - q[c]
				d += diff * diff
			}
			dists[j] = neighbour{dist: d, idx: j}
		}
		sort.Slice(dists, func(a, b int) bool {
			if dists[a].dist == dists[b].dist {
				return dists[a].idx < dists[b].idx
			}
			return dists[a].dist < dists[b].dist
		})
		var sum float64
		for _, nb := range dists[:k] {
			sum += m.Y[nb.idx]
		}
		out[i] = sum / float64(k)
	}
	return out
}

// Node is one node of a flattened regression tree. Leaves have Feature -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

// Tree is a CART regression tree split on squared error.
type Tree struct {
	MaxDepth    int    `json:"max_depth"`
	MinLeaf     int    `json:"min_leaf"`
	MaxFeatures int    `json:"max_features"`
	Seed        uint64 `json:"seed"`
	Nodes       []Node `json:"nodes"`

	rng *rand.Rand
}

// NewTree returns a regression tree. maxFeatures <= 0 considers every feature
// at each split.
func NewTree(maxDepth, minLeaf, maxFeatures int, seed uint64) *Tree {
	return &Tree{MaxDepth: maxDepth, MinLeaf: minLeaf, MaxFeatures: maxFeatures, Seed: seed}
}

// Name implements Regressor.
func (*Tree) Name() string { return "tree" }

// Fit implements Regressor.
func (t *Tree) Fit(X [][]float64, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	t.rng = rand.New(rand.NewPCG(t.Seed, t.Seed+1))
	t.Nodes = t.Nodes[:0]
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	t.grow(X, y, idx, 0)
	return nil
}

func (t *Tree) grow(X [][]float64, y []float64, idx []int, depth int) int {
	var sum float64
	for _, i := range idx {
		sum += y[i]
	}
	node := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{Feature: -1, Value: sum / float64(len(idx))})

	minLeaf := max(t.MinLeaf, 1)
	if depth >= t.MaxDepth || len(idx) < 2*minLeaf {
		return node
	}
	feature, threshold, ok := t.bestSplit(X, y, idx, minLeaf)
	if !ok {
		return node
	}
	var left, right []int
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := t.grow(X, y, left, depth+1)
	r := t.grow(X, y, right, depth+1)
	t.Nodes[node].Feature = feature
	t.Nodes[node].Threshold = threshold
	t.Nodes[node].Left = l
	t.Nodes[node].Right = r
	return node
}

func (t *Tree) candidateFeatures(d int) []int {
	all := make([]int, d)
	for i := range all {
		all[i] = i
	}
	if t.MaxFeatures <= 0 || t.MaxFeatures >= d {
		return all
	}
	t.rng.Shuffle(d, func(i, j int) { all[i], all[j] = all[j], all[i] })
	return all[:t.MaxFeatures]
}

// bestSplit maximizes the reduction in summed squared error.
func (t *Tree) bestSplit(X [][]float64, y []float64, idx []int, minLeaf int) (int, float64, bool) {
	n := len(idx)
	var total, totalSq float64
	for _, i := range idx {
		total += y[i]
		totalSq += y[i] * y[i]
	}
	parentSSE := totalSq - total*total/float64(n)

	bestGain := 1e-12
	bestFeature, bestThreshold, found := -1, 0.0, false
	order := make([]int, n)
	for _, f := range t.candidateFeatures(len(X[idx[0]])) {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool { return X[order[a]][f] < X[order[b]][f] })
		var leftSum, leftSq float64
		for pos := 0; pos < n-1; pos++ {
			v := y[order[pos]]
			leftSum += v
			leftSq += v * v
			nl := pos + 1
			nr := n - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			cur, next := X[order[pos]][f], X[order[pos+1]][f]
			if cur == next {
				continue
			}
			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
			if gain := parentSSE - sse; gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (cur + next) / 2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

// Predict implements Regressor.
func (t *Tree) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = t.predictOne(row)
	}
	return out
}

func (t *Tree) predictOne(row []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	n := 0
	for t.Nodes[n].Feature >= 0 {
		if row[t.Nodes[n].Feature] <= t.Nodes[n].Threshold {
			n = t.Nodes[n].Left
		} else {
			n = t.Nodes[n].Right
		}
	}
	return t.Nodes[n].Value
}

// Forest averages bagged trees grown on bootstrap samples with per-split
// feature subsampling.
type Forest struct {
	NumTrees int     `json:"num_trees"`
	MaxDepth int     `json:"max_depth"`
	MinLeaf  int     `json:"min_leaf"`
	Seed     uint64  `json:"seed"`
	Trees    []*Tree `json:"trees"`
}

// NewForest returns a random forest regressor.
func NewForest(numTrees, maxDepth, minLeaf int, seed uint64) *Forest {
	return &Forest{NumTrees: numTrees, MaxDepth: maxDepth, MinLeaf: minLeaf, Seed: seed}
}

// Name implements Regressor.
func (*Forest) Name() string { return "forest" }

// Fit grows the trees concurrently. Each tree has its own seed so the result
// does not depend on scheduling.
func (f *Forest) Fit(X [][]float64, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	d := len(X[0])
	maxFeatures := max(int(math.Sqrt(float64(d))), 1)
	trees := make([]*Tree, f.NumTrees)
	p := pool.New().WithErrors().WithMaxGoroutines(runtime.GOMAXPROCS(0))
	for i := range trees {
		p.Go(func() error {
			seed := f.Seed + uint64(i)*7919
			rng := rand.New(rand.NewPCG(seed, ^seed))
			sample := make([]int, len(X))
			for j := range sample {
				sample[j] = rng.IntN(len(X))
			}
			xs, ys := subset(X, y, sample)
			tree := NewTree(f.MaxDepth, f.MinLeaf, maxFeatures, seed)
			if err := tree.Fit(xs, ys); err != nil {
				return err
			}
			trees[i] = tree
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return fmt.Errorf("forest: %w", err)
	}
	f.Trees = trees
	return nil
}

// Predict implements Regressor.
func (f *Forest) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	if len(f.Trees) == 0 {
		return out
	}
	for _, tree := range f.Trees {
		for i, v := range tree.Predict(X) {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(f.Trees))
	}
	return out
}

// GBM is least-squares gradient boosting over shallow trees.
type GBM struct {
	Rounds       int     `json:"rounds"`
	MaxDepth     int     `json:"max_depth"`
	MinLeaf      int     `json:"min_leaf"`
	LearningRate float64 `json:"learning_rate"`
	Init         float64 `json:"init"`
	Trees        []*Tree `json:"trees"`
}

// NewGBM returns a gradient boosting regressor.
func NewGBM(rounds, maxDepth, minLeaf int, learningRate float64) *GBM {
	return &GBM{Rounds: rounds, MaxDepth: maxDepth, MinLeaf: minLeaf, LearningRate: learningRate}
}

// Name implements Regressor.
func (*GBM) Name() string { return "gbm" }

// Fit implements Regressor.
func (g *GBM) Fit(X [][]float64, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	g.Init = mean(y)
	g.Trees = g.Trees[:0]
	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = g.Init
	}
	residual := make([]float64, len(y))
	for round := range g.Rounds {
		for i := range y {
			residual[i] = y[i] - pred[i]
		}
		tree := NewTree(g.MaxDepth, g.MinLeaf, 0, uint64(round))
		if err := tree.Fit(X, residual); err != nil {
			return fmt.Errorf("gbm round %d: %w", round, err)
		}
		for i, v := range tree.Predict(X) {
			pred[i] += g.LearningRate * v
		}
		g.Trees = append(g.Trees, tree)
	}
	return nil
}

// Predict implements Regressor.
func (g *GBM) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i := range out {
		out[i] = g.Init
	}
	for _, tree := range g.Trees {
		for i, v := range tree.Predict(X) {
			out[i] += g.LearningRate * v
		}
	}
	return out
}
