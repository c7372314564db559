package ranking

import (
	"errors"
	"math"
	"sort"
)

var (
	// ErrNotTrained is returned when predicting with an unfitted model.
	ErrNotTrained = errors.New("model is not trained")
	// ErrEmptyDataset is returned when there is nothing to fit on.
	ErrEmptyDataset = errors.New("dataset is empty")
)

func checkXY(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X[0]) == 0 {
		return ErrEmptyDataset
	}
	if len(X) != len(y) {
		return errors.New("feature rows and targets differ in length")
	}
	width := len(X[0])
	for _, row := range X {
		if len(row) != width {
			return errors.New("feature rows differ in width")
		}
	}
	return nil
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// quantile returns the q-th quantile with linear interpolation between the
// closest ranks. sorted must be ascending.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func sortedCopy(v []float64) []float64 {
	out := append([]float64(nil), v...)
	sort.Float64s(out)
	return out
}

func column(X [][]float64, j int) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = row[j]
	}
	return out
}

// MSE is the mean squared error of pred against y.
func MSE(pred, y []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	var sum float64
	for i := range y {
		d := pred[i] - y[i]
		sum += d * d
	}
	return sum / float64(len(y))
}

func subset(X [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, j := range idx {
		xs[i] = X[j]
		ys[i] = y[j]
	}
	return xs, ys
}
