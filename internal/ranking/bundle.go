package ranking

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JakeFAU/aram-crawler/internal/features"
)

// Bundle file names inside a model directory.
const (
	EngineerFile = "engineer.json"
	EnsembleFile = "ensemble.json"
)

// Bundle is a fitted engineer and its trained ensemble.
type Bundle struct {
	Engineer *FeatureEngineer
	Ensemble *Ensemble
}

// Score ranks labeled or unlabeled rows with the bundle.
func (b *Bundle) Score(rows []features.Row) (Rankings, error) {
	if b == nil || b.Engineer == nil || b.Ensemble == nil {
		return Rankings{}, ErrNotTrained
	}
	X, err := b.Engineer.Transform(rows)
	if err != nil {
		return Rankings{}, err
	}
	return b.Ensemble.PredictRankings(X, MatchIDs(rows))
}

// SaveBundle writes engineer.json and ensemble.json to dir.
func SaveBundle(dir string, b Bundle) (err error) {
	if b.Engineer == nil || b.Ensemble == nil {
		return ErrNotTrained
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	raw, err := json.MarshalIndent(b.Engineer, "", "  ")
	if err != nil {
		return fmt.Errorf("encode engineer: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, EngineerFile), raw, 0o600); err != nil {
		return fmt.Errorf("write engineer: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, EnsembleFile))
	if err != nil {
		return fmt.Errorf("create ensemble file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close ensemble file: %w", cerr)
		}
	}()
	return b.Ensemble.Save(f)
}

// LoadBundle reads a bundle written by SaveBundle.
func LoadBundle(dir string) (*Bundle, error) {
	raw, err := os.ReadFile(filepath.Join(dir, EngineerFile))
	if err != nil {
		return nil, fmt.Errorf("read engineer: %w", err)
	}
	eng := NewFeatureEngineer()
	if err := json.Unmarshal(raw, eng); err != nil {
		return nil, fmt.Errorf("decode engineer: %w", err)
	}
	if !eng.Fitted {
		return nil, errors.New("engineer in bundle is not fitted")
	}
	f, err := os.Open(filepath.Join(dir, EnsembleFile))
	if err != nil {
		return nil, fmt.Errorf("open ensemble: %w", err)
	}
	defer func() { _ = f.Close() }()
	ens, err := LoadEnsemble(f)
	if err != nil {
		return nil, err
	}
	return &Bundle{Engineer: eng, Ensemble: ens}, nil
}
