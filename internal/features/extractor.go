package features

import (
	"context"
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bloom/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/aram-crawler/internal/riot"
	"github.com/JakeFAU/aram-crawler/internal/storage"
)

// MinGameDurationSeconds drops remakes and early surrenders from datasets.
const MinGameDurationSeconds = 300

const (
	bloomCapacity = 500000
	bloomFPRate   = 0.001
)

var errLimitReached = errors.New("match limit reached")

// Extractor builds feature rows from persisted match documents.
type Extractor struct {
	reader    storage.MatchReader
	logger    *zap.Logger
	newFilter func() *bloom.BloomFilter
}

// NewExtractor reads from the given store.
func NewExtractor(reader storage.MatchReader, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		reader: reader,
		logger: logger,
		newFilter: func() *bloom.BloomFilter {
			return bloom.NewWithEstimates(bloomCapacity, bloomFPRate)
		},
	}
}

// Eligible reports whether a match belongs in a training set.
func Eligible(detail riot.MatchDetail) bool {
	return detail.IsARAM() && detail.Info.GameDuration >= MinGameDurationSeconds
}

// Extract returns unlabeled rows for up to limit eligible matches; limit <= 0
// means all of them. A match id seen twice is only extracted once. The bloom
// filter only short-circuits ids it has never seen; its hits are confirmed
// against the exact set.
func (e *Extractor) Extract(ctx context.Context, limit int) ([]Row, error) {
	filter := e.newFilter()
	seen := make(map[string]struct{})
	var (
		rows     []Row
		matches  int
		skipped  int
		repeated int
	)
	err := e.reader.Each(ctx, storage.CollectionMatch, func(doc storage.MatchDocument) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		detail, err := riot.DecodeMatch(doc.Body)
		if err != nil {
			e.logger.Warn("skipping undecodable match", zap.String("match_id", doc.MatchID), zap.Error(err))
			skipped++
			return nil
		}
		if !Eligible(detail) {
			skipped++
			return nil
		}
		id := detail.Metadata.MatchID
		if id == "" {
			id = doc.MatchID
			detail.Metadata.MatchID = id
		}
		if filter.TestString(id) {
			if _, dup := seen[id]; dup {
				repeated++
				return nil
			}
		}
		filter.AddString(id)
		seen[id] = struct{}{}

		rows = append(rows, ExtractMatch(detail)...)
		matches++
		if limit > 0 && matches >= limit {
			return errLimitReached
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimitReached) {
		return nil, fmt.Errorf("scan matches: %w", err)
	}
	e.logger.Info("extracted match features",
		zap.Int("matches", matches),
		zap.Int("rows", len(rows)),
		zap.Int("skipped", skipped),
		zap.Int("repeated", repeated))
	return rows, nil
}

// ExtractLabeled is Extract followed by CalculatePerformanceLabels.
func (e *Extractor) ExtractLabeled(ctx context.Context, limit int) ([]Row, error) {
	rows, err := e.Extract(ctx, limit)
	if err != nil {
		return nil, err
	}
	return CalculatePerformanceLabels(rows), nil
}
