package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/JakeFAU/aram-crawler/internal/config"
	"github.com/JakeFAU/aram-crawler/internal/features"
	"github.com/JakeFAU/aram-crawler/internal/logging"
	"github.com/JakeFAU/aram-crawler/internal/ranking"
	"github.com/JakeFAU/aram-crawler/internal/storage"
	memoryStorage "github.com/JakeFAU/aram-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/aram-crawler/internal/storage/postgres"
)

type options struct {
	configPath string
	docsDir    string
	outDir     string
	limit      int
	testSize   float64
	seed       uint64
	importance bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "aramrank: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("aramrank", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to config file")
	fs.StringVar(&opts.docsDir, "docs", "", "Directory of exported match JSON files (overrides the configured store)")
	fs.StringVar(&opts.outDir, "out", "", "Model output directory (defaults to ranking.model_dir)")
	fs.IntVar(&opts.limit, "limit", 0, "Maximum number of matches to extract (0 = all)")
	fs.Float64Var(&opts.testSize, "test-size", 0.2, "Fraction of matches held out for evaluation")
	fs.Uint64Var(&opts.seed, "seed", 42, "Random seed for the split and the ensemble")
	fs.BoolVar(&opts.importance, "importance", false, "Compute permutation feature importance")
	if err := fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("parse flags: %w", err)
	}
	if opts.testSize < 0 || opts.testSize >= 1 {
		return options{}, fmt.Errorf("test-size must be in [0, 1)")
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Development, "aramrank")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	outDir := opts.outDir
	if outDir == "" {
		outDir = cfg.Ranking.ModelDir
	}
	if outDir == "" {
		return errors.New("an output directory is required (-out or ranking.model_dir)")
	}

	reader, closeReader, err := openReader(ctx, cfg, opts.docsDir, logger)
	if err != nil {
		return err
	}
	defer closeReader()

	extractor := features.NewExtractor(reader, logging.Component(logger, "extractor"))
	labeled, err := extractor.ExtractLabeled(ctx, opts.limit)
	if err != nil {
		return fmt.Errorf("extract features: %w", err)
	}
	logger.Info("training ranking model", zap.Int("rows", len(labeled)), zap.Float64("test_size", opts.testSize))

	bundle, report, err := ranking.Train(labeled, ranking.TrainOptions{
		TestSize:   opts.testSize,
		Seed:       opts.seed,
		Importance: opts.importance,
	})
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	if err := ranking.SaveBundle(outDir, *bundle); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	logger.Info("model saved", zap.String("dir", outDir), zap.Any("weights", report.Weights))

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// openReader picks the document source: an export directory when given,
// otherwise the configured Postgres store.
func openReader(ctx context.Context, cfg config.Config, docsDir string, logger *zap.Logger) (storage.MatchReader, func(), error) {
	if docsDir != "" {
		docs, err := loadExport(ctx, docsDir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("loaded exported matches", zap.String("dir", docsDir), zap.Int("matches", docs.Count(storage.CollectionMatch)))
		return docs, func() {}, nil
	}
	if cfg.Storage.Backend != "postgres" {
		return nil, nil, errors.New("storage.backend must be postgres unless -docs is given")
	}
	pool, err := pgstore.Open(ctx, pgstore.PoolConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, nil, err
	}
	matches, err := pgstore.NewMatchStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return matches, pool.Close, nil
}

// loadExport reads every *.json file in dir as a match document keyed by its
// file name.
func loadExport(ctx context.Context, dir string) (*memoryStorage.DocumentStore, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read export dir: %w", err)
	}
	docs := memoryStorage.NewDocumentStore()
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		body, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		key := strings.TrimSuffix(entry.Name(), ".json")
		if err := docs.Save(ctx, storage.CollectionMatch, key, body); err != nil {
			return nil, err
		}
	}
	return docs, nil
}
