package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/aram-crawler/internal/ranking"
	"github.com/JakeFAU/aram-crawler/internal/riot"
)

var champions = []string{"Lux", "Jinx", "Ezreal", "Sona", "Garen", "Zed", "Ahri", "Leona"}

func writeExport(t *testing.T, dir string, matches int) {
	t.Helper()
	rng := rand.New(rand.NewPCG(7, 8))
	for m := range matches {
		detail := riot.MatchDetail{
			Metadata: riot.Metadata{MatchID: fmt.Sprintf("KR_%03d", m)},
			Info: riot.Info{
				GameMode:     riot.ModeARAM,
				GameDuration: int64(900 + rng.IntN(600)),
			},
		}
		for p := range 10 {
			team := 100
			if p >= 5 {
				team = 200
			}
			detail.Info.Participants = append(detail.Info.Participants, riot.Participant{
				PUUID:                       fmt.Sprintf("p-%d-%d", m, p),
				ChampionName:                champions[(m+p)%len(champions)],
				TeamID:                      team,
				Win:                         team == 100,
				Kills:                       rng.IntN(15),
				Deaths:                      rng.IntN(12),
				Assists:                     rng.IntN(25),
				TotalDamageDealtToChampions: 10000 + rng.Float64()*30000,
				TotalDamageTaken:            8000 + rng.Float64()*25000,
				GoldEarned:                  7000 + rng.Float64()*6000,
				GoldSpent:                   6000 + rng.Float64()*6000,
				TotalMinionsKilled:          rng.Float64() * 60,
				LongestTimeSpentLiving:      rng.Float64() * 600,
			})
		}
		body, err := json.Marshal(detail)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, detail.Metadata.MatchID+".json"), body, 0o600))
	}
	// Too short and not ARAM: both are filtered out.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "short.json"),
		[]byte(`{"metadata":{"matchId":"short"},"info":{"gameMode":"ARAM","gameDuration":120}}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "classic.json"),
		[]byte(`{"metadata":{"matchId":"classic"},"info":{"gameMode":"CLASSIC","gameDuration":1800}}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))
}

func TestRunTrainsAndSavesBundle(t *testing.T) {
	docs := t.TempDir()
	out := filepath.Join(t.TempDir(), "model")
	writeExport(t, docs, 12)

	var stdout bytes.Buffer
	err := run(context.Background(), []string{"-docs", docs, "-out", out, "-test-size", "0.25", "-seed", "3"}, &stdout)
	require.NoError(t, err)

	var report ranking.Report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	assert.Equal(t, 120, report.TrainRows+report.TestRows)
	assert.Positive(t, report.TestRows)
	assert.Len(t, report.Weights, 5)

	bundle, err := ranking.LoadBundle(out)
	require.NoError(t, err)
	require.True(t, bundle.Ensemble.Trained())
}

func TestRunRequiresOutputDir(t *testing.T) {
	docs := t.TempDir()
	writeExport(t, docs, 1)
	err := run(context.Background(), []string{"-docs", docs}, &bytes.Buffer{})
	require.ErrorContains(t, err, "output directory")
}

func TestRunRequiresPostgresWithoutExport(t *testing.T) {
	err := run(context.Background(), []string{"-out", t.TempDir()}, &bytes.Buffer{})
	require.ErrorContains(t, err, "postgres")
}

func TestParseFlagsRejectsBadTestSize(t *testing.T) {
	t.Parallel()

	_, err := parseFlags([]string{"-test-size", "1.5"})
	require.Error(t, err)
	opts, err := parseFlags([]string{"-limit", "10", "-importance"})
	require.NoError(t, err)
	assert.Equal(t, 10, opts.limit)
	assert.True(t, opts.importance)
	assert.InDelta(t, 0.2, opts.testSize, 1e-9)
}
