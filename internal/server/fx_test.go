package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/aram-crawler/internal/config"
	"github.com/JakeFAU/aram-crawler/internal/storage"
)

func baseConfig() *config.Config {
	return &config.Config{
		Application: config.ApplicationConfig{ServiceName: "aram-crawler-test"},
		Server:      config.ServerConfig{Port: 8080},
		Riot:        config.RiotConfig{TimeoutSeconds: 5, MaxInFlight: 4},
		Crawler: config.CrawlerConfig{
			MatchPageSize:        100,
			MaxRequestsPerWindow: 2000,
			BatchSize:            200,
			UserTTLHours:         6,
		},
		Queue: config.QueueConfig{
			Backend:     "memory",
			UserPrefix:  "user_id",
			MatchPrefix: "match_id",
		},
		Storage:   config.StorageConfig{Backend: "memory"},
		Scheduler: config.SchedulerConfig{Enabled: true, IntervalSeconds: 120, Retries: 1},
	}
}

func TestBuildWiresMemoryBackends(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app, err := Build(ctx, baseConfig())
	require.NoError(t, err)
	t.Cleanup(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Close(closeCtx)
	})
	require.NotNil(t, app.scheduler)
	require.NotNil(t, app.Orchestrator())
	require.Nil(t, app.redis)
	require.Nil(t, app.pool)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/cycles/users", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "No API key", body["message"])

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// Without a model directory the rankings route is unavailable.
	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/matches/KR_1/rankings", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSetupQueuesRedis(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.Queue.Backend = "redis"
	cfg.Queue.Redis.Addr = mr.Addr()
	app := &App{cfg: cfg, logger: zap.NewNop()}

	ctx := context.Background()
	users, matches, err := setupQueues(ctx, app)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.redis.Close() })
	require.NotNil(t, app.redis)

	_, err = users.Add(ctx, "puuid-1", time.Hour)
	require.NoError(t, err)
	_, err = matches.Add(ctx, "KR_1")
	require.NoError(t, err)

	userList, err := mr.List("user_id_queue")
	require.NoError(t, err)
	assert.Equal(t, []string{"puuid-1"}, userList)
	matchList, err := mr.List("match_id_queue")
	require.NoError(t, err)
	assert.Equal(t, []string{"KR_1"}, matchList)
	require.NoError(t, app.ready(ctx))
}

func TestSetupQueuesRedisUnreachable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := baseConfig()
	cfg.Queue.Backend = "redis"
	cfg.Queue.Redis.Addr = addr
	_, _, err := setupQueues(context.Background(), &App{cfg: cfg, logger: zap.NewNop()})
	require.Error(t, err)
}

func TestSetupStoresWithLocalArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := baseConfig()
	cfg.Storage.Archive = config.ArchiveConfig{Backend: "local", LocalDir: dir, Prefix: "matches"}
	app := &App{cfg: cfg, logger: zap.NewNop()}

	ctx := context.Background()
	st, err := setupStores(ctx, app)
	require.NoError(t, err)
	_, isArchive := st.docs.(*storage.Archive)
	require.True(t, isArchive)

	require.NoError(t, st.docs.Save(ctx, storage.CollectionMatch, "KR_1", json.RawMessage(`{"a":1}`)))
	doc, err := st.reader.Load(ctx, storage.CollectionMatch, "KR_1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(doc))

	var found []string
	require.NoError(t, filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			found = append(found, filepath.Base(path))
		}
		return err
	}))
	assert.Equal(t, []string{"KR_1.json"}, found)
}

func TestLoadBundleMissingDirIsTolerated(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Ranking.ModelDir = filepath.Join(t.TempDir(), "missing")
	require.Nil(t, loadBundle(&App{cfg: cfg, logger: zap.NewNop()}))

	cfg.Ranking.ModelDir = ""
	require.Nil(t, loadBundle(&App{cfg: cfg, logger: zap.NewNop()}))
}
