package riot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/aram-crawler/internal/progress"
)

const matchJSON = `{"metadata":{"matchId":"KR_1","participants":["p1","p2"]},"info":{"gameMode":"ARAM","gameDuration":1200,"participants":[{"puuid":"p1","teamId":100,"win":true,"kills":5,"challenges":{"killParticipation":0.5}},{"puuid":"p2","teamId":200}]}}`

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) snapshot() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

type countingLimiter struct {
	calls atomic.Int64
	err   error
}

func (l *countingLimiter) Wait(context.Context, string) error {
	l.calls.Add(1)
	return l.err
}

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(Config{BaseURL: srv.URL, APIKey: "RGAPI-test", Timeout: 5 * time.Second}, opts...)
	require.NoError(t, err)
	return client
}

func TestListMatchIDs(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "RGAPI-test", r.Header.Get("X-Riot-Token"))
		assert.Equal(t, "/lol/match/v5/matches/by-puuid/puuid-1/ids", r.URL.Path)
		assert.Equal(t, "0", r.URL.Query().Get("start"))
		assert.Equal(t, "100", r.URL.Query().Get("count"))
		_, _ = w.Write([]byte(`["KR_1","KR_2"]`))
	}))

	ids := client.ListMatchIDs(context.Background(), "puuid-1", 0, 100)
	require.Equal(t, []string{"KR_1", "KR_2"}, ids)
}

func TestListMatchIDsFailuresAreEmpty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"forbidden", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusForbidden) }},
		{"bad json", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"not":"a list"}`)) }},
		{"null", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`null`)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newTestClient(t, tt.handler)
			ids := client.ListMatchIDs(context.Background(), "puuid-1", 0, 100)
			require.NotNil(t, ids)
			require.Empty(t, ids)
		})
	}
}

func TestMatchDetailAndTimeline(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/lol/match/v5/matches/KR_1":
			_, _ = w.Write([]byte(matchJSON))
		case "/lol/match/v5/matches/KR_1/timeline":
			_, _ = w.Write([]byte(`{"info":{"frames":[]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	ctx := context.Background()

	doc, ok := client.MatchDetail(ctx, "KR_1")
	require.True(t, ok)
	detail, err := DecodeMatch(doc)
	require.NoError(t, err)
	require.Equal(t, "KR_1", detail.Metadata.MatchID)
	require.True(t, detail.IsARAM())
	require.Equal(t, int64(1200), detail.Info.GameDuration)
	require.Len(t, detail.Info.Participants, 2)
	require.NotNil(t, detail.Info.Participants[0].Challenges)
	require.InDelta(t, 0.5, *detail.Info.Participants[0].Challenges.KillParticipation, 1e-9)
	require.Nil(t, detail.Info.Participants[1].Challenges)

	timeline, ok := client.MatchTimeline(ctx, "KR_1")
	require.True(t, ok)
	require.JSONEq(t, `{"info":{"frames":[]}}`, string(timeline))

	missing, ok := client.MatchDetail(ctx, "KR_404")
	require.False(t, ok)
	require.Nil(t, missing)
}

func TestThrottledResponseIsAbsentAndNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "10")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, ok := client.MatchDetail(context.Background(), "KR_1")
	require.False(t, ok)
	require.Equal(t, int64(1), hits.Load())
}

func TestInvalidDocumentIsAbsent(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"truncated":`))
	}))
	_, ok := client.MatchTimeline(context.Background(), "KR_1")
	require.False(t, ok)
}

func TestAsyncVariantsDeliverOneResult(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/timeline") {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(matchJSON))
	}))
	ctx := context.Background()

	detailCh := client.MatchDetailAsync(ctx, "KR_1")
	timelineCh := client.MatchTimelineAsync(ctx, "KR_1")

	detail := <-detailCh
	require.True(t, detail.OK)
	require.Equal(t, "KR_1", detail.MatchID)
	_, open := <-detailCh
	require.False(t, open)

	timeline := <-timelineCh
	require.False(t, timeline.OK)
	require.Nil(t, timeline.Doc)
}

func TestFetchMatchesIsolatesFailures(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		switch r.URL.Path {
		case "/lol/match/v5/matches/KR_2":
			w.WriteHeader(http.StatusInternalServerError)
		case "/lol/match/v5/matches/KR_3", "/lol/match/v5/matches/KR_3/timeline":
			w.WriteHeader(http.StatusNotFound)
		default:
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}))
	client.maxInFlight = 2

	results := client.FetchMatches(context.Background(), []string{"KR_1", "KR_2", "KR_3"})
	require.Len(t, results, 3)

	require.Equal(t, "KR_1", results[0].MatchID)
	require.NotNil(t, results[0].Detail)
	require.NotNil(t, results[0].Timeline)

	require.Equal(t, "KR_2", results[1].MatchID)
	require.Nil(t, results[1].Detail)
	require.NotNil(t, results[1].Timeline)
	require.True(t, results[1].Found())

	require.False(t, results[2].Found())
	require.LessOrEqual(t, peak.Load(), int64(2))
}

func TestFetchEventsCarryRunAndLimiterIsConsulted(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	limiter := &countingLimiter{}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}), WithEmitter(emitter), WithLimiter(limiter))

	run := [16]byte{1, 2, 3}
	ctx := progress.WithRunID(context.Background(), run)
	_, ok := client.MatchDetail(ctx, "KR_1")
	require.False(t, ok)

	require.Equal(t, int64(1), limiter.calls.Load())
	events := emitter.snapshot()
	require.Len(t, events, 1)
	require.Equal(t, progress.StageFetchDone, events[0].Stage)
	require.Equal(t, RouteMatch, events[0].Route)
	require.Equal(t, progress.Status4xx, events[0].StatusClass)
	require.Equal(t, run, events[0].RunID)
	require.NoError(t, events[0].Validate())
}

func TestLimiterErrorSkipsRequest(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	limiter := &countingLimiter{err: context.DeadlineExceeded}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}), WithLimiter(limiter))

	require.Empty(t, client.ListMatchIDs(context.Background(), "p", 0, 10))
	require.Zero(t, hits.Load())
}

func TestNewValidatesBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseURL: "not a url"})
	require.Error(t, err)

	client, err := New(Config{})
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, client.base.String())
	require.False(t, client.HasAPIKey())
}
