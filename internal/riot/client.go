// Package riot talks to the Riot match-v5 REST API. Every call is read-only
// and never returns transport or status failures as errors: a failed listing
// is an empty slice and a failed lookup is an absent document, matching how
// the crawl cycles treat both cases (skip and move on).
package riot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/JakeFAU/aram-crawler/internal/progress"
	"github.com/JakeFAU/aram-crawler/internal/telemetry"
)

// Route labels used for metrics, limiter buckets and progress events.
const (
	RouteMatchIDs = "match-ids"
	RouteMatch    = "match"
	RouteTimeline = "timeline"
)

const (
	// DefaultBaseURL is the regional routing host the crawler was deployed against.
	DefaultBaseURL     = "https://asia.api.riotgames.com"
	defaultTimeout     = 30 * time.Second
	defaultMaxInFlight = 64
	maxBodyBytes       = 16 << 20
	tokenHeader        = "X-Riot-Token"
)

// Config holds the client settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxInFlight int
}

// Limiter blocks until a request on route may proceed.
type Limiter interface {
	Wait(ctx context.Context, route string) error
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport. The client's own Timeout wins over
// Config.Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLimiter throttles outgoing requests per route.
func WithLimiter(l Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithEmitter reports every finished request as a FETCH_DONE event.
func WithEmitter(e progress.Emitter) Option {
	return func(c *Client) {
		if e != nil {
			c.emitter = e
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client is safe for concurrent use.
type Client struct {
	base        *url.URL
	apiKey      string
	maxInFlight int
	http        *http.Client
	limiter     Limiter
	emitter     progress.Emitter
	logger      *zap.Logger
}

// New validates cfg and builds a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", raw)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	c := &Client{
		base:        base,
		apiKey:      cfg.APIKey,
		maxInFlight: maxInFlight,
		http:        &http.Client{Timeout: timeout},
		emitter:     progress.NopEmitter{},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// HasAPIKey reports whether a token is configured.
func (c *Client) HasAPIKey() bool {
	return strings.TrimSpace(c.apiKey) != ""
}

// ListMatchIDs returns up to count match ids for puuid starting at start.
// Any failure yields an empty slice, so "no matches" and "request failed"
// look the same to callers.
func (c *Client) ListMatchIDs(ctx context.Context, puuid string, start, count int) []string {
	path := "/lol/match/v5/matches/by-puuid/" + url.PathEscape(puuid) + "/ids"
	query := url.Values{}
	query.Set("start", strconv.Itoa(start))
	query.Set("count", strconv.Itoa(count))

	body, ok := c.get(ctx, RouteMatchIDs, path, query)
	if !ok {
		return []string{}
	}
	var ids []string
	if err := sonic.Unmarshal(body, &ids); err != nil {
		c.logger.Warn("decode match id list failed", zap.String("puuid", puuid), zap.Error(err))
		return []string{}
	}
	if ids == nil {
		ids = []string{}
	}
	return ids
}

// MatchDetail fetches the full match record.
func (c *Client) MatchDetail(ctx context.Context, matchID string) (Document, bool) {
	return c.document(ctx, RouteMatch, "/lol/match/v5/matches/"+url.PathEscape(matchID))
}

// MatchTimeline fetches the frame-by-frame timeline of a match.
func (c *Client) MatchTimeline(ctx context.Context, matchID string) (Document, bool) {
	return c.document(ctx, RouteTimeline, "/lol/match/v5/matches/"+url.PathEscape(matchID)+"/timeline")
}

// Result is the outcome of one asynchronous lookup. Doc is nil when OK is false.
type Result struct {
	MatchID string
	Doc     Document
	OK      bool
}

// MatchDetailAsync starts a detail lookup and delivers exactly one Result on
// the returned channel.
func (c *Client) MatchDetailAsync(ctx context.Context, matchID string) <-chan Result {
	return c.async(ctx, matchID, c.MatchDetail)
}

// MatchTimelineAsync starts a timeline lookup and delivers exactly one Result.
func (c *Client) MatchTimelineAsync(ctx context.Context, matchID string) <-chan Result {
	return c.async(ctx, matchID, c.MatchTimeline)
}

func (c *Client) async(ctx context.Context, matchID string, fn func(context.Context, string) (Document, bool)) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		doc, ok := fn(ctx, matchID)
		out <- Result{MatchID: matchID, Doc: doc, OK: ok}
	}()
	return out
}

// MatchData pairs the detail and timeline fetched for one id. Either field is
// nil when its request failed.
type MatchData struct {
	MatchID  string
	Detail   Document
	Timeline Document
}

// Found reports whether at least one of the two documents came back.
func (m MatchData) Found() bool {
	return m.Detail != nil || m.Timeline != nil
}

// FetchMatches requests detail and timeline for every id concurrently, two
// requests per id, bounded by MaxInFlight. Results keep the order of ids and a
// failed request only blanks its own field.
func (c *Client) FetchMatches(ctx context.Context, ids []string) []MatchData {
	results := make([]MatchData, len(ids))
	p := pool.New().WithMaxGoroutines(c.maxInFlight)
	for i, id := range ids {
		results[i].MatchID = id
		p.Go(func() {
			if doc, ok := c.MatchDetail(ctx, id); ok {
				results[i].Detail = doc
			}
		})
		p.Go(func() {
			if doc, ok := c.MatchTimeline(ctx, id); ok {
				results[i].Timeline = doc
			}
		})
	}
	p.Wait()
	return results
}

func (c *Client) document(ctx context.Context, route, path string) (Document, bool) {
	body, ok := c.get(ctx, route, path, nil)
	if !ok {
		return nil, false
	}
	if !sonic.Valid(body) {
		c.logger.Warn("upstream returned invalid json", zap.String("route", route), zap.String("path", path))
		return nil, false
	}
	return Document(body), true
}

func (c *Client) get(ctx context.Context, route, path string, query url.Values) ([]byte, bool) {
	logger := c.logger.With(zap.String("route", route), zap.String("path", path))
	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx, route); err != nil {
			logger.Warn("rate limiter wait aborted", zap.Error(err))
			return nil, false
		}
		telemetry.ObserveRateLimitDelay(route, time.Since(waitStart))
	}

	endpoint := c.base.JoinPath(path)
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		logger.Error("build request failed", zap.Error(err))
		return nil, false
	}
	req.Header.Set(tokenHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.finish(ctx, route, 0, time.Since(start))
		if errors.Is(err, context.Canceled) {
			logger.Debug("request cancelled", zap.Error(err))
		} else {
			logger.Warn("request failed", zap.Error(err))
		}
		return nil, false
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.finish(ctx, route, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		telemetry.ObserveThrottled(route)
		logger.Warn("rate limited by upstream",
			zap.String("retry_after", resp.Header.Get("Retry-After")),
			zap.String("limit_type", resp.Header.Get("X-Rate-Limit-Type")))
		return nil, false
	case resp.StatusCode != http.StatusOK:
		logger.Warn("unexpected upstream status", zap.Int("status", resp.StatusCode))
		return nil, false
	case readErr != nil:
		logger.Warn("read response body failed", zap.Error(readErr))
		return nil, false
	}
	return body, true
}

func (c *Client) finish(ctx context.Context, route string, status int, dur time.Duration) {
	class := progress.ClassifyStatus(status)
	telemetry.ObserveRiotRequest(route, string(class), dur)
	c.emitter.Emit(progress.Event{
		RunID:       progress.RunIDFrom(ctx),
		TS:          time.Now().UTC(),
		Stage:       progress.StageFetchDone,
		Route:       route,
		StatusClass: class,
		Dur:         dur,
	})
}
