// Package media resolves a canonical video link for a chart entry through
// the YouTube Data API search endpoint.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/chartagg/internal/chart"
	"github.com/FranksOps/chartagg/internal/metrics"
	"github.com/FranksOps/chartagg/pkg/httpclient"
	"github.com/FranksOps/chartagg/pkg/ratelimit"
)

const (
	DefaultBaseURL     = "https://www.googleapis.com/youtube/v3/search"
	DefaultQuerySuffix = "official video"
	watchURL           = "https://www.youtube.com/watch?v="
)

// Candidate is one search hit.
type Candidate struct {
	VideoID string
	Title   string
	Channel string
}

// URL returns the canonical watch link for the candidate.
func (c Candidate) URL() string {
	return watchURL + url.QueryEscape(c.VideoID)
}

// Searcher abstracts a video search provider. The limit parameter caps the
// number of candidates returned.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// Config configures the YouTube search client.
type Config struct {
	BaseURL string
	// APIKey is required for lookups; an empty key turns the enricher off.
	APIKey      string
	QuerySuffix string
	Timeout     time.Duration
	RPS         float64
}

// Option customises a YouTube client.
type Option func(*YouTube)

// WithHTTPClient replaces the client built from Config.
func WithHTTPClient(c *httpclient.Client) Option {
	return func(y *YouTube) { y.client = c }
}

// WithLimiter shares an existing limiter instead of building one from RPS.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(y *YouTube) { y.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(y *YouTube) { y.logger = l }
}

// YouTube searches videos through the Data API v3.
type YouTube struct {
	cfg     Config
	client  *httpclient.Client
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

// New builds a YouTube client.
func New(cfg Config, opts ...Option) (*YouTube, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("media: invalid base url: %w", err)
	}
	if cfg.QuerySuffix == "" {
		cfg.QuerySuffix = DefaultQuerySuffix
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)

	y := &YouTube{cfg: cfg}
	for _, opt := range opts {
		opt(y)
	}
	if y.client == nil {
		c, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout})
		if err != nil {
			return nil, fmt.Errorf("media: %w", err)
		}
		y.client = c
	}
	if y.limiter == nil {
		y.limiter = ratelimit.NewLimiter(cfg.RPS, 1, 0)
	}
	if y.logger == nil {
		y.logger = slog.Default()
	}
	return y, nil
}

// Close releases the limiter.
func (y *YouTube) Close() {
	y.limiter.Stop()
}

// Enabled reports whether an API key is configured.
func (y *YouTube) Enabled() bool {
	return y.cfg.APIKey != ""
}

// Query builds the search string for a song.
func (y *YouTube) Query(title, artist string) string {
	return strings.Join(strings.Fields(artist+" "+title+" "+y.cfg.QuerySuffix), " ")
}

// Resolve returns the watch URL of the best match for a song, or "" with
// the reason none was found. It never returns an error.
func (y *YouTube) Resolve(ctx context.Context, title, artist string) (string, chart.Outcome) {
	if !y.Enabled() {
		metrics.RecordEnrichment("media", chart.OutcomeSkipped, 0)
		return "", chart.OutcomeSkipped
	}

	start := time.Now()
	candidates, err := y.Search(ctx, y.Query(title, artist), 1)
	if err == nil && len(candidates) == 0 {
		err = chart.ErrNotFound
	}
	outcome := chart.OutcomeOf(err, httpclient.IsTimeout(err))
	metrics.RecordEnrichment("media", outcome, time.Since(start))

	switch outcome {
	case chart.OutcomeResolved:
		best := candidates[0]
		y.logger.Debug("video resolved",
			"title", title,
			"artist", artist,
			"video_id", best.VideoID,
			"video_title", best.Title,
			"channel", best.Channel,
		)
		return best.URL(), outcome
	case chart.OutcomeNotFound:
		y.logger.Debug("no video candidates", "title", title, "artist", artist)
	default:
		y.logger.Warn("video search failed", "title", title, "artist", artist, "outcome", outcome, "err", err)
	}
	return "", outcome
}

type searchResponse struct {
	Items []struct {
		ID struct {
			Kind    string `json:"kind"`
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
		} `json:"snippet"`
	} `json:"items"`
}

// Search implements Searcher.
func (y *YouTube) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be positive: %d", limit)
	}
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{
		"key":        {y.cfg.APIKey},
		"q":          {query},
		"part":       {"snippet"},
		"type":       {"video"},
		"maxResults": {fmt.Sprint(limit)},
	}

	var resp searchResponse
	if err := y.client.GetJSON(ctx, y.cfg.BaseURL+"?"+params.Encode(), &resp); err != nil {
		return nil, classify(err)
	}

	out := make([]Candidate, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID.VideoID == "" {
			continue
		}
		out = append(out, Candidate{
			VideoID: item.ID.VideoID,
			Title:   item.Snippet.Title,
			Channel: item.Snippet.ChannelTitle,
		})
	}
	return out, nil
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
			Domain string `json:"domain"`
		} `json:"errors"`
	} `json:"error"`
}

// classify maps API failures onto the chart error sentinels.
func classify(err error) error {
	var se *httpclient.StatusError
	if !errors.As(err, &se) {
		return fmt.Errorf("youtube: %w", err)
	}

	var doc errorResponse
	_ = json.Unmarshal(se.Body, &doc)
	for _, e := range doc.Error.Errors {
		switch e.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded":
			return fmt.Errorf("youtube %s: %w", e.Reason, chart.ErrRateLimited)
		case "quotaExceeded", "dailyLimitExceeded":
			return fmt.Errorf("youtube %s: %w", e.Reason, chart.ErrQuotaExceeded)
		}
	}
	if se.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("youtube: %w", chart.ErrRateLimited)
	}
	if doc.Error.Message != "" {
		return fmt.Errorf("youtube: status %d: %s", se.StatusCode, doc.Error.Message)
	}
	return fmt.Errorf("youtube: %w", err)
}
