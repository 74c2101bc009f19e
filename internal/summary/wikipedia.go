// Package summary resolves a short descriptive text for a chart entry from
// the Wikipedia action API.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/FranksOps/chartagg/internal/chart"
	"github.com/FranksOps/chartagg/internal/metrics"
	"github.com/FranksOps/chartagg/pkg/httpclient"
	"github.com/FranksOps/chartagg/pkg/ratelimit"
	"golang.org/x/text/unicode/norm"
)

// DefaultBaseURL is the English Wikipedia action API endpoint.
const DefaultBaseURL = "https://en.wikipedia.org/w/api.php"

// Config configures the Wikipedia lookup.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RPS caps requests per second against the API; zero disables limiting.
	RPS       float64
	UserAgent string
}

// Option customises an Enricher.
type Option func(*Enricher)

// WithHTTPClient replaces the client built from Config.
func WithHTTPClient(c *httpclient.Client) Option {
	return func(e *Enricher) { e.client = c }
}

// WithLimiter shares an existing limiter instead of building one from RPS.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(e *Enricher) { e.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Enricher) { e.logger = l }
}

// Enricher looks up song summaries on Wikipedia.
type Enricher struct {
	baseURL string
	client  *httpclient.Client
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

// New builds an Enricher.
func New(cfg Config, opts ...Option) (*Enricher, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("summary: invalid base url: %w", err)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "chartagg/1.0 (chart enrichment)"
	}

	e := &Enricher{baseURL: cfg.BaseURL}
	for _, opt := range opts {
		opt(e)
	}

	if e.client == nil {
		c, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout, UserAgent: cfg.UserAgent})
		if err != nil {
			return nil, fmt.Errorf("summary: %w", err)
		}
		e.client = c
	}
	if e.limiter == nil {
		e.limiter = ratelimit.NewLimiter(cfg.RPS, 1, 0)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

// Close releases the limiter.
func (e *Enricher) Close() {
	e.limiter.Stop()
}

// Resolve returns the truncated summary for a song, or "" with the reason
// it could not be resolved. It never returns an error.
func (e *Enricher) Resolve(ctx context.Context, title, artist string) (string, chart.Outcome) {
	start := time.Now()
	text, err := e.Lookup(ctx, title, artist)
	outcome := chart.OutcomeOf(err, httpclient.IsTimeout(err))
	metrics.RecordEnrichment("summary", outcome, time.Since(start))

	switch outcome {
	case chart.OutcomeResolved:
		return Truncate(text, chart.MaxSummaryRunes), outcome
	case chart.OutcomeNotFound:
		e.logger.Debug("no summary", "title", title, "artist", artist)
	default:
		e.logger.Warn("summary lookup failed", "title", title, "artist", artist, "outcome", outcome, "err", err)
	}
	return "", outcome
}

// Lookup performs the search and extract requests and returns the full
// plain-text intro. A missing article, a disambiguation page or an empty
// extract yield chart.ErrNotFound.
func (e *Enricher) Lookup(ctx context.Context, title, artist string) (string, error) {
	pageID, err := e.search(ctx, strings.TrimSpace(title+" "+artist+" song"))
	if err != nil {
		return "", err
	}

	page, err := e.extract(ctx, pageID)
	if err != nil {
		return "", err
	}
	if page.PageProps.Disambiguation != nil {
		return "", fmt.Errorf("page %d is a disambiguation page: %w", pageID, chart.ErrNotFound)
	}
	if strings.TrimSpace(page.Extract) == "" {
		return "", fmt.Errorf("page %d has no extract: %w", pageID, chart.ErrNotFound)
	}
	return page.Extract, nil
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

type searchResponse struct {
	Error *apiError `json:"error"`
	Query struct {
		Search []struct {
			PageID int    `json:"pageid"`
			Title  string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

type extractPage struct {
	PageID    int    `json:"pageid"`
	Title     string `json:"title"`
	Missing   bool   `json:"missing"`
	Extract   string `json:"extract"`
	PageProps struct {
		Disambiguation *string `json:"disambiguation"`
	} `json:"pageprops"`
}

type extractResponse struct {
	Error *apiError `json:"error"`
	Query struct {
		Pages []extractPage `json:"pages"`
	} `json:"query"`
}

func (e *Enricher) search(ctx context.Context, query string) (int, error) {
	params := url.Values{
		"action":        {"query"},
		"list":          {"search"},
		"srsearch":      {query},
		"srlimit":       {"1"},
		"format":        {"json"},
		"formatversion": {"2"},
	}

	var resp searchResponse
	if err := e.get(ctx, params, &resp); err != nil {
		return 0, err
	}
	if resp.Error != nil {
		return 0, classifyAPIError(resp.Error)
	}
	if len(resp.Query.Search) == 0 {
		return 0, fmt.Errorf("search %q: %w", query, chart.ErrNotFound)
	}
	return resp.Query.Search[0].PageID, nil
}

func (e *Enricher) extract(ctx context.Context, pageID int) (extractPage, error) {
	params := url.Values{
		"action":        {"query"},
		"prop":          {"extracts|pageprops"},
		"exintro":       {"1"},
		"explaintext":   {"1"},
		"ppprop":        {"disambiguation"},
		"redirects":     {"1"},
		"pageids":       {strconv.Itoa(pageID)},
		"format":        {"json"},
		"formatversion": {"2"},
	}

	var resp extractResponse
	if err := e.get(ctx, params, &resp); err != nil {
		return extractPage{}, err
	}
	if resp.Error != nil {
		return extractPage{}, classifyAPIError(resp.Error)
	}
	if len(resp.Query.Pages) == 0 || resp.Query.Pages[0].Missing {
		return extractPage{}, fmt.Errorf("page %d: %w", pageID, chart.ErrNotFound)
	}
	return resp.Query.Pages[0], nil
}

func (e *Enricher) get(ctx context.Context, params url.Values, out any) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}

	err := e.client.GetJSON(ctx, e.baseURL+"?"+params.Encode(), out)
	var se *httpclient.StatusError
	if errors.As(err, &se) && se.StatusCode == 429 {
		return fmt.Errorf("wikipedia: %w", chart.ErrRateLimited)
	}
	if err != nil {
		return fmt.Errorf("wikipedia: %w", err)
	}
	return nil
}

func classifyAPIError(ae *apiError) error {
	switch ae.Code {
	case "ratelimited", "maxlag":
		return fmt.Errorf("wikipedia %s: %w", ae.Code, chart.ErrRateLimited)
	default:
		return fmt.Errorf("wikipedia %s: %s", ae.Code, ae.Info)
	}
}

// Truncate NFC-normalises s, collapses whitespace and cuts it to at most
// limit runes. No ellipsis is added.
func Truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(norm.NFC.String(s)), " ")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return strings.TrimRight(s[:i], " ")
		}
		n++
	}
	return s
}
