package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/FranksOps/chartagg/internal/chart"
)

// ExtractorConfig describes the primary chart source.
type ExtractorConfig struct {
	URL       string
	Selectors Selectors
	// ExpectedSize, when positive, is the exact number of entries the chart
	// must contain.
	ExpectedSize int
	// RespectRobots checks robots.txt before fetching the chart.
	RespectRobots bool
	// RobotsAgent is the agent name evaluated against robots.txt.
	RobotsAgent string
}

// Extractor fetches and parses the ranked chart. It makes a single fetch
// attempt per call; retrying is left to the caller.
type Extractor struct {
	cfg     ExtractorConfig
	fetcher *Fetcher
	auditor *RobotsTxtAuditor
	logger  *slog.Logger
}

// NewExtractor validates cfg and builds an Extractor around fetcher.
func NewExtractor(cfg ExtractorConfig, fetcher *Fetcher, logger *slog.Logger) (*Extractor, error) {
	if fetcher == nil {
		return nil, errors.New("extractor: fetcher is nil")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("extractor: invalid chart url %q", cfg.URL)
	}
	if cfg.Selectors == (Selectors{}) {
		cfg.Selectors = BillboardSelectors
	}
	if err := cfg.Selectors.Validate(); err != nil {
		return nil, fmt.Errorf("extractor: %w", err)
	}
	if cfg.RobotsAgent == "" {
		cfg.RobotsAgent = "chartagg"
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Extractor{cfg: cfg, fetcher: fetcher, logger: logger}
	if cfg.RespectRobots {
		e.auditor = NewRobotsTxtAuditor(fetcher, logger)
	}
	return e, nil
}

// Source returns the chart URL.
func (e *Extractor) Source() string { return e.cfg.URL }

// Extract fetches the chart document and returns its entries sorted by
// rank. It fails with *chart.FetchError or *chart.ParseError.
func (e *Extractor) Extract(ctx context.Context) ([]chart.Entry, error) {
	if e.auditor != nil {
		allowed, err := e.auditor.IsAllowed(ctx, e.cfg.URL, e.cfg.RobotsAgent)
		if err != nil {
			return nil, &chart.FetchError{URL: e.cfg.URL, Err: err}
		}
		if !allowed {
			return nil, &chart.FetchError{URL: e.cfg.URL, Err: ErrDisallowed}
		}
	}

	e.logger.Debug("fetching chart", "url", e.cfg.URL)
	page, err := e.fetcher.Fetch(ctx, e.cfg.URL)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With("page_id", page.ID)
	entries, err := ParseChart(page.Body, e.cfg.Selectors)
	if err != nil {
		logger.Warn("chart document rejected", "url", e.cfg.URL, "bytes", len(page.Body), "err", err)
		return nil, err
	}

	if e.cfg.ExpectedSize > 0 && len(entries) != e.cfg.ExpectedSize {
		err := &chart.ParseError{
			Reason: fmt.Sprintf("expected %d entries, found %d", e.cfg.ExpectedSize, len(entries)),
		}
		logger.Warn("chart document rejected", "url", e.cfg.URL, "bytes", len(page.Body), "err", err)
		return nil, err
	}

	logger.Info("chart extracted",
		"url", e.cfg.URL,
		"entries", len(entries),
		"fetched_at", page.FetchedAt,
		"duration", page.Duration,
	)
	return entries, nil
}
