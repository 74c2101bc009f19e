package main

import (
	"fmt"
	"log/slog"

	"github.com/FranksOps/chartagg/internal/config"
	"github.com/FranksOps/chartagg/internal/fingerprint"
	"github.com/FranksOps/chartagg/internal/media"
	"github.com/FranksOps/chartagg/internal/pipeline"
	"github.com/FranksOps/chartagg/internal/scraper"
	"github.com/FranksOps/chartagg/internal/summary"
	"github.com/FranksOps/chartagg/pkg/useragent"
)

// buildPipeline wires the extractor and both enrichers from cfg. The
// returned cleanup stops the enrichers' rate limiters.
func buildPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline.Pipeline, func(), error) {
	profile, err := fingerprint.ParseProfile(cfg.Chart.Fingerprint)
	if err != nil {
		return nil, nil, err
	}
	proxyURL, err := cfg.Chart.ProxyURL()
	if err != nil {
		return nil, nil, err
	}
	if proxyURL != nil && profile != fingerprint.ProfileGo {
		logger.Warn("tls profile is not applied to proxied connections", "profile", profile, "proxy", proxyURL.Redacted())
	}
	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:      cfg.Chart.Timeout,
		UseCookieJar: true,
		UAPool:       useragent.NewPool(cfg.Chart.UserAgents),
		Fingerprint:  profile,
		Proxy:        proxyURL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("chart fetcher: %w", err)
	}
	extractor, err := scraper.NewExtractor(scraper.ExtractorConfig{
		URL:           cfg.Chart.URL,
		Selectors:     cfg.Chart.Selectors,
		ExpectedSize:  cfg.Chart.ExpectedSize,
		RespectRobots: cfg.Chart.RespectRobots,
	}, fetcher, logger)
	if err != nil {
		return nil, nil, err
	}

	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	// Disabled enrichers are passed as nil interfaces so every entry is
	// marked skipped without scheduling work.
	var summaries, videos pipeline.Resolver
	if cfg.Summary.Enabled {
		s, err := summary.New(summary.Config{
			BaseURL: cfg.Summary.BaseURL,
			Timeout: cfg.Summary.Timeout,
			RPS:     cfg.Summary.RPS,
		}, summary.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, s.Close)
		summaries = s
	}
	if cfg.Media.Enabled() {
		y, err := media.New(media.Config{
			BaseURL:     cfg.Media.BaseURL,
			APIKey:      cfg.Media.APIKey,
			QuerySuffix: cfg.Media.QuerySuffix,
			Timeout:     cfg.Media.Timeout,
			RPS:         cfg.Media.RPS,
		}, media.WithLogger(logger))
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, y.Close)
		videos = y
	} else {
		logger.Info("media enricher disabled: no api key configured")
	}

	p, err := pipeline.New(pipeline.Config{
		Workers:       cfg.Pipeline.Workers,
		EnrichTimeout: cfg.Pipeline.EnrichTimeout,
		RunTimeout:    cfg.Pipeline.RunTimeout,
		Limit:         cfg.Chart.Limit,
	}, extractor, summaries, videos, pipeline.WithLogger(logger))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return p, cleanup, nil
}
