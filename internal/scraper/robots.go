package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// ErrDisallowed marks a URL that the host's robots.txt forbids fetching.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// RobotsTxtAuditor fetches, caches and evaluates robots.txt per host.
// Fetch and parse failures fail open: the URL is treated as allowed. Only
// definite answers (a parsed file, an unparsable one or a 4xx) are cached;
// transport errors and 5xx are retried on the next check.
type RobotsTxtAuditor struct {
	fetcher *Fetcher
	logger  *slog.Logger
	mu      sync.Mutex
	cache   map[string]*robotstxt.RobotsData
}

// NewRobotsTxtAuditor creates a new instance.
func NewRobotsTxtAuditor(fetcher *Fetcher, logger *slog.Logger) *RobotsTxtAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsTxtAuditor{
		fetcher: fetcher,
		logger:  logger,
		cache:   make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed reports whether userAgent may fetch targetURL.
func (r *RobotsTxtAuditor) IsAllowed(ctx context.Context, targetURL string, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("invalid url: %w", err)
	}

	data := r.rules(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.FindGroup(userAgent).Test(path), nil
}

// rules returns the cached robots data for origin, fetching it on first
// use. A nil result means "no rules".
func (r *RobotsTxtAuditor) rules(ctx context.Context, origin string) *robotstxt.RobotsData {
	r.mu.Lock()
	defer r.mu.Unlock()

	if data, ok := r.cache[origin]; ok {
		return data
	}

	var data *robotstxt.RobotsData
	page, err := r.fetcher.Fetch(ctx, origin+"/robots.txt")
	switch {
	case err != nil && statusOf(err) >= 400 && statusOf(err) < 500:
		r.logger.Debug("no robots.txt, allowing all", "origin", origin, "status", statusOf(err))
	case err != nil:
		r.logger.Warn("robots.txt fetch failed, allowing this request", "origin", origin, "err", err)
		return nil
	default:
		parsed, parseErr := robotstxt.FromBytes(page.Body)
		if parseErr != nil {
			r.logger.Debug("robots.txt unparsable, allowing all", "origin", origin, "err", parseErr)
		} else {
			data = parsed
		}
	}

	r.cache[origin] = data
	return data
}
