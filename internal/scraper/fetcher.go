package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/chartagg/internal/bypass"
	"github.com/FranksOps/chartagg/internal/chart"
	"github.com/FranksOps/chartagg/internal/fingerprint"
	"github.com/FranksOps/chartagg/internal/metrics"
	"github.com/FranksOps/chartagg/pkg/httpclient"
	"github.com/FranksOps/chartagg/pkg/ratelimit"
	"github.com/FranksOps/chartagg/pkg/useragent"
	"github.com/google/uuid"
)

const defaultMaxBody = 8 << 20

// FetchConfig configures how source documents are retrieved.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
	Limiter      *ratelimit.Limiter
	// Signatures used to recognise bot-challenge pages; nil selects
	// bypass.DefaultSignatures.
	Signatures []bypass.Signature
	// MaxBodyBytes bounds the document size; zero selects 8 MiB.
	MaxBodyBytes int64
	// Proxy routes chart requests through an HTTP or SOCKS5 proxy when set.
	Proxy *url.URL
	// InsecureSkipVerify disables TLS verification; only for tests.
	InsecureSkipVerify bool
}

// Page is a successfully fetched document.
type Page struct {
	ID         string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
	FetchedAt  time.Time
}

// Fetcher performs single GET requests. One Fetcher holds one client, so
// connections (and cookies, when enabled) are reused across fetches.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
}

// NewFetcher initializes a new Fetcher with the given configuration.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileGo
	}
	if cfg.Signatures == nil {
		cfg.Signatures = bypass.DefaultSignatures
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBody
	}

	opts := fingerprint.Options{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.Proxy != nil {
		opts.Proxy = http.ProxyURL(cfg.Proxy)
	}
	transport, err := fingerprint.Transport(cfg.Fingerprint, opts)
	if err != nil {
		return nil, fmt.Errorf("setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &Fetcher{config: cfg, client: client}, nil
}

// Fetch GETs targetURL once. Transport failures, non-2xx statuses and
// bot-challenge pages are returned as *chart.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	host := ""
	if u, err := url.Parse(targetURL); err == nil {
		host = u.Hostname()
	}

	if err := f.config.Limiter.Wait(ctx); err != nil {
		return nil, &chart.FetchError{URL: targetURL, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	start := time.Now()
	page, err := f.fetch(ctx, targetURL, start)
	size := 0
	if page != nil {
		size = len(page.Body)
	}
	metrics.RecordFetch(host, time.Since(start), size, err)
	return page, err
}

func (f *Fetcher) fetch(ctx context.Context, targetURL string, start time.Time) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, &chart.FetchError{URL: targetURL, Err: err}
	}
	req.Header.Set("User-Agent", f.config.UAPool.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(ctx, req)
	if err != nil {
		return nil, &chart.FetchError{URL: targetURL, Err: err}
	}
	defer resp.Body.Close()

	// One byte past the cap tells an oversized page apart from one that fits.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes+1))
	if err != nil {
		return nil, &chart.FetchError{URL: targetURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fe := &chart.FetchError{URL: targetURL, StatusCode: resp.StatusCode}
		if detected, vendor := bypass.Analyze(bypass.Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       body,
		}, f.config.Signatures); detected {
			fe.Blocker = vendor
		}
		return nil, fe
	}
	if int64(len(body)) > f.config.MaxBodyBytes {
		return nil, &chart.FetchError{
			URL:        targetURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("document exceeds %d bytes", f.config.MaxBodyBytes),
		}
	}

	return &Page{
		ID:         uuid.NewString(),
		URL:        targetURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Duration:   time.Since(start),
		FetchedAt:  start.UTC(),
	}, nil
}

// statusOf extracts the HTTP status carried by a fetch error, or 0.
func statusOf(err error) int {
	var fe *chart.FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}
