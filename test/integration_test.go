//go:build integration

package test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/chartagg/internal/chart"
	"github.com/FranksOps/chartagg/internal/export"
	"github.com/FranksOps/chartagg/internal/export/jsonexport"
	"github.com/FranksOps/chartagg/internal/fingerprint"
	"github.com/FranksOps/chartagg/internal/media"
	"github.com/FranksOps/chartagg/internal/pipeline"
	"github.com/FranksOps/chartagg/internal/scraper"
	"github.com/FranksOps/chartagg/internal/server"
	"github.com/FranksOps/chartagg/internal/summary"
	"github.com/FranksOps/chartagg/pkg/useragent"
)

var songs = []struct {
	title, artist string
}{
	{"Alpha", "Ann"},
	{"Bravo", "Ben"},
	{"Charlie", "Cat"},
	{"Delta", "Dan"},
	{"Echo", "Eve"},
}

// billboardPage renders songs in the Billboard row markup, ranks in reverse
// document order.
func billboardPage() string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := len(songs) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, `<ul class="o-chart-results-list-row">
			<li><span class="c-label a-font-primary-bold-l">%d</span></li>
			<li><h3 class="c-title">%s</h3><span class="c-label a-no-trucate">%s</span></li>
		</ul>`, i+1, songs[i].title, songs[i].artist)
	}
	b.WriteString("</body></html>")
	return b.String()
}

type fixture struct {
	chart     *httptest.Server
	wiki      *httptest.Server
	youtube   *httptest.Server
	chartHits atomic.Int32
	ytHits    atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}

	f.chart = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.chartHits.Add(1)
		if r.Header.Get("User-Agent") != "IntegrationTest-UA" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, billboardPage())
	}))

	// Page ids are 1-based song positions. "Delta" has no article.
	f.wiki = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case q.Get("list") == "search":
			for i, s := range songs {
				if strings.HasPrefix(q.Get("srsearch"), s.title+" ") && s.title != "Delta" {
					fmt.Fprintf(w, `{"query":{"search":[{"pageid":%d,"title":%q}]}}`, i+1, s.title)
					return
				}
			}
			fmt.Fprint(w, `{"query":{"search":[]}}`)
		default:
			id, _ := strconv.Atoi(q.Get("pageids"))
			s := songs[id-1]
			extract := fmt.Sprintf("%s is a song by %s. %s", s.title, s.artist, strings.Repeat("More text. ", 40))
			fmt.Fprintf(w, `{"query":{"pages":[{"pageid":%d,"title":%q,"extract":%q}]}}`, id, s.title, extract)
		}
	}))

	// "Echo" exhausts the quota.
	f.youtube = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.ytHits.Add(1)
		q := r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(q, "Echo") {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error":{"code":403,"message":"quota","errors":[{"reason":"quotaExceeded","domain":"youtube.quota"}]}}`)
			return
		}
		fmt.Fprintf(w, `{"items":[{"id":{"videoId":"vid-%s"},"snippet":{"title":%q}}]}`, strings.Fields(q)[1], q)
	}))

	t.Cleanup(func() {
		f.chart.Close()
		f.wiki.Close()
		f.youtube.Close()
	})
	return f
}

func (f *fixture) pipeline(t *testing.T, cfg pipeline.Config, apiKey string) *pipeline.Pipeline {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:     5 * time.Second,
		Fingerprint: fingerprint.ProfileGo,
		UAPool:      useragent.NewPool([]string{"IntegrationTest-UA"}),
	})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	extractor, err := scraper.NewExtractor(scraper.ExtractorConfig{
		URL:          f.chart.URL + "/charts/hot-100/",
		ExpectedSize: len(songs),
	}, fetcher, logger)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}

	wiki, err := summary.New(summary.Config{BaseURL: f.wiki.URL, Timeout: 2 * time.Second}, summary.WithLogger(logger))
	if err != nil {
		t.Fatalf("summary.New: %v", err)
	}
	t.Cleanup(wiki.Close)
	yt, err := media.New(media.Config{BaseURL: f.youtube.URL, APIKey: apiKey, Timeout: 2 * time.Second}, media.WithLogger(logger))
	if err != nil {
		t.Fatalf("media.New: %v", err)
	}
	t.Cleanup(yt.Close)

	p, err := pipeline.New(cfg, extractor, wiki, yt, pipeline.WithLogger(logger))
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return p
}

func TestIntegration_FullRun(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t, pipeline.Config{Workers: 3, EnrichTimeout: 2 * time.Second}, "test-key")

	rs, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rs.Len() != len(songs) {
		t.Fatalf("expected %d entries, got %d", len(songs), rs.Len())
	}
	if rs.Meta().Partial {
		t.Errorf("run should not be partial")
	}

	for i, e := range rs.Entries() {
		if e.Rank != i+1 || e.Title != songs[i].title || e.Artist != songs[i].artist {
			t.Errorf("position %d: unexpected entry %+v", i, e.Entry)
		}
		if len([]rune(e.Summary)) > chart.MaxSummaryRunes {
			t.Errorf("rank %d: summary too long", e.Rank)
		}
	}

	delta := rs.At(3)
	if delta.SummaryOutcome != chart.OutcomeNotFound || delta.Summary != "" {
		t.Errorf("Delta: expected not_found summary, got %s %q", delta.SummaryOutcome, delta.Summary)
	}
	if !delta.HasMedia() {
		t.Errorf("Delta: media should resolve independently of the summary")
	}

	echo := rs.At(4)
	if echo.MediaOutcome != chart.OutcomeQuotaExceeded || echo.MediaURL != "" {
		t.Errorf("Echo: expected quota_exceeded, got %s %q", echo.MediaOutcome, echo.MediaURL)
	}
	if echo.SummaryOutcome != chart.OutcomeResolved || !strings.HasPrefix(echo.Summary, "Echo is a song by Eve.") {
		t.Errorf("Echo: unexpected summary %s %q", echo.SummaryOutcome, echo.Summary)
	}

	alpha := rs.At(0)
	if alpha.MediaURL != "https://www.youtube.com/watch?v=vid-Alpha" {
		t.Errorf("Alpha: unexpected media url %q", alpha.MediaURL)
	}
}

func TestIntegration_LimitAndNoKey(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t, pipeline.Config{Workers: 2, EnrichTimeout: time.Second, Limit: 2}, "")

	rs, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rs.Len() != 2 {
		t.Fatalf("expected top 2, got %d", rs.Len())
	}
	for _, e := range rs.Entries() {
		if e.MediaOutcome != chart.OutcomeSkipped {
			t.Errorf("rank %d: expected skipped media without key, got %s", e.Rank, e.MediaOutcome)
		}
	}
	if f.ytHits.Load() != 0 {
		t.Errorf("no video searches expected without a key, got %d", f.ytHits.Load())
	}
}

func TestIntegration_ServeAndExport(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t, pipeline.Config{Workers: 4, EnrichTimeout: 2 * time.Second}, "test-key")

	srv := server.New(p, server.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/refresh", "application/json", nil)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/download/json")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	meta, entries, err := jsonexport.Read(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read ndjson: %v", err)
	}
	if meta.Source != f.chart.URL+"/charts/hot-100/" || len(entries) != len(songs) {
		t.Errorf("unexpected download meta=%+v entries=%d", meta, len(entries))
	}

	resp, err = http.Get(ts.URL + "/api/results")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	var body struct {
		Meta    chart.Meta            `json:"meta"`
		Entries []chart.EnrichedEntry `json:"entries"`
	}
	err = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if err != nil || body.Meta.RunID != meta.RunID {
		t.Errorf("results should match the downloaded run: %v %+v", err, body.Meta)
	}

	dir := t.TempDir()
	for _, format := range export.Formats {
		exp, err := export.For(format)
		if err != nil {
			t.Fatalf("For(%s): %v", format, err)
		}
		path := filepath.Join(dir, export.FileName(srv.Latest(), exp))
		if err := export.WriteFile(context.Background(), path, exp, srv.Latest()); err != nil {
			t.Fatalf("WriteFile(%s): %v", format, err)
		}
		if info, err := os.Stat(path); err != nil || info.Size() == 0 {
			t.Errorf("%s: expected non-empty file, err=%v", format, err)
		}
	}

	if f.chartHits.Load() != 1 {
		t.Errorf("expected one chart fetch, got %d", f.chartHits.Load())
	}
}
