package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/chartagg/internal/chart"
)

func scrape(t *testing.T) string {
	t.Helper()
	ts := httptest.NewServer(Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return string(body)
}

func TestRecordFetch(t *testing.T) {
	RecordFetch("charts.example", time.Second, 11, nil)
	RecordFetch("charts.example", time.Second, 0, &chart.FetchError{URL: "u", StatusCode: 403, Blocker: "Cloudflare"})

	out := scrape(t)
	if !strings.Contains(out, `chartagg_fetch_requests_total{blocker="",host="charts.example",status="ok"} 1`) {
		t.Errorf("expected ok fetch counter")
	}
	if !strings.Contains(out, `chartagg_fetch_requests_total{blocker="Cloudflare",host="charts.example",status="403"} 1`) {
		t.Errorf("expected blocked fetch counter")
	}
	if !strings.Contains(out, `chartagg_fetch_bytes_total{host="charts.example"} 11`) {
		t.Errorf("expected byte counter for charts.example")
	}
	if !strings.Contains(out, "chartagg_fetch_duration_seconds_bucket") {
		t.Errorf("expected fetch duration histogram")
	}
}

func TestRecordEnrichmentAndRun(t *testing.T) {
	RecordEnrichment("summary", chart.OutcomeNotFound, 10*time.Millisecond)
	RecordRun(chart.StateCompleted, true)

	out := scrape(t)
	if !strings.Contains(out, `chartagg_enrichments_total{enricher="summary",outcome="not_found"}`) {
		t.Errorf("expected enrichment counter")
	}
	if !strings.Contains(out, `chartagg_runs_total{partial="true",state="completed"}`) {
		t.Errorf("expected run counter")
	}
}

func TestMetricsServer(t *testing.T) {
	srv := Start(18931, nil)
	time.Sleep(100 * time.Millisecond)
	defer srv.Stop(context.Background())

	resp, err := http.Get("http://localhost:18931/metrics")
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}
