package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/chartagg/internal/chart"
	"github.com/FranksOps/chartagg/internal/config"
	"github.com/FranksOps/chartagg/internal/export/jsonexport"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func clearKeyEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CHARTAGG_MEDIA_API_KEY", "YOUTUBE_API_KEY", "GOOGLE_API_KEY"} {
		t.Setenv(k, "")
	}
}

func chartServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>
			<div class="row"><span class="rank">2</span><span class="title">Second Song</span><span class="artist">Two</span></div>
			<div class="row"><span class="rank">1</span><span class="title">First Song</span><span class="artist">One</span></div>
			<div class="row"><span class="rank">3</span><span class="title">Third	Song</span><span class="artist">Three</span></div>
		</body></html>`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, chartURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chartagg.toml")
	contents := fmt.Sprintf(`
[chart]
url = %q
expected_size = 3
limit = 0

[chart.selectors]
row = ".row"
rank = ".rank"
title = ".title"
artist = ".artist"

[summary]
enabled = false

[log]
level = "error"
`, chartURL)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunCommand_PrintsRecords(t *testing.T) {
	clearKeyEnv(t)
	srv := chartServer(t)
	cfgPath := writeConfig(t, srv.URL+"/charts/hot-100")

	stdout, _, err := runCLI(t, "--config", cfgPath, "run")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d:\n%s", len(lines), stdout)
	}
	if lines[0] != "rank\ttitle\tartist\tsummary\tmedia_url" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "1\tFirst Song\tOne\t") {
		t.Errorf("expected rank 1 first, got %q", lines[1])
	}
	if strings.Count(lines[3], "\t") != 4 {
		t.Errorf("expected five tab-separated fields: %q", lines[3])
	}
}

func TestRunCommand_ExportsToDirectory(t *testing.T) {
	clearKeyEnv(t)
	srv := chartServer(t)
	cfgPath := writeConfig(t, srv.URL)
	outDir := t.TempDir()

	_, _, err := runCLI(t, "--config", cfgPath, "run", "-q", "--limit", "2", "-f", "csv", "-o", outDir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(outDir, "chart-*.csv"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one generated csv, got %v (%v)", matches, err)
	}
	f, err := os.Open(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(records))
	}
	if records[2][1] != "Second Song" {
		t.Errorf("unexpected second row %v", records[2])
	}
}

func TestRunCommand_RejectsBadLimit(t *testing.T) {
	clearKeyEnv(t)
	cfgPath := writeConfig(t, "https://charts.example/hot-100")

	if _, _, err := runCLI(t, "--config", cfgPath, "run", "--limit", "4"); err == nil {
		t.Fatal("expected limit above expected_size to fail validation")
	}
}

func TestRunCommand_FetchFailure(t *testing.T) {
	clearKeyEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()
	cfgPath := writeConfig(t, srv.URL)

	_, _, err := runCLI(t, "--config", cfgPath, "run")
	if err == nil || !strings.Contains(err.Error(), "410") {
		t.Fatalf("expected fetch error mentioning status, got %v", err)
	}
}

func TestReportCommand(t *testing.T) {
	rs, err := chart.NewResultSet(chart.Meta{
		RunID:       "run-7",
		Source:      "https://charts.example",
		StartedAt:   time.Now().Add(-time.Second),
		CompletedAt: time.Now(),
	}, []chart.EnrichedEntry{
		{Entry: chart.Entry{Rank: 1, Title: "A", Artist: "B"}, Summary: "s", SummaryOutcome: chart.OutcomeResolved, MediaOutcome: chart.OutcomeSkipped},
	})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "run.ndjson")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := (jsonexport.Exporter{}).Export(context.Background(), f, rs); err != nil {
		t.Fatal(err)
	}
	f.Close()

	stdout, _, err := runCLI(t, "report", path)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.Contains(stdout, "Run:        run-7") || !strings.Contains(stdout, "skipped: 1") {
		t.Errorf("unexpected text report:\n%s", stdout)
	}

	htmlPath := filepath.Join(t.TempDir(), "report.html")
	if _, _, err := runCLI(t, "report", path, "-f", "html", "-o", htmlPath); err != nil {
		t.Fatalf("html report: %v", err)
	}
	html, err := os.ReadFile(htmlPath)
	if err != nil || !strings.Contains(string(html), "<title>Chart Report</title>") {
		t.Errorf("expected html report file, err=%v", err)
	}

	if _, _, err := runCLI(t, "report", path, "-f", "pdf"); err == nil {
		t.Error("expected unknown format error")
	}
}

func TestConfigCommands(t *testing.T) {
	clearKeyEnv(t)
	path := filepath.Join(t.TempDir(), "conf", "chartagg.toml")

	stdout, _, err := runCLI(t, "config", "init", "--path", path)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(stdout, path) {
		t.Errorf("expected path in output, got %q", stdout)
	}
	if _, _, err := runCLI(t, "config", "init", "--path", path); err == nil {
		t.Error("expected second init without --overwrite to fail")
	}

	stdout, _, err = runCLI(t, "--config", path, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(stdout, "Configuration valid") || !strings.Contains(stdout, "no YouTube api key") {
		t.Errorf("unexpected validate output %q", stdout)
	}

	t.Setenv("YOUTUBE_API_KEY", "secret-key")
	stdout, _, err = runCLI(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(stdout, "secret-key") || !strings.Contains(stdout, "<redacted>") {
		t.Errorf("api key must be redacted:\n%s", stdout)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("expected json record, got %q", out)
	}
}

func TestRenderTable(t *testing.T) {
	rs, err := chart.NewResultSet(chart.Meta{RunID: "r", Source: "src", Partial: true}, []chart.EnrichedEntry{
		{Entry: chart.Entry{Rank: 1, Title: "Song", Artist: "Band"}, SummaryOutcome: chart.OutcomeTimeout, MediaOutcome: chart.OutcomeQuotaExceeded},
	})
	if err != nil {
		t.Fatal(err)
	}
	out := renderTable(rs)
	for _, want := range []string{"Song", "Band", "(timeout)", "(quota_exceeded)", "(partial)"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if isTerminal(&bytes.Buffer{}) {
		t.Error("a buffer is not a terminal")
	}
}
