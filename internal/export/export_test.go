package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/FranksOps/chartagg/internal/chart"
	"github.com/gofrs/flock"
)

func sampleSet(t *testing.T) *chart.ResultSet {
	t.Helper()
	done := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	rs, err := chart.NewResultSet(chart.Meta{RunID: "run-1", CompletedAt: done}, []chart.EnrichedEntry{
		{Entry: chart.Entry{Rank: 1, Title: "A", Artist: "B"}, SummaryOutcome: chart.OutcomeSkipped, MediaOutcome: chart.OutcomeSkipped},
	})
	if err != nil {
		t.Fatalf("NewResultSet: %v", err)
	}
	return rs
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"csv": FormatCSV, "JSON": FormatJSON, "ndjson": FormatJSON,
		"sqlite": FormatSQLite, " xlsx ": FormatXLSX, "excel": FormatXLSX,
	}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("pdf"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestFor_AllFormats(t *testing.T) {
	rs := sampleSet(t)
	for _, f := range Formats {
		e, err := For(f)
		if err != nil {
			t.Fatalf("For(%s): %v", f, err)
		}
		var buf bytes.Buffer
		if err := e.Export(context.Background(), &buf, rs); err != nil {
			t.Errorf("%s export: %v", f, err)
		}
		if buf.Len() == 0 {
			t.Errorf("%s export wrote nothing", f)
		}
		if e.ContentType() == "" || !strings.HasPrefix(e.Extension(), ".") {
			t.Errorf("%s: missing content type or extension", f)
		}
	}
	if _, err := For("pdf"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestFileName(t *testing.T) {
	e, _ := For(FormatXLSX)
	if got := FileName(sampleSet(t), e); got != "chart-20260504-030201.xlsx" {
		t.Errorf("unexpected file name %q", got)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	e, _ := For(FormatCSV)

	if err := WriteFile(context.Background(), path, e, sampleSet(t)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(data), "rank,title,artist,summary,media_url\n1,A,B,,\n") {
		t.Errorf("unexpected file contents %q", data)
	}

	entries, _ := os.ReadDir(dir)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if len(names) != 2 || names[0] != "out.csv" || names[1] != "out.csv.lock" {
		t.Errorf("expected only the output and its lock file, found %v", names)
	}
}

func TestWriteFile_WaitsForLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	e, _ := For(FormatCSV)

	held := flock.New(path + ".lock")
	if err := held.Lock(); err != nil {
		t.Fatalf("lock: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := WriteFile(ctx, path, e, sampleSet(t)); err == nil {
		t.Fatal("expected WriteFile to give up while the lock is held")
	}
	if err := held.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	rs := sampleSet(t)
	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- WriteFile(context.Background(), path, e, rs)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent WriteFile: %v", err)
		}
	}
	if _, err := os.Stat(path + ".lock"); err != nil {
		t.Errorf("lock file should persist between writers: %v", err)
	}
}
