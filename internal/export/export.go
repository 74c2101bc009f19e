// Package export serialises a chart.ResultSet into the downloadable
// formats: CSV, NDJSON, SQLite and XLSX. Every format writes the
// chart.RecordHeader columns first, then one row per entry in rank order.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/FranksOps/chartagg/internal/chart"
	"github.com/FranksOps/chartagg/internal/export/csvexport"
	"github.com/FranksOps/chartagg/internal/export/jsonexport"
	"github.com/FranksOps/chartagg/internal/export/sqliteexport"
	"github.com/FranksOps/chartagg/internal/export/xlsxexport"
	"github.com/gofrs/flock"
)

// Format names an export encoding.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatJSON   Format = "json"
	FormatSQLite Format = "sqlite"
	FormatXLSX   Format = "xlsx"
)

// Formats lists every supported format.
var Formats = []Format{FormatCSV, FormatJSON, FormatSQLite, FormatXLSX}

// Exporter writes a result set to w.
type Exporter interface {
	Export(ctx context.Context, w io.Writer, rs *chart.ResultSet) error
	ContentType() string
	Extension() string
}

var (
	_ Exporter = csvexport.Exporter{}
	_ Exporter = jsonexport.Exporter{}
	_ Exporter = sqliteexport.Exporter{}
	_ Exporter = xlsxexport.Exporter{}
)

// ParseFormat accepts a format name, case-insensitively. "ndjson" and
// "excel" are accepted as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "json", "ndjson":
		return FormatJSON, nil
	case "sqlite", "db":
		return FormatSQLite, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// For returns the exporter for f.
func For(f Format) (Exporter, error) {
	switch f {
	case FormatCSV:
		return csvexport.Exporter{}, nil
	case FormatJSON:
		return jsonexport.Exporter{}, nil
	case FormatSQLite:
		return sqliteexport.Exporter{}, nil
	case FormatXLSX:
		return xlsxexport.Exporter{}, nil
	default:
		return nil, fmt.Errorf("unknown export format %q", f)
	}
}

// FileName suggests a download name for a result set.
func FileName(rs *chart.ResultSet, e Exporter) string {
	ts := rs.Meta().CompletedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return "chart-" + ts.Format("20060102-150405") + e.Extension()
}

// WriteFile exports rs to path. The file is written next to its final
// location and renamed into place while holding an advisory lock on
// path + ".lock", so concurrent exports to one path never interleave. The
// lock file is left in place: removing it would let a waiter lock the
// unlinked inode while a newcomer locks a fresh file.
func WriteFile(ctx context.Context, path string, e Exporter, rs *chart.ResultSet) error {
	lock := flock.New(path + ".lock")
	ok, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("lock %s: not acquired", path)
	}
	defer func() { _ = lock.Unlock() }()

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := e.Export(ctx, tmp, rs); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("export %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
