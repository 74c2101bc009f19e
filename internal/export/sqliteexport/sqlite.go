// Package sqliteexport writes a result set as a standalone SQLite database.
// Each export builds a fresh database file; nothing is kept between runs.
package sqliteexport

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/FranksOps/chartagg/internal/chart"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE run (
	run_id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	completed_at DATETIME NOT NULL,
	partial BOOLEAN NOT NULL
);
CREATE TABLE entries (
	rank INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	artist TEXT NOT NULL,
	summary TEXT NOT NULL,
	media_url TEXT NOT NULL,
	summary_outcome TEXT NOT NULL,
	media_outcome TEXT NOT NULL
);
`

// Exporter writes a SQLite database with a run table and an entries table.
type Exporter struct{}

func (Exporter) ContentType() string { return "application/vnd.sqlite3" }
func (Exporter) Extension() string   { return ".sqlite" }

// Export builds the database in a scratch directory and streams the file
// to w.
func (Exporter) Export(ctx context.Context, w io.Writer, rs *chart.ResultSet) error {
	dir, err := os.MkdirTemp("", "chartagg-sqlite-")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "chart.sqlite")
	if err := WriteDB(ctx, path, rs); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy database: %w", err)
	}
	return nil
}

// WriteDB creates a new database at path and fills it from rs. The path
// must not already exist.
func WriteDB(ctx context.Context, path string, rs *chart.ResultSet) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("database %s already exists", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	meta := rs.Meta()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO run (run_id, source, started_at, completed_at, partial) VALUES (?, ?, ?, ?, ?)`,
		meta.RunID, meta.Source, meta.StartedAt.Format(time.RFC3339Nano), meta.CompletedAt.Format(time.RFC3339Nano), meta.Partial,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO entries (
		rank, title, artist, summary, media_url, summary_outcome, media_outcome
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range rs.Entries() {
		_, err := stmt.ExecContext(ctx,
			e.Rank, e.Title, e.Artist, e.Summary, e.MediaURL,
			string(e.SummaryOutcome), string(e.MediaOutcome),
		)
		if err != nil {
			return fmt.Errorf("insert rank %d: %w", e.Rank, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
