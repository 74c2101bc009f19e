// Package jsonexport writes a result set as newline-delimited JSON.
package jsonexport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/FranksOps/chartagg/internal/chart"
)

// Exporter writes one JSON object per line. The first line is the header:
// the run metadata plus the column names.
type Exporter struct{}

func (Exporter) ContentType() string { return "application/x-ndjson" }
func (Exporter) Extension() string   { return ".ndjson" }

type header struct {
	chart.Meta
	Columns []string `json:"columns"`
}

// Export writes the header line and then each entry in rank order.
func (Exporter) Export(ctx context.Context, w io.Writer, rs *chart.ResultSet) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{Meta: rs.Meta(), Columns: chart.RecordHeader}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for _, e := range rs.Entries() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode rank %d: %w", e.Rank, err)
		}
	}
	return nil
}

// Read decodes a stream produced by Export back into its metadata and
// entries.
func Read(r io.Reader) (chart.Meta, []chart.EnrichedEntry, error) {
	dec := json.NewDecoder(r)

	var h header
	if err := dec.Decode(&h); err != nil {
		return chart.Meta{}, nil, fmt.Errorf("decode header: %w", err)
	}

	var entries []chart.EnrichedEntry
	for dec.More() {
		var e chart.EnrichedEntry
		if err := dec.Decode(&e); err != nil {
			return chart.Meta{}, nil, fmt.Errorf("decode entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, e)
	}
	return h.Meta, entries, nil
}
