// Package csvexport writes a result set as CSV.
package csvexport

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/FranksOps/chartagg/internal/chart"
)

// Exporter writes RFC 4180 CSV with a header row.
type Exporter struct{}

func (Exporter) ContentType() string { return "text/csv; charset=utf-8" }
func (Exporter) Extension() string   { return ".csv" }

// Export writes chart.RecordHeader followed by one record per entry.
func (Exporter) Export(ctx context.Context, w io.Writer, rs *chart.ResultSet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(chart.RecordHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, record := range rs.Records() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
