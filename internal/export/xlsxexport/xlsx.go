// Package xlsxexport writes a result set as an Excel workbook.
package xlsxexport

import (
	"context"
	"fmt"
	"io"

	"github.com/FranksOps/chartagg/internal/chart"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the chart.
const SheetName = "Chart"

// Exporter writes a single-sheet workbook: a header row, then one row per
// entry in rank order. Cell formatting is left at the defaults.
type Exporter struct{}

func (Exporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}
func (Exporter) Extension() string { return ".xlsx" }

// Export builds the workbook in memory and writes it to w.
func (Exporter) Export(ctx context.Context, w io.Writer, rs *chart.ResultSet) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}

	header := make([]any, len(chart.RecordHeader))
	for i, h := range chart.RecordHeader {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, e := range rs.Entries() {
		if err := ctx.Err(); err != nil {
			return err
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{e.Rank, e.Title, e.Artist, e.Summary, e.MediaURL}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write rank %d: %w", e.Rank, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
