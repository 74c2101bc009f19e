package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/FranksOps/chartagg/internal/chart"
)

const summaryColumnWidth = 60

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// writeResults prints rs as a table on terminals and as tab-separated
// records otherwise.
func writeResults(w io.Writer, rs *chart.ResultSet) error {
	if isTerminal(w) {
		_, err := fmt.Fprintln(w, renderTable(rs))
		return err
	}
	return writeTSV(w, rs)
}

func renderTable(rs *chart.ResultSet) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Title", "Artist", "Summary", "Video"})

	for _, e := range rs.Entries() {
		summary := e.Summary
		if summary == "" {
			summary = "(" + string(e.SummaryOutcome) + ")"
		}
		video := e.MediaURL
		if !e.HasMedia() {
			video = "(" + string(e.MediaOutcome) + ")"
		}
		tw.AppendRow(table.Row{e.Rank, e.Title, e.Artist, summary, video})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, WidthMax: summaryColumnWidth},
	})

	meta := rs.Meta()
	caption := fmt.Sprintf("%s  run %s  %s", meta.Source, meta.RunID, meta.CompletedAt.Sub(meta.StartedAt).Round(time.Millisecond))
	if meta.Partial {
		caption += "  (partial)"
	}
	tw.SetCaption(caption)
	return tw.Render()
}

func writeTSV(w io.Writer, rs *chart.ResultSet) error {
	clean := strings.NewReplacer("\t", " ", "\n", " ")
	if _, err := fmt.Fprintln(w, strings.Join(chart.RecordHeader, "\t")); err != nil {
		return err
	}
	for _, rec := range rs.Records() {
		for i := range rec {
			rec[i] = clean.Replace(rec[i])
		}
		if _, err := fmt.Fprintln(w, strings.Join(rec, "\t")); err != nil {
			return err
		}
	}
	return nil
}
