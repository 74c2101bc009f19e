package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FranksOps/chartagg/internal/chart"
	"github.com/FranksOps/chartagg/internal/export/jsonexport"
	"github.com/FranksOps/chartagg/internal/report"
)

func newReportCommand() *cobra.Command {
	var format string
	var output string

	cmd := &cobra.Command{
		Use:         "report <results.ndjson>",
		Short:       "Summarise a saved json export",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipConfigLoad: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open results: %w", err)
			}
			defer f.Close()

			meta, entries, err := jsonexport.Read(f)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			rs, err := chart.NewResultSet(meta, entries)
			if err != nil {
				return fmt.Errorf("invalid results in %s: %w", args[0], err)
			}
			summary := report.GenerateSummary(rs)

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				out, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create report: %w", err)
				}
				defer out.Close()
				w = out
			}

			switch strings.ToLower(format) {
			case "text", "":
				return report.WriteText(w, summary)
			case "json":
				return report.WriteJSON(w, summary)
			case "html":
				return report.WriteHTML(w, summary)
			default:
				return fmt.Errorf("unknown report format %q (want text, json or html)", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Report format: text, json, html")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to a file instead of stdout")
	return cmd
}
