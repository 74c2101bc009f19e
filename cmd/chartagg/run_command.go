package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/chartagg/internal/export"
	"github.com/FranksOps/chartagg/internal/metrics"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var format string
	var output string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Extract the chart once, enrich it and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("limit") {
				cfg.Chart.Limit = limit
				if err := cfg.Chart.Validate(); err != nil {
					return err
				}
			}
			if strings.TrimSpace(format) == "" {
				format = cfg.Export.Format
			}
			if strings.TrimSpace(output) == "" {
				output = cfg.Export.Path
			}

			logger := slog.Default()
			if cfg.Metrics.Enabled {
				srv := metrics.Start(cfg.Metrics.Port, logger)
				defer srv.Stop(context.Background())
			}

			p, cleanup, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			rs, err := p.Run(cmd.Context())
			if err != nil {
				return err
			}

			if !quiet {
				if err := writeResults(cmd.OutOrStdout(), rs); err != nil {
					return err
				}
			}

			if output == "" {
				return nil
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			exp, err := export.For(f)
			if err != nil {
				return err
			}
			if info, err := os.Stat(output); err == nil && info.IsDir() {
				output = filepath.Join(output, export.FileName(rs, exp))
			}
			start := time.Now()
			if err := export.WriteFile(cmd.Context(), output, exp, rs); err != nil {
				return err
			}
			logger.Info("exported results", "path", output, "format", f, "duration", time.Since(start))
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", output)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Keep only the top N entries (0 keeps all)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Export format: csv, json, sqlite, xlsx")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Export file, or a directory to receive a generated file name")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print the result table")
	return cmd
}
