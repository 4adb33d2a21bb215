package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fileexporter/internal/daemon"
	"fileexporter/internal/logging"
	"fileexporter/internal/scanner"
)

type scanRow struct {
	Name             string  `json:"name"`
	Path             string  `json:"path"`
	Files            int     `json:"files"`
	TotalSizeBytes   int64   `json:"total_size_bytes"`
	OldestAgeSeconds float64 `json:"oldest_age_seconds"`
	NewestAgeSeconds float64 `json:"newest_age_seconds"`
	Warnings         int     `json:"warnings"`
	DurationMillis   int64   `json:"duration_ms"`
	Error            string  `json:"error,omitempty"`
	Reason           string  `json:"reason,omitempty"`
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan cycle and print the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			// The one-shot scan keeps stdout for results; logs go to stderr.
			logger, err := logging.New(logging.Options{
				Level:  defaultString(ctx.logLevel(), "warn"),
				Format: cfg.Logging.Format,
				Writer: cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			d, err := daemon.New(cfg, logger, daemon.WithoutServer())
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			results := d.RunCycle(cmd.Context())
			rows := make([]scanRow, 0, len(results))
			for _, res := range results {
				rows = append(rows, toScanRow(res))
			}
			if jsonOutput {
				return writeJSON(cmd, rows)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderScanTable(rows, isTerminal(cmd.OutOrStdout())))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}

func toScanRow(res scanner.Result) scanRow {
	row := scanRow{
		Name:             res.Name,
		Path:             res.Path,
		Files:            res.Count,
		TotalSizeBytes:   res.TotalSize,
		OldestAgeSeconds: res.OldestAge,
		NewestAgeSeconds: res.NewestAge,
		Warnings:         res.Warnings,
		DurationMillis:   res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		row.Error = res.Err.Error()
		row.Reason = scanner.KindOf(res.Err).String()
	}
	return row
}

func renderScanTable(rows []scanRow, styled bool) string {
	headers := []string{"Directory", "Path", "Files", "Size", "Oldest", "Newest", "Warnings", "Status"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft}
	body := make([][]string, 0, len(rows))
	for _, row := range rows {
		status := "ok"
		if row.Reason != "" {
			status = row.Reason
		}
		body = append(body, []string{
			row.Name,
			row.Path,
			strconv.Itoa(row.Files),
			formatBytes(row.TotalSizeBytes),
			formatAge(row.OldestAgeSeconds),
			formatAge(row.NewestAgeSeconds),
			strconv.Itoa(row.Warnings),
			status,
		})
	}
	return renderTable(headers, body, aligns, styled)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatAge(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}
	return time.Duration(seconds * float64(time.Second)).Round(time.Second).String()
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
