// Package report renders cohort analyses into on-disk artifacts: CSV
// matrices, heatmap chart configs, and a plain-text summary.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cohortlab/cohortd/internal/cohort"
	"github.com/cohortlab/cohortd/internal/insights"
	"github.com/cohortlab/cohortd/internal/log"
)

// Artifact file names, mirroring the figures the analysis produces:
// retention rates, customer counts, and monetary value.
const (
	RetentionCSV  = "retention-rates.csv"
	CountsCSV     = "customer-counts.csv"
	MonetaryCSV   = "monetary-value.csv"
	RetentionJSON = "retention-rates.json"
	CountsJSON    = "customer-counts.json"
	MonetaryJSON  = "monetary-value.json"
	SummaryTXT    = "summary.txt"
)

// Writer renders analysis artifacts into a directory.
type Writer struct {
	Dir string
}

// WriteAll renders every artifact. Partial failures abort with the first
// error; each file is written atomically, so readers never see torn output.
func (w *Writer) WriteAll(ctx context.Context, a *cohort.Analysis, r *insights.Report) error {
	logger := log.WithComponentFromContext(ctx, "report")

	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("report: create dir %s: %w", w.Dir, err)
	}

	type artifact struct {
		name  string
		write func(path string) error
	}
	artifacts := []artifact{
		{RetentionCSV, func(p string) error { return writeMatrixCSV(p, a.Retention, cellPercent) }},
		{CountsCSV, func(p string) error { return writeMatrixCSV(p, a.Counts, cellCount) }},
		{MonetaryCSV, func(p string) error { return writeMatrixCSV(p, a.Monetary, cellMoney) }},
		{RetentionJSON, func(p string) error { return writeHeatmapJSON(p, RetentionHeatmap(a)) }},
		{CountsJSON, func(p string) error { return writeHeatmapJSON(p, CountsHeatmap(a)) }},
		{MonetaryJSON, func(p string) error { return writeHeatmapJSON(p, MonetaryHeatmap(a)) }},
		{SummaryTXT, func(p string) error { return writeSummary(p, a, r) }},
	}

	for _, art := range artifacts {
		path := filepath.Join(w.Dir, art.name)
		if err := art.write(path); err != nil {
			return fmt.Errorf("report: write %s: %w", art.name, err)
		}
		logger.Debug().Str(log.FieldPath, path).Msg("artifact written")
	}

	logger.Info().
		Str(log.FieldReportDir, w.Dir).
		Int("artifacts", len(artifacts)).
		Msg("report written")
	return nil
}
