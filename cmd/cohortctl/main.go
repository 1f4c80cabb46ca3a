// cohortctl runs a one-shot cohort analysis over invoice CSV files and
// writes the report artifacts without needing the daemon.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/cohortlab/cohortd/internal/cohort"
	"github.com/cohortlab/cohortd/internal/insights"
	"github.com/cohortlab/cohortd/internal/invoice"
	"github.com/cohortlab/cohortd/internal/log"
	"github.com/cohortlab/cohortd/internal/report"
)

var (
	version   = "0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	var (
		file         = flag.String("file", "", "invoice CSV file to analyze")
		dir          = flag.String("dir", "", "directory of invoice CSV files to analyze")
		outDir       = flag.String("out", "reports", "directory for report artifacts")
		latin1       = flag.Bool("latin1", false, "input is ISO-8859-1 encoded")
		format       = flag.String("format", "text", "stdout format: text or json")
		withInsights = flag.Bool("insights", true, "include retention insights")
		showVersion  = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("cohortctl %s (commit: %s, built: %s)\n", version, commit, buildDate)
		return
	}

	log.Configure(log.Config{Level: "warn", Service: "cohortctl", Output: os.Stderr})

	if err := run(*file, *dir, *outDir, *latin1, *format, *withInsights, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "cohortctl: %v\n", err)
		os.Exit(1)
	}
}

func run(file, dir, outDir string, latin1 bool, format string, withInsights bool, out io.Writer) error {
	if file == "" && dir == "" {
		return fmt.Errorf("one of -file or -dir is required")
	}
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown format %q", format)
	}

	opts := invoice.ReaderOptions{Latin1: latin1}

	var (
		invoices []invoice.Invoice
		stats    invoice.LoadStats
	)
	if file != "" {
		var err error
		invoices, stats, err = invoice.ReadFile(file, opts)
		if err != nil {
			return err
		}
	} else {
		files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no csv files in %s", dir)
		}
		sort.Strings(files)
		for _, path := range files {
			rows, s, err := invoice.ReadFile(path, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			invoices = append(invoices, rows...)
			stats.Rows += s.Rows
			stats.SkippedRows += s.SkippedRows
			stats.NoCustomer += s.NoCustomer
			stats.DerivedTotal += s.DerivedTotal
		}
	}

	analysis, err := cohort.Analyze(invoices)
	if err != nil {
		return err
	}

	var insightReport *insights.Report
	if withInsights {
		insightReport = insights.Build(invoices, analysis)
	}

	w := &report.Writer{Dir: outDir}
	if err := w.WriteAll(context.Background(), analysis, insightReport); err != nil {
		return err
	}

	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		payload := map[string]any{
			"rows":          stats.Rows,
			"skipped":       stats.SkippedRows + stats.NoCustomer,
			"derivedTotals": stats.DerivedTotal,
			"analysis":      analysis,
			"reportDir":     outDir,
		}
		if insightReport != nil {
			payload["insights"] = insightReport
		}
		return enc.Encode(payload)
	default:
		fmt.Fprint(out, report.Summary(analysis, insightReport))
		fmt.Fprintf(out, "\nArtifacts written to %s\n", outDir)
		return nil
	}
}
