package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/cohortlab/cohortd/internal/cohort"
	"github.com/cohortlab/cohortd/internal/insights"
)

// writeSummary renders the human-readable digest.
func writeSummary(path string, a *cohort.Analysis, r *insights.Report) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer pending.Cleanup() //nolint:errcheck

	if _, err := pending.WriteString(Summary(a, r)); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace: %w", err)
	}
	return nil
}

// Summary renders the analysis digest as plain text.
func Summary(a *cohort.Analysis, r *insights.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Customer Retention Analysis\n")
	fmt.Fprintf(&b, "===========================\n\n")
	fmt.Fprintf(&b, "Period:    %s to %s\n", a.FirstMonth, a.LastMonth)
	fmt.Fprintf(&b, "Rows:      %d invoice lines\n", a.Rows)
	fmt.Fprintf(&b, "Customers: %d\n", a.Customers)
	fmt.Fprintf(&b, "Cohorts:   %d\n\n", len(a.CohortSizes))

	b.WriteString("Retention curve (mean across cohorts):\n")
	for j, v := range a.RetentionCurve() {
		if math.IsNaN(v) {
			continue
		}
		fmt.Fprintf(&b, "  month %2d: %5.1f%%\n", j, v*100)
	}
	b.WriteString("\n")

	b.WriteString("Cohort sizes:\n")
	for i, m := range a.Counts.Cohorts() {
		fmt.Fprintf(&b, "  %s: %d customers\n", m, a.CohortSizes[i])
	}

	if r != nil && len(r.Findings) > 0 {
		b.WriteString("\nFindings:\n")
		for _, f := range r.Findings {
			fmt.Fprintf(&b, "  [%s] %s\n", f.Severity, f.Message)
		}
	}

	return b.String()
}
