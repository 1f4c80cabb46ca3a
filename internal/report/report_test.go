package report_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortlab/cohortd/internal/cohort"
	"github.com/cohortlab/cohortd/internal/insights"
	"github.com/cohortlab/cohortd/internal/invoice"
	"github.com/cohortlab/cohortd/internal/report"
)

func fixtureAnalysis(t *testing.T) (*cohort.Analysis, *insights.Report) {
	t.Helper()
	invoices := []invoice.Invoice{
		{InvoiceNo: "i1", CustomerID: "a", InvoiceDate: time.Date(2011, 1, 5, 0, 0, 0, 0, time.UTC), TotalPrice: 10},
		{InvoiceNo: "i2", CustomerID: "b", InvoiceDate: time.Date(2011, 1, 8, 0, 0, 0, 0, time.UTC), TotalPrice: 20},
		{InvoiceNo: "i3", CustomerID: "a", InvoiceDate: time.Date(2011, 2, 3, 0, 0, 0, 0, time.UTC), TotalPrice: 5},
	}
	a, err := cohort.Analyze(invoices)
	require.NoError(t, err)
	return a, insights.Build(invoices, a)
}

func TestWriteAllProducesEveryArtifact(t *testing.T) {
	a, r := fixtureAnalysis(t)
	dir := t.TempDir()

	w := &report.Writer{Dir: dir}
	require.NoError(t, w.WriteAll(context.Background(), a, r))

	for _, name := range []string{
		report.RetentionCSV, report.CountsCSV, report.MonetaryCSV,
		report.RetentionJSON, report.CountsJSON, report.MonetaryJSON,
		report.SummaryTXT,
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "missing artifact %s", name)
	}
}

func TestRetentionCSVContent(t *testing.T) {
	a, r := fixtureAnalysis(t)
	dir := t.TempDir()

	w := &report.Writer{Dir: dir}
	require.NoError(t, w.WriteAll(context.Background(), a, r))

	data, err := os.ReadFile(filepath.Join(dir, report.RetentionCSV))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "cohort,0,1", lines[0])
	assert.Equal(t, "2011-01,100%,50%", lines[1])
}

func TestCountsCSVLeavesUnobservedCellsBlank(t *testing.T) {
	invoices := []invoice.Invoice{
		{InvoiceNo: "i1", CustomerID: "a", InvoiceDate: time.Date(2011, 1, 5, 0, 0, 0, 0, time.UTC), TotalPrice: 10},
		{InvoiceNo: "i2", CustomerID: "a", InvoiceDate: time.Date(2011, 2, 5, 0, 0, 0, 0, time.UTC), TotalPrice: 10},
		{InvoiceNo: "i3", CustomerID: "b", InvoiceDate: time.Date(2011, 2, 7, 0, 0, 0, 0, time.UTC), TotalPrice: 10},
	}
	a, err := cohort.Analyze(invoices)
	require.NoError(t, err)

	dir := t.TempDir()
	w := &report.Writer{Dir: dir}
	require.NoError(t, w.WriteAll(context.Background(), a, insights.Build(invoices, a)))

	data, err := os.ReadFile(filepath.Join(dir, report.CountsCSV))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	// The 2011-02 cohort has no observable month-1 cell yet.
	assert.Equal(t, "2011-02,1,", lines[2])
}

func TestRetentionHeatmapCells(t *testing.T) {
	a, _ := fixtureAnalysis(t)

	h := report.RetentionHeatmap(a)
	assert.Equal(t, "Monthly Customer Retention Rates", h.Title)
	assert.Equal(t, "diverging", h.Palette)
	require.Len(t, h.Cells, 2)

	assert.Equal(t, 0, h.Cells[0].Col)
	assert.Equal(t, 1.0, h.Cells[0].Value)
	assert.Equal(t, "100%", h.Cells[0].Label)
	assert.Equal(t, "50%", h.Cells[1].Label)
}

func TestHeatmapJSONIsValid(t *testing.T) {
	a, r := fixtureAnalysis(t)
	dir := t.TempDir()

	w := &report.Writer{Dir: dir}
	require.NoError(t, w.WriteAll(context.Background(), a, r))

	data, err := os.ReadFile(filepath.Join(dir, report.MonetaryJSON))
	require.NoError(t, err)

	var h report.Heatmap
	require.NoError(t, json.Unmarshal(data, &h))
	assert.Equal(t, "Monetary Value", h.Title)
	assert.NotEmpty(t, h.Cells)
}

func TestSummaryMentionsPeriodAndFindings(t *testing.T) {
	a, r := fixtureAnalysis(t)

	s := report.Summary(a, r)
	assert.Contains(t, s, "2011-01 to 2011-02")
	assert.Contains(t, s, "Customers: 2")
	assert.Contains(t, s, "month  0: 100.0%")
	assert.Contains(t, s, "Findings:")
}
