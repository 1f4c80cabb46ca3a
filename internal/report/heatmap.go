package report

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/renameio/v2"

	"github.com/cohortlab/cohortd/internal/cohort"
)

// Heatmap is a render-ready chart config: one cell per observable
// (cohort month, cohort index) pair. Frontends draw it directly.
type Heatmap struct {
	Title   string         `json:"title"`
	XAxis   string         `json:"xAxis"`
	YAxis   string         `json:"yAxis"`
	Palette string         `json:"palette"` // "diverging" or "sequential"
	Rows    []cohort.Month `json:"rows"`
	Cols    int            `json:"cols"`
	Cells   []HeatmapCell  `json:"cells"`
}

// HeatmapCell is one annotated heatmap cell.
type HeatmapCell struct {
	Row   int     `json:"row"`   // index into Rows
	Col   int     `json:"col"`   // cohort index
	Value float64 `json:"value"`
	Label string  `json:"label"` // pre-formatted annotation
}

// RetentionHeatmap builds the retention-rate heatmap (percent labels,
// diverging palette).
func RetentionHeatmap(a *cohort.Analysis) *Heatmap {
	return buildHeatmap(a.Retention, "Monthly Customer Retention Rates", "diverging", cellPercent)
}

// CountsHeatmap builds the customer-count heatmap.
func CountsHeatmap(a *cohort.Analysis) *Heatmap {
	return buildHeatmap(a.Counts, "Number of Customers", "sequential", cellCount)
}

// MonetaryHeatmap builds the monetary-value heatmap.
func MonetaryHeatmap(a *cohort.Analysis) *Heatmap {
	return buildHeatmap(a.Monetary, "Monetary Value", "diverging", cellMoney)
}

func buildHeatmap(m *cohort.Matrix, title, palette string, format cellFormat) *Heatmap {
	h := &Heatmap{
		Title:   title,
		XAxis:   "Cohort Index",
		YAxis:   "First Purchase Month",
		Palette: palette,
		Rows:    m.Cohorts(),
		Cols:    m.Cols(),
	}
	for i := 0; i < m.Rows(); i++ {
		for j := 0; j < m.Cols(); j++ {
			v := m.At(i, j)
			if math.IsNaN(v) {
				continue
			}
			h.Cells = append(h.Cells, HeatmapCell{
				Row:   i,
				Col:   j,
				Value: v,
				Label: format(v),
			})
		}
	}
	return h
}

// writeHeatmapJSON writes a heatmap config with an atomic replace.
func writeHeatmapJSON(path string, h *Heatmap) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer pending.Cleanup() //nolint:errcheck

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(h); err != nil {
		return fmt.Errorf("encode heatmap: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace: %w", err)
	}
	return nil
}
