package report

import (
	"encoding/csv"
	"fmt"
	"math"
	"strconv"

	"github.com/google/renameio/v2"

	"github.com/cohortlab/cohortd/internal/cohort"
)

// cellFormat renders one matrix cell; NaN cells become empty strings so
// spreadsheets show them blank.
type cellFormat func(v float64) string

func cellPercent(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return fmt.Sprintf("%.0f%%", v*100)
}

func cellCount(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatInt(int64(v), 10)
}

func cellMoney(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return fmt.Sprintf("%.2f", v)
}

// writeMatrixCSV renders a cohort matrix as CSV with a durable atomic
// replace: temp file, fsync, rename.
func writeMatrixCSV(path string, m *cohort.Matrix, format cellFormat) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer pending.Cleanup() //nolint:errcheck // no-op after replace

	cw := csv.NewWriter(pending)

	header := make([]string, m.Cols()+1)
	header[0] = "cohort"
	for j := 0; j < m.Cols(); j++ {
		header[j+1] = strconv.Itoa(j)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, month := range m.Cohorts() {
		row := make([]string, m.Cols()+1)
		row[0] = month.String()
		for j := 0; j < m.Cols(); j++ {
			row[j+1] = format(m.At(i, j))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", month, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace: %w", err)
	}
	return nil
}
