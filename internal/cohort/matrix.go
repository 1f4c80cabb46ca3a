package cohort

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Matrix is a cohort-indexed dense matrix: one row per cohort month, one
// column per cohort index (0 = acquisition month). Cells with no observable
// data hold NaN and render as blanks in every output format.
type Matrix struct {
	cohorts []Month
	data    *mat.Dense
}

// NewMatrix allocates a matrix for the given cohort months and period count,
// with every cell initialised to NaN.
func NewMatrix(cohorts []Month, periods int) *Matrix {
	if len(cohorts) == 0 || periods == 0 {
		return &Matrix{cohorts: cohorts}
	}
	backing := make([]float64, len(cohorts)*periods)
	for i := range backing {
		backing[i] = math.NaN()
	}
	return &Matrix{
		cohorts: cohorts,
		data:    mat.NewDense(len(cohorts), periods, backing),
	}
}

// Rows returns the number of cohort rows.
func (m *Matrix) Rows() int { return len(m.cohorts) }

// Cols returns the number of cohort-index columns.
func (m *Matrix) Cols() int {
	if m.data == nil {
		return 0
	}
	_, c := m.data.Dims()
	return c
}

// Cohorts returns the row labels in ascending order.
func (m *Matrix) Cohorts() []Month { return m.cohorts }

// At returns the cell value for a cohort row and index column.
func (m *Matrix) At(row, col int) float64 { return m.data.At(row, col) }

// Set assigns a cell value.
func (m *Matrix) Set(row, col int, v float64) { m.data.Set(row, col, v) }

// Row returns a copy of one cohort row.
func (m *Matrix) Row(i int) []float64 {
	out := make([]float64, m.Cols())
	mat.Row(out, i, m.data)
	return out
}

// RowByMonth returns the row for a cohort month, or false if absent.
func (m *Matrix) RowByMonth(month Month) ([]float64, bool) {
	for i, c := range m.cohorts {
		if c == month {
			return m.Row(i), true
		}
	}
	return nil, false
}

// DivideByColumn returns a new matrix with every row divided by that row's
// value in the given column. Rows whose divisor is NaN or zero become NaN.
// With col=0 this is exactly the retention-rate computation: each cohort's
// activity divided by its acquisition-month size.
func (m *Matrix) DivideByColumn(col int) *Matrix {
	out := NewMatrix(m.cohorts, m.Cols())
	for i := 0; i < m.Rows(); i++ {
		divisor := m.At(i, col)
		if math.IsNaN(divisor) || divisor == 0 {
			continue
		}
		for j := 0; j < m.Cols(); j++ {
			out.Set(i, j, m.At(i, j)/divisor)
		}
	}
	return out
}

// Column returns a copy of one cohort-index column.
func (m *Matrix) Column(j int) []float64 {
	out := make([]float64, m.Rows())
	mat.Col(out, j, m.data)
	return out
}

// ColumnMean returns the mean of the non-NaN cells in a column, and the
// number of cells that contributed.
func (m *Matrix) ColumnMean(j int) (float64, int) {
	var sum float64
	var n int
	for i := 0; i < m.Rows(); i++ {
		v := m.At(i, j)
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN(), 0
	}
	return sum / float64(n), n
}

// matrixJSON is the wire form: NaN cells become JSON nulls.
type matrixJSON struct {
	Cohorts []Month      `json:"cohorts"`
	Values  [][]*float64 `json:"values"`
}

// MarshalJSON encodes the matrix with null for NaN cells, since JSON has no
// NaN literal.
func (m *Matrix) MarshalJSON() ([]byte, error) {
	out := matrixJSON{Cohorts: m.cohorts, Values: make([][]*float64, m.Rows())}
	for i := 0; i < m.Rows(); i++ {
		row := make([]*float64, m.Cols())
		for j := 0; j < m.Cols(); j++ {
			v := m.At(i, j)
			if !math.IsNaN(v) {
				val := v
				row[j] = &val
			}
		}
		out.Values[i] = row
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (m *Matrix) UnmarshalJSON(data []byte) error {
	var in matrixJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if len(in.Values) != len(in.Cohorts) {
		return fmt.Errorf("cohort: matrix rows (%d) do not match cohorts (%d)", len(in.Values), len(in.Cohorts))
	}
	periods := 0
	if len(in.Values) > 0 {
		periods = len(in.Values[0])
	}
	decoded := NewMatrix(in.Cohorts, periods)
	for i, row := range in.Values {
		if len(row) != periods {
			return fmt.Errorf("cohort: ragged matrix row %d", i)
		}
		for j, cell := range row {
			if cell != nil {
				decoded.Set(i, j, *cell)
			}
		}
	}
	*m = *decoded
	return nil
}
