package cohort

import (
	"errors"
	"sort"
	"time"

	"github.com/cohortlab/cohortd/internal/invoice"
	"github.com/cohortlab/cohortd/internal/log"
)

// ErrNoInvoices is returned when the input carries no attributable rows.
var ErrNoInvoices = errors.New("cohort: no invoices to analyze")

// Analysis is the complete output of a cohort run: three observation
// matrices plus the derived retention rates.
type Analysis struct {
	// Counts holds distinct active customers per (cohort, index).
	Counts *Matrix `json:"counts"`
	// Invoices holds distinct invoice numbers per (cohort, index).
	Invoices *Matrix `json:"invoices"`
	// Monetary holds summed revenue per (cohort, index).
	Monetary *Matrix `json:"monetary"`
	// Retention is Counts divided row-wise by cohort size.
	Retention *Matrix `json:"retention"`

	// CohortSizes is the acquisition-month customer count per cohort row.
	CohortSizes []int `json:"cohortSizes"`

	FirstMonth  Month     `json:"firstMonth"`
	LastMonth   Month     `json:"lastMonth"`
	Customers   int       `json:"customers"`
	Rows        int       `json:"rows"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Periods returns the number of cohort-index columns.
func (a *Analysis) Periods() int { return a.Counts.Cols() }

// FirstPurchases computes each customer's acquisition month.
func FirstPurchases(invoices []invoice.Invoice) map[string]Month {
	first := make(map[string]Month)
	for _, inv := range invoices {
		m := MonthOf(inv.InvoiceDate)
		if prev, ok := first[inv.CustomerID]; !ok || m < prev {
			first[inv.CustomerID] = m
		}
	}
	return first
}

// cell accumulates the per-(cohort, index) aggregates before they are laid
// out into matrices.
type cell struct {
	customers map[string]struct{}
	invoices  map[string]struct{}
	monetary  float64
}

type cellKey struct {
	cohort Month
	index  int
}

// Analyze runs the cohort pipeline: acquisition month per customer, cohort
// index per row, then distinct-customer, distinct-invoice, and revenue
// aggregation laid out as cohort matrices. Deterministic for a given input.
func Analyze(invoices []invoice.Invoice) (*Analysis, error) {
	if len(invoices) == 0 {
		return nil, ErrNoInvoices
	}

	logger := log.WithComponent("cohort")
	started := time.Now()

	first := FirstPurchases(invoices)

	cells := make(map[cellKey]*cell)
	var firstMonth, lastMonth Month
	for i, inv := range invoices {
		m := MonthOf(inv.InvoiceDate)
		if i == 0 {
			firstMonth, lastMonth = m, m
		}
		if m < firstMonth {
			firstMonth = m
		}
		if m > lastMonth {
			lastMonth = m
		}

		key := cellKey{cohort: first[inv.CustomerID], index: m.Sub(first[inv.CustomerID])}
		c, ok := cells[key]
		if !ok {
			c = &cell{
				customers: make(map[string]struct{}),
				invoices:  make(map[string]struct{}),
			}
			cells[key] = c
		}
		c.customers[inv.CustomerID] = struct{}{}
		c.invoices[inv.InvoiceNo] = struct{}{}
		c.monetary += inv.TotalPrice
	}

	// Cohort rows are every month with at least one acquisition, ascending.
	cohortSet := make(map[Month]struct{})
	for _, m := range first {
		cohortSet[m] = struct{}{}
	}
	cohorts := make([]Month, 0, len(cohortSet))
	for m := range cohortSet {
		cohorts = append(cohorts, m)
	}
	sort.Slice(cohorts, func(i, j int) bool { return cohorts[i] < cohorts[j] })

	periods := 0
	for key := range cells {
		if key.index+1 > periods {
			periods = key.index + 1
		}
	}

	a := &Analysis{
		Counts:      NewMatrix(cohorts, periods),
		Invoices:    NewMatrix(cohorts, periods),
		Monetary:    NewMatrix(cohorts, periods),
		FirstMonth:  firstMonth,
		LastMonth:   lastMonth,
		Customers:   len(first),
		Rows:        len(invoices),
		GeneratedAt: time.Now().UTC(),
	}

	rowOf := make(map[Month]int, len(cohorts))
	for i, m := range cohorts {
		rowOf[m] = i
	}
	for key, c := range cells {
		row := rowOf[key.cohort]
		a.Counts.Set(row, key.index, float64(len(c.customers)))
		a.Invoices.Set(row, key.index, float64(len(c.invoices)))
		a.Monetary.Set(row, key.index, c.monetary)
	}

	a.Retention = a.Counts.DivideByColumn(0)

	a.CohortSizes = make([]int, len(cohorts))
	for i := range cohorts {
		a.CohortSizes[i] = int(a.Counts.At(i, 0))
	}

	logger.Info().
		Int(log.FieldRows, a.Rows).
		Int(log.FieldCohorts, len(cohorts)).
		Int("customers", a.Customers).
		Dur("elapsed", time.Since(started)).
		Msg("cohort analysis complete")

	return a, nil
}

// RetentionCurve returns the mean observed retention per cohort index,
// skipping cells outside each cohort's observable window.
func (a *Analysis) RetentionCurve() []float64 {
	curve := make([]float64, a.Periods())
	for j := range curve {
		mean, _ := a.Retention.ColumnMean(j)
		curve[j] = mean
	}
	return curve
}
