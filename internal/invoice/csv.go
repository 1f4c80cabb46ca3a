package invoice

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/cohortlab/cohortd/internal/log"
)

// ReaderOptions control how the CSV reader interprets its input.
type ReaderOptions struct {
	// Latin1 transcodes the input from ISO-8859-1 before parsing. The
	// public online-retail dataset ships in that encoding.
	Latin1 bool
	// DateLayouts overrides the accepted InvoiceDate layouts.
	DateLayouts []string
}

// Default layouts tried in order when parsing InvoiceDate.
var defaultDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"1/2/2006 15:04",
	"2006-01-02",
}

// Header keys after snake_case normalization.
const (
	colInvoiceNo   = "invoice_no"
	colCustomerID  = "customer_id"
	colInvoiceDate = "invoice_date"
	colQuantity    = "quantity"
	colUnitPrice   = "unit_price"
	colTotalPrice  = "total_price"
	colCountry     = "country"
)

// headerAliases maps normalized header spellings onto canonical keys.
// The cleaned dataset uses CamelCase ("InvoiceNo"); raw exports vary.
var headerAliases = map[string]string{
	"invoiceno":    colInvoiceNo,
	"invoice_no":   colInvoiceNo,
	"invoice":      colInvoiceNo,
	"customerid":   colCustomerID,
	"customer_id":  colCustomerID,
	"invoicedate":  colInvoiceDate,
	"invoice_date": colInvoiceDate,
	"date":         colInvoiceDate,
	"quantity":     colQuantity,
	"unitprice":    colUnitPrice,
	"unit_price":   colUnitPrice,
	"price":        colUnitPrice,
	"totalprice":   colTotalPrice,
	"total_price":  colTotalPrice,
	"total":        colTotalPrice,
	"country":      colCountry,
}

// ReadFile loads invoices from a CSV file on disk.
func ReadFile(path string, opts ReaderOptions) ([]Invoice, LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("invoice: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	invoices, stats, err := Read(f, opts)
	if err != nil {
		return nil, stats, fmt.Errorf("invoice: read %s: %w", path, err)
	}
	return invoices, stats, nil
}

// Read loads invoices from CSV data. Rows that cannot be parsed are counted
// in stats and skipped; only structural problems (no header, no usable
// columns, no data rows) are errors.
func Read(r io.Reader, opts ReaderOptions) ([]Invoice, LoadStats, error) {
	logger := log.WithComponent("invoice")

	if opts.Latin1 {
		r = transform.NewReader(r, charmap.ISO8859_1.NewDecoder())
	}

	layouts := opts.DateLayouts
	if len(layouts) == 0 {
		layouts = defaultDateLayouts
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // tolerate ragged rows, we validate per field

	header, err := cr.Read()
	if err == io.EOF {
		return nil, LoadStats{}, ErrEmptyFile
	}
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("read header: %w", err)
	}

	cols := mapHeader(header)
	if err := requireColumns(cols); err != nil {
		return nil, LoadStats{}, err
	}
	hasTotal := hasColumn(cols, colTotalPrice)
	hasQtyPrice := hasColumn(cols, colQuantity) && hasColumn(cols, colUnitPrice)

	var (
		invoices []Invoice
		stats    LoadStats
	)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.SkippedRows++
			continue
		}

		inv, ok := parseRow(row, cols, layouts, hasTotal, hasQtyPrice, &stats)
		if !ok {
			continue
		}
		invoices = append(invoices, inv)
		stats.Rows++
	}

	if len(invoices) == 0 {
		return nil, stats, ErrEmptyFile
	}

	logger.Debug().
		Int(log.FieldRows, stats.Rows).
		Int("skipped", stats.SkippedRows).
		Int("no_customer", stats.NoCustomer).
		Msg("csv read complete")

	return invoices, stats, nil
}

func parseRow(row []string, cols map[string]int, layouts []string, hasTotal, hasQtyPrice bool, stats *LoadStats) (Invoice, bool) {
	get := func(key string) string {
		idx, ok := cols[key]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	inv := Invoice{
		InvoiceNo:  get(colInvoiceNo),
		CustomerID: get(colCustomerID),
		Country:    get(colCountry),
	}

	// Rows without a customer cannot be attributed to a cohort.
	if inv.CustomerID == "" {
		stats.NoCustomer++
		return Invoice{}, false
	}
	if inv.InvoiceNo == "" {
		stats.SkippedRows++
		return Invoice{}, false
	}

	date, ok := parseDate(get(colInvoiceDate), layouts)
	if !ok {
		stats.SkippedRows++
		return Invoice{}, false
	}
	inv.InvoiceDate = date

	if qty := get(colQuantity); qty != "" {
		if n, err := strconv.Atoi(qty); err == nil {
			inv.Quantity = n
		}
	}
	if up := get(colUnitPrice); up != "" {
		if f, err := strconv.ParseFloat(up, 64); err == nil {
			inv.UnitPrice = f
		}
	}

	switch {
	case hasTotal:
		f, err := strconv.ParseFloat(get(colTotalPrice), 64)
		if err != nil {
			stats.SkippedRows++
			return Invoice{}, false
		}
		inv.TotalPrice = f
	case hasQtyPrice:
		inv.TotalPrice = float64(inv.Quantity) * inv.UnitPrice
		stats.DerivedTotal++
	}

	return inv, true
}

func parseDate(s string, layouts []string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// mapHeader builds a canonical-key → column-index map from the header row.
func mapHeader(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if canonical, ok := headerAliases[key]; ok {
			if _, seen := cols[canonical]; !seen {
				cols[canonical] = i
			}
		}
	}
	return cols
}

// normalizeHeader converts "Invoice Date" or "InvoiceDate" into a lookup key.
func normalizeHeader(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.Trim(s, "\ufeff") // UTF-8 BOM on first header cell
	return s
}

func hasColumn(cols map[string]int, key string) bool {
	_, ok := cols[key]
	return ok
}

func requireColumns(cols map[string]int) error {
	var missing []string
	for _, key := range []string{colInvoiceNo, colCustomerID, colInvoiceDate} {
		if !hasColumn(cols, key) {
			missing = append(missing, key)
		}
	}
	if !hasColumn(cols, colTotalPrice) && !(hasColumn(cols, colQuantity) && hasColumn(cols, colUnitPrice)) {
		missing = append(missing, colTotalPrice)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return nil
}
