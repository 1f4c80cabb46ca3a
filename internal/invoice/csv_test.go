package invoice_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortlab/cohortd/internal/invoice"
)

const sampleCSV = `InvoiceNo,CustomerID,InvoiceDate,TotalPrice,Country
536365,17850,2010-12-01 08:26:00,15.30,United Kingdom
536366,17850,2010-12-01 08:28:00,11.10,United Kingdom
536367,13047,2010-12-01 08:34:00,54.08,France
`

func TestReadBasic(t *testing.T) {
	invoices, stats, err := invoice.Read(strings.NewReader(sampleCSV), invoice.ReaderOptions{})
	require.NoError(t, err)
	require.Len(t, invoices, 3)

	assert.Equal(t, 3, stats.Rows)
	assert.Equal(t, 0, stats.SkippedRows)

	first := invoices[0]
	assert.Equal(t, "536365", first.InvoiceNo)
	assert.Equal(t, "17850", first.CustomerID)
	assert.Equal(t, 15.30, first.TotalPrice)
	assert.Equal(t, "United Kingdom", first.Country)
	assert.Equal(t, time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC), first.InvoiceDate)
}

func TestReadHeaderVariants(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"camel case", "InvoiceNo,CustomerID,InvoiceDate,TotalPrice"},
		{"snake case", "invoice_no,customer_id,invoice_date,total_price"},
		{"spaced", "Invoice No,Customer ID,Invoice Date,Total Price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.header + "\n1,2,2011-01-05,9.99\n"
			invoices, _, err := invoice.Read(strings.NewReader(data), invoice.ReaderOptions{})
			require.NoError(t, err)
			require.Len(t, invoices, 1)
			assert.Equal(t, 9.99, invoices[0].TotalPrice)
		})
	}
}

func TestReadDerivesTotalFromQuantityAndUnitPrice(t *testing.T) {
	data := "InvoiceNo,CustomerID,InvoiceDate,Quantity,UnitPrice\n" +
		"100,42,2011-03-10,6,2.55\n"
	invoices, stats, err := invoice.Read(strings.NewReader(data), invoice.ReaderOptions{})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.InDelta(t, 15.30, invoices[0].TotalPrice, 1e-9)
	assert.Equal(t, 1, stats.DerivedTotal)
}

func TestReadSkipsRowsWithoutCustomer(t *testing.T) {
	data := "InvoiceNo,CustomerID,InvoiceDate,TotalPrice\n" +
		"100,42,2011-03-10,5.00\n" +
		"101,,2011-03-11,7.00\n"
	invoices, stats, err := invoice.Read(strings.NewReader(data), invoice.ReaderOptions{})
	require.NoError(t, err)
	assert.Len(t, invoices, 1)
	assert.Equal(t, 1, stats.NoCustomer)
}

func TestReadSkipsMalformedRows(t *testing.T) {
	data := "InvoiceNo,CustomerID,InvoiceDate,TotalPrice\n" +
		"100,42,not-a-date,5.00\n" +
		"101,42,2011-03-11,not-a-number\n" +
		"102,42,2011-03-12,7.50\n"
	invoices, stats, err := invoice.Read(strings.NewReader(data), invoice.ReaderOptions{})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "102", invoices[0].InvoiceNo)
	assert.Equal(t, 2, stats.SkippedRows)
}

func TestReadEmptyInput(t *testing.T) {
	_, _, err := invoice.Read(strings.NewReader(""), invoice.ReaderOptions{})
	assert.ErrorIs(t, err, invoice.ErrEmptyFile)

	// Header only, no data rows.
	_, _, err = invoice.Read(strings.NewReader("InvoiceNo,CustomerID,InvoiceDate,TotalPrice\n"), invoice.ReaderOptions{})
	assert.ErrorIs(t, err, invoice.ErrEmptyFile)
}

func TestReadMissingColumns(t *testing.T) {
	data := "InvoiceNo,InvoiceDate,TotalPrice\n100,2011-03-10,5.00\n"
	_, _, err := invoice.Read(strings.NewReader(data), invoice.ReaderOptions{})
	require.ErrorIs(t, err, invoice.ErrMissingColumns)
	assert.Contains(t, err.Error(), "customer_id")
}

func TestReadLatin1(t *testing.T) {
	// "Réunion" encoded as ISO-8859-1: é = 0xE9.
	raw := []byte("InvoiceNo,CustomerID,InvoiceDate,TotalPrice,Country\n" +
		"100,42,2011-03-10,5.00,R\xe9union\n")
	invoices, _, err := invoice.Read(strings.NewReader(string(raw)), invoice.ReaderOptions{Latin1: true})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "Réunion", invoices[0].Country)
}

func TestReadFileNotFound(t *testing.T) {
	_, _, err := invoice.ReadFile("/nonexistent/cleaned-data.csv", invoice.ReaderOptions{})
	assert.Error(t, err)
}
