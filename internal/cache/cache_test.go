package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortlab/cohortd/internal/cache"
	"github.com/cohortlab/cohortd/internal/cohort"
	"github.com/cohortlab/cohortd/internal/invoice"
)

func openTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.Open(t.TempDir(), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sampleInvoices() []invoice.Invoice {
	return []invoice.Invoice{
		{InvoiceNo: "i1", CustomerID: "a", InvoiceDate: time.Date(2011, 1, 5, 0, 0, 0, 0, time.UTC), TotalPrice: 10},
		{InvoiceNo: "i2", CustomerID: "a", InvoiceDate: time.Date(2011, 2, 5, 0, 0, 0, 0, time.UTC), TotalPrice: 12},
		{InvoiceNo: "i3", CustomerID: "b", InvoiceDate: time.Date(2011, 1, 9, 0, 0, 0, 0, time.UTC), TotalPrice: 7},
	}
}

func TestPutGetRoundtrip(t *testing.T) {
	c := openTestCache(t)

	a, err := cohort.Analyze(sampleInvoices())
	require.NoError(t, err)

	fp := cache.Fingerprint(sampleInvoices())
	require.NoError(t, c.Put(fp, a))

	got, err := c.Get(fp)
	require.NoError(t, err)
	assert.Equal(t, a.Customers, got.Customers)
	assert.Equal(t, a.Counts.At(0, 0), got.Counts.At(0, 0))
}

func TestGetMiss(t *testing.T) {
	c := openTestCache(t)
	_, err := c.Get("deadbeef")
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestFingerprintIsOrderInsensitive(t *testing.T) {
	invs := sampleInvoices()
	reversed := []invoice.Invoice{invs[2], invs[1], invs[0]}
	assert.Equal(t, cache.Fingerprint(invs), cache.Fingerprint(reversed))
}

func TestFingerprintChangesWithData(t *testing.T) {
	invs := sampleInvoices()
	modified := sampleInvoices()
	modified[0].TotalPrice = 99
	assert.NotEqual(t, cache.Fingerprint(invs), cache.Fingerprint(modified))
}
