// Package cache stores computed analyses keyed by dataset fingerprint, so a
// refresh over unchanged data skips the recompute.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/cohortlab/cohortd/internal/cohort"
	"github.com/cohortlab/cohortd/internal/invoice"
)

// ErrMiss is returned when no entry exists for a fingerprint.
var ErrMiss = errors.New("cache: miss")

// DefaultTTL bounds how long a cached analysis is trusted.
const DefaultTTL = 24 * time.Hour

// Cache is a badger-backed analysis cache.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens (or creates) the cache directory.
func Open(dir string, ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", dir, err)
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error { return c.db.Close() }

// Put stores an analysis under its dataset fingerprint.
func (c *Cache) Put(fingerprint string, a *cohort.Analysis) error {
	buf, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("cache: marshal analysis: %w", err)
	}
	key := []byte("analysis:" + fingerprint)
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, buf).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
}

// Get loads the analysis for a fingerprint, or ErrMiss.
func (c *Cache) Get(fingerprint string) (*cohort.Analysis, error) {
	key := []byte("analysis:" + fingerprint)
	var out cohort.Analysis
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get %s: %w", fingerprint, err)
	}
	return &out, nil
}

// Fingerprint computes a stable SHA-256 over the invoice set. Rows are
// sorted first so ingestion order does not change the key.
func Fingerprint(invoices []invoice.Invoice) string {
	rows := make([]string, len(invoices))
	for i, inv := range invoices {
		rows[i] = fmt.Sprintf("%s|%s|%d|%.4f",
			inv.InvoiceNo, inv.CustomerID, inv.InvoiceDate.UTC().Unix(), inv.TotalPrice)
	}
	sort.Strings(rows)

	h := sha256.New()
	for _, r := range rows {
		h.Write([]byte(r))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
