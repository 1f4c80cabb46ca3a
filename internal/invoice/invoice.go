// Package invoice loads cleaned invoice data from CSV files.
package invoice

import (
	"errors"
	"time"
)

// Invoice is a single line of the cleaned invoice dataset.
type Invoice struct {
	InvoiceNo   string    `json:"invoiceNo"`
	CustomerID  string    `json:"customerId"`
	InvoiceDate time.Time `json:"invoiceDate"`
	Quantity    int       `json:"quantity,omitempty"`
	UnitPrice   float64   `json:"unitPrice,omitempty"`
	TotalPrice  float64   `json:"totalPrice"`
	Country     string    `json:"country,omitempty"`
}

// Sentinel errors mirroring the failure categories callers branch on.
var (
	ErrEmptyFile      = errors.New("invoice: file contains no data rows")
	ErrMissingColumns = errors.New("invoice: required columns missing")
)

// LoadStats reports what the reader accepted and what it dropped.
type LoadStats struct {
	Rows         int `json:"rows"`         // accepted rows
	SkippedRows  int `json:"skippedRows"`  // malformed or unparseable rows
	NoCustomer   int `json:"noCustomer"`   // rows without a customer ID
	DerivedTotal int `json:"derivedTotal"` // rows whose total was derived from qty*unit
}
