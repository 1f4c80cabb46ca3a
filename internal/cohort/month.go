// Package cohort computes customer retention cohorts from invoice data.
package cohort

import (
	"encoding/json"
	"fmt"
	"time"
)

// Month is a calendar month encoded as year*12 + (month-1), so that
// subtracting two Months yields the whole-month distance between them.
type Month int

// MonthOf truncates a timestamp to its calendar month.
func MonthOf(t time.Time) Month {
	return Month(t.Year()*12 + int(t.Month()) - 1)
}

// ParseMonth parses the "2006-01" form produced by String.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, fmt.Errorf("cohort: parse month %q: %w", s, err)
	}
	return MonthOf(t), nil
}

// Year returns the calendar year of the month.
func (m Month) Year() int { return int(m) / 12 }

// Mon returns the calendar month component.
func (m Month) Mon() time.Month { return time.Month(int(m)%12 + 1) }

// Add returns the month n months later.
func (m Month) Add(n int) Month { return m + Month(n) }

// Sub returns the number of whole months from other to m.
func (m Month) Sub(other Month) int { return int(m - other) }

// Time returns midnight UTC on the first day of the month.
func (m Month) Time() time.Time {
	return time.Date(m.Year(), m.Mon(), 1, 0, 0, 0, 0, time.UTC)
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year(), int(m.Mon()))
}

// MarshalJSON encodes the month as its "2006-01" string form.
func (m Month) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts the "2006-01" string form.
func (m *Month) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMonth(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
