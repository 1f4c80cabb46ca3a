// Package insights derives retention factors and loyalty-strategy
// suggestions from a cohort analysis.
package insights

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/cohortlab/cohortd/internal/cohort"
	"github.com/cohortlab/cohortd/internal/invoice"
)

// minSegmentSize is the smallest segment reported as a factor; smaller
// segments are too noisy to rank.
const minSegmentSize = 10

// SegmentFactor describes how one segment's repeat rate compares to the
// overall population.
type SegmentFactor struct {
	Dimension  string  `json:"dimension"`
	Segment    string  `json:"segment"`
	Customers  int     `json:"customers"`
	RepeatRate float64 `json:"repeatRate"` // fraction active in 2+ months
	Delta      float64 `json:"delta"`      // repeat rate minus overall
}

// Correlation reports a Pearson correlation between a per-customer feature
// and months of activity.
type Correlation struct {
	Label string  `json:"label"`
	R     float64 `json:"r"`
	N     int     `json:"n"`
}

// Report bundles factors, correlations, and rule-based findings.
type Report struct {
	OverallRepeatRate float64         `json:"overallRepeatRate"`
	Factors           []SegmentFactor `json:"factors"`
	Correlations      []Correlation   `json:"correlations"`
	Findings          []Finding       `json:"findings"`
	GeneratedAt       time.Time       `json:"generatedAt"`
}

// customerProfile aggregates per-customer features used by the factor scan.
type customerProfile struct {
	segment    string
	months     map[cohort.Month]struct{}
	firstMonth cohort.Month
	firstSpend float64
	totalSpend float64
}

// Build computes the insight report for a set of invoices and their analysis.
func Build(invoices []invoice.Invoice, a *cohort.Analysis) *Report {
	profiles := buildProfiles(invoices)

	report := &Report{
		OverallRepeatRate: repeatRate(profiles, nil),
		Factors:           segmentFactors(profiles),
		Correlations:      correlations(profiles),
		GeneratedAt:       time.Now().UTC(),
	}
	report.Findings = findings(a, report)
	return report
}

func buildProfiles(invoices []invoice.Invoice) map[string]*customerProfile {
	profiles := make(map[string]*customerProfile)
	for _, inv := range invoices {
		m := cohort.MonthOf(inv.InvoiceDate)
		p, ok := profiles[inv.CustomerID]
		if !ok {
			p = &customerProfile{
				segment:    inv.Country,
				months:     make(map[cohort.Month]struct{}),
				firstMonth: m,
			}
			profiles[inv.CustomerID] = p
		}
		p.months[m] = struct{}{}
		p.totalSpend += inv.TotalPrice
		if m < p.firstMonth {
			p.firstMonth = m
			p.firstSpend = 0
		}
		if m == p.firstMonth {
			p.firstSpend += inv.TotalPrice
		}
		if p.segment == "" {
			p.segment = inv.Country
		}
	}
	return profiles
}

// repeatRate returns the fraction of customers active in two or more months.
// A nil filter means the whole population.
func repeatRate(profiles map[string]*customerProfile, filter func(*customerProfile) bool) float64 {
	var total, repeat int
	for _, p := range profiles {
		if filter != nil && !filter(p) {
			continue
		}
		total++
		if len(p.months) >= 2 {
			repeat++
		}
	}
	if total == 0 {
		return math.NaN()
	}
	return float64(repeat) / float64(total)
}

func segmentFactors(profiles map[string]*customerProfile) []SegmentFactor {
	bySegment := make(map[string][]*customerProfile)
	for _, p := range profiles {
		if p.segment == "" {
			continue
		}
		bySegment[p.segment] = append(bySegment[p.segment], p)
	}

	overall := repeatRate(profiles, nil)

	var factors []SegmentFactor
	for segment, members := range bySegment {
		if len(members) < minSegmentSize {
			continue
		}
		var repeat int
		for _, p := range members {
			if len(p.months) >= 2 {
				repeat++
			}
		}
		rate := float64(repeat) / float64(len(members))
		factors = append(factors, SegmentFactor{
			Dimension:  "country",
			Segment:    segment,
			Customers:  len(members),
			RepeatRate: rate,
			Delta:      rate - overall,
		})
	}

	// Strongest deviations first; ties broken by segment size then name so
	// the ordering is stable across runs.
	sort.Slice(factors, func(i, j int) bool {
		di, dj := math.Abs(factors[i].Delta), math.Abs(factors[j].Delta)
		if di != dj {
			return di > dj
		}
		if factors[i].Customers != factors[j].Customers {
			return factors[i].Customers > factors[j].Customers
		}
		return factors[i].Segment < factors[j].Segment
	})
	return factors
}

func correlations(profiles map[string]*customerProfile) []Correlation {
	var spend, active []float64
	for _, p := range profiles {
		spend = append(spend, p.firstSpend)
		active = append(active, float64(len(p.months)))
	}
	if len(spend) < 3 {
		return nil
	}
	r := stat.Correlation(spend, active, nil)
	if math.IsNaN(r) {
		return nil
	}
	return []Correlation{{
		Label: "first-month spend vs months active",
		R:     r,
		N:     len(spend),
	}}
}
