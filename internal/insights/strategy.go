package insights

import (
	"fmt"
	"math"
)

// Finding is a rule-derived observation with a suggested loyalty action.
type Finding struct {
	Code     string `json:"code"`
	Severity string `json:"severity"` // "info" or "warn"
	Message  string `json:"message"`
}

// Rule thresholds. Tuned against the online-retail dataset, where month-1
// retention typically lands between 0.2 and 0.4.
const (
	steepDropThreshold   = 0.25
	strongSegmentDelta   = 0.10
	correlationThreshold = 0.30
)

// findings applies the strategy rules to the analysis and factor report.
func findings(a analysisView, r *Report) []Finding {
	var out []Finding

	curve := a.RetentionCurve()
	if len(curve) > 1 && !math.IsNaN(curve[1]) && curve[1] < steepDropThreshold {
		out = append(out, Finding{
			Code:     "steep_month1_drop",
			Severity: "warn",
			Message: fmt.Sprintf(
				"Only %.0f%% of customers return in their second month. Consider a post-purchase follow-up (welcome series, first-repeat discount) within 30 days of acquisition.",
				curve[1]*100),
		})
	}

	if len(r.Factors) > 0 {
		best := r.Factors[0]
		for _, f := range r.Factors {
			if f.Delta > best.Delta {
				best = f
			}
		}
		if best.Delta >= strongSegmentDelta {
			out = append(out, Finding{
				Code:     "strong_segment",
				Severity: "info",
				Message: fmt.Sprintf(
					"Customers in %s repeat at %.0f%% (%.0f points above average). Study what works there and replicate it in weaker markets.",
					best.Segment, best.RepeatRate*100, best.Delta*100),
			})
		}

		worst := r.Factors[0]
		for _, f := range r.Factors {
			if f.Delta < worst.Delta {
				worst = f
			}
		}
		if worst.Delta <= -strongSegmentDelta {
			out = append(out, Finding{
				Code:     "weak_segment",
				Severity: "warn",
				Message: fmt.Sprintf(
					"Customers in %s repeat at only %.0f%% (%.0f points below average). Review pricing, shipping, and localisation for that market.",
					worst.Segment, worst.RepeatRate*100, -worst.Delta*100),
			})
		}
	}

	for _, c := range r.Correlations {
		if c.R >= correlationThreshold {
			out = append(out, Finding{
				Code:     "basket_value_correlates",
				Severity: "info",
				Message: fmt.Sprintf(
					"First-month basket value correlates with long-term activity (r=%.2f, n=%d). Incentives that grow the first basket (bundles, free-shipping thresholds) should lift retention.",
					c.R, c.N),
			})
		}
	}

	if len(out) == 0 {
		out = append(out, Finding{
			Code:     "no_signal",
			Severity: "info",
			Message:  "No strong retention factors detected in this dataset.",
		})
	}
	return out
}

// analysisView is the slice of cohort.Analysis the rules need. Declared here
// so the rules can be tested with a stub curve.
type analysisView interface {
	RetentionCurve() []float64
}
