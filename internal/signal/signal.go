// Package signal defines the shared ProbabilityEstimate contract
// produced by the weather-forecast and LLM-rules signal sources. The
// two producers are modeled as independent packages emitting the same
// struct — a tagged-variant polymorphism rather than an inheritance
// hierarchy, so the Decision Engine dispatches on which producer ran,
// never on a shared base type's virtual methods. Arbitrage group
// pricing does not produce a ProbabilityEstimate; it emits its own
// arbitrage.Opportunity.
package signal

import "time"

// ProbabilityEstimate is the common output contract: a point
// estimate of P(YES) with confidence bounds.
type ProbabilityEstimate struct {
	P         float64 // point estimate, [0,1]
	Confidence float64 // [0,1]
	PLow      float64 // conservative (5th percentile-ish) bound
	PHigh     float64 // optimistic (95th percentile-ish) bound
	AsOfMs    int64
}

// Stale reports whether the estimate is older than budget.
func (e ProbabilityEstimate) Stale(now time.Time, budget time.Duration) bool {
	asOf := time.UnixMilli(e.AsOfMs)
	return now.Sub(asOf) > budget
}
