// Package decision implements the Decision Engine: it turns a quote,
// a probability estimate, and optional research into either an order
// intent or a typed veto. Grounded on
// weather-bot/crates/strategy/src/engine.rs from the original
// implementation — same fair-value formula, same fee-adjusted edge
// calculation, same fractional-Kelly sizing — generalized from a
// single hardcoded half-Kelly constant to the quality-mode-driven
// fraction and the full veto ladder.
package decision

import (
	"math"

	"github.com/kalshi-trading/core/internal/signal"
	"github.com/kalshi-trading/core/internal/signal/llmrules"
	"github.com/kalshi-trading/core/pkg/boterrors"
	"github.com/kalshi-trading/core/pkg/config"
	"github.com/kalshi-trading/core/pkg/quotebook"
)

// FeeSchedule computes the taker/maker fee shared with the arbitrage
// signal producer: same ceil(coeff*P*(1-P)*100) formula, maker is
// exactly taker/4.
type FeeSchedule struct {
	TakerCoeff float64
}

// DefaultFeeSchedule is the standard Kalshi-style fee curve.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{TakerCoeff: 0.07}
}

func (f FeeSchedule) MakerCoeff() float64 { return f.TakerCoeff / 4.0 }

// PerContractTakerFee computes ceil(coeff*P*(1-P)*100) for one
// contract priced at priceCents.
func (f FeeSchedule) PerContractTakerFee(priceCents int64) int64 {
	p := float64(priceCents) / 100.0
	return int64(math.Ceil(f.TakerCoeff * p * (1 - p) * 100.0))
}

// TakerFeeCents is the total taker fee for qty contracts.
func (f FeeSchedule) TakerFeeCents(qty, priceCents int64) int64 {
	return f.PerContractTakerFee(priceCents) * qty
}

// riskRank orders llmrules.RiskLevel for the rules-risk veto
// threshold comparison.
var riskRank = map[llmrules.RiskLevel]int{
	llmrules.RiskLow:      0,
	llmrules.RiskMedium:   1,
	llmrules.RiskHigh:     2,
	llmrules.RiskCritical: 3,
}

func rankOf(level string) int {
	switch level {
	case "low":
		return 0
	case "medium":
		return 1
	case "high":
		return 2
	case "critical":
		return 3
	default:
		return 2
	}
}

// riskPenaltyCents is the edge penalty added for research risk rank,
// per the veto ladder's point 9.
func riskPenaltyCents(level llmrules.RiskLevel) int64 {
	switch level {
	case llmrules.RiskMedium:
		return 1
	case llmrules.RiskHigh:
		return 3
	case llmrules.RiskCritical:
		return 5
	default:
		return 0
	}
}

// Input bundles everything the Decision Engine needs to evaluate one
// candidate market on one tick.
type Input struct {
	Ticker              string
	Quote               quotebook.Quote
	QuoteFresh          bool
	Estimate            signal.ProbabilityEstimate
	EstimateFresh       bool
	Research            *llmrules.Response // nil if no LLM rules producer configured
	CurrentPositionQty  int64
	HoursUntilClose     float64
	DaysUntilResolution int64
	SecondSourceP       float64 // 0 if unused
	HasSecondSource     bool
}

// Intent is an approved trade to hand to the Executor.
type Intent struct {
	Ticker            string
	Action            string // "buy" or "sell"
	PriceCents        int64
	Qty               int64
	FairCents         int64
	NetEdgeCents      int64
	ConservativeEdge  int64
	EstimatedFeeCents int64
	Confidence        float64
	QualityScore      float64
	Reason            string
}

// Evaluate runs the full veto ladder and, if the candidate survives,
// returns an entry or exit Intent. Exits bypass the quality gates
// entirely (spec: "exits are always considered independently of
// quality gates").
func Evaluate(in Input, strat config.StrategyConfig, quality config.QualityConfig, fees FeeSchedule) (*Intent, error) {
	if in.CurrentPositionQty > 0 && in.Quote.YesBid >= strat.ExitThresholdCents {
		fee := fees.TakerFeeCents(in.CurrentPositionQty, in.Quote.YesBid)
		return &Intent{
			Ticker:            in.Ticker,
			Action:            "sell",
			PriceCents:        in.Quote.YesBid,
			Qty:               in.CurrentPositionQty,
			EstimatedFeeCents: fee,
			Confidence:        in.Estimate.Confidence,
			Reason:            "exit: bid >= exit_threshold",
		}, nil
	}

	if in.CurrentPositionQty > 0 {
		return nil, &boterrors.RiskViolation{Code: "position_open_no_stacking", Reason: "existing position, no exit signal"}
	}

	if err := runVetoLadder(in, strat, quality); err != nil {
		return nil, err
	}

	fairCents := int64(math.Floor(100.0*in.Estimate.P)) - strat.SafetyMarginCents
	conservativeFair := int64(math.Floor(100.0*in.Estimate.PLow)) - strat.SafetyMarginCents

	entryFee := fees.PerContractTakerFee(in.Quote.YesAsk)
	exitFee := fees.PerContractTakerFee(strat.ExitThresholdCents)
	roundTripFee := entryFee + exitFee

	grossEdge := fairCents - in.Quote.YesAsk
	netEdge := grossEdge - roundTripFee - quality.SlippageBufferCents
	conservativeNetEdge := conservativeFair - in.Quote.YesAsk - roundTripFee

	penalty := int64(0)
	if in.Research != nil {
		penalty += riskPenaltyCents(in.Research.RiskOfMisresolution)
		penalty += int64(math.Round(in.Research.Uncertainty * 5))
	}

	if netEdge-penalty < strat.EdgeThresholdCents {
		return nil, &boterrors.RiskViolation{Code: "insufficient_edge", Reason: "net edge below threshold after penalties"}
	}
	if conservativeNetEdge <= 0 {
		return nil, &boterrors.RiskViolation{Code: "insufficient_conservative_edge", Reason: "conservative net edge not positive"}
	}
	if conservativeNetEdge < quality.MinConservativeNetEdgeCents {
		return nil, &boterrors.RiskViolation{Code: "conservative_edge_below_floor", Reason: "below configured floor"}
	}

	friction := roundTripFee + quality.SlippageBufferCents
	conservativeEV := in.Estimate.PLow*float64(100-in.Quote.YesAsk-friction) - (1-in.Estimate.PLow)*float64(in.Quote.YesAsk+friction)
	if int64(conservativeEV) < quality.MinConservativeEVCents {
		return nil, &boterrors.RiskViolation{Code: "conservative_ev_below_floor", Reason: "below configured floor"}
	}

	qty := KellySize(in.Estimate.PLow, in.Quote.YesAsk, strat.MaxPositionCents, friction, quality.Mode.KellyFraction(), strat.MaxKellyContracts)
	estimatedFee := fees.TakerFeeCents(qty, in.Quote.YesAsk)

	liquidityScore := float64(0) // always 0: volume and open interest do not contribute to the quality score
	quality_ := float64(netEdge)*2 + conservativeEV + agreementBonus(in)*10 + liquidityScore

	return &Intent{
		Ticker:            in.Ticker,
		Action:            "buy",
		PriceCents:        in.Quote.YesAsk,
		Qty:               qty,
		FairCents:         fairCents,
		NetEdgeCents:      netEdge,
		ConservativeEdge:  conservativeNetEdge,
		EstimatedFeeCents: estimatedFee,
		Confidence:        in.Estimate.Confidence,
		QualityScore:      quality_,
		Reason:            "entry: net edge clears fee-adjusted threshold",
	}, nil
}

func agreementBonus(in Input) float64 {
	if !in.HasSecondSource {
		return 0
	}
	gap := math.Abs(in.Estimate.P - in.SecondSourceP)
	return math.Max(0, 1.0-gap*10)
}

// runVetoLadder applies the first-match-wins veto chain in the
// documented order.
func runVetoLadder(in Input, strat config.StrategyConfig, quality config.QualityConfig) error {
	spreadCap := strat.MaxSpreadCents
	if quality.Mode == config.QualityUltraSafe {
		spreadCap = quality.MaxSpreadCentsUltra
	}
	spread := in.Quote.YesAsk - in.Quote.YesBid
	if spread > spreadCap {
		return &boterrors.RiskViolation{Code: "spread_filter", Reason: "spread exceeds cap"}
	}

	if !in.QuoteFresh || !in.EstimateFresh {
		return &boterrors.RiskViolation{Code: "stale_data", Reason: "quote or signal stale"}
	}

	if in.Research != nil {
		if in.Research.Uncertainty > quality.MaxUncertainty {
			return &boterrors.RiskViolation{Code: "uncertainty_veto", Reason: "research uncertainty exceeds ceiling"}
		}
		if rankOf(quality.RulesRiskVetoLevel) >= 0 && riskRank[in.Research.RiskOfMisresolution] >= rankOf(quality.RulesRiskVetoLevel) {
			return &boterrors.RiskViolation{Code: "rules_risk_veto", Reason: "research risk rank at or above veto level"}
		}
	}

	if in.Estimate.Confidence < quality.MinEnsembleConfidence {
		return &boterrors.RiskViolation{Code: "confidence_floor", Reason: "ensemble confidence below floor"}
	}
	if quality.RequireBothSources && !in.HasSecondSource {
		return &boterrors.RiskViolation{Code: "missing_second_source", Reason: "require_both_sources is set"}
	}
	if in.HasSecondSource {
		gap := math.Abs(in.Estimate.P - in.SecondSourceP)
		sameDirection := (in.Estimate.P-0.5)*(in.SecondSourceP-0.5) >= 0
		if quality.StrictSourceVeto && (!sameDirection || gap > quality.MaxSourceProbGap) {
			return &boterrors.RiskViolation{Code: "source_disagreement", Reason: "sources disagree in direction or gap exceeds cap"}
		}
	}

	if in.Quote.Volume24h < quality.MinVolume24h {
		return &boterrors.RiskViolation{Code: "liquidity_volume", Reason: "24h volume below floor"}
	}
	if in.Quote.OpenInterest < quality.MinOpenInterest {
		return &boterrors.RiskViolation{Code: "liquidity_open_interest", Reason: "open interest below floor"}
	}

	if in.HoursUntilClose < strat.MinHoursBeforeClose {
		return &boterrors.RiskViolation{Code: "too_close_to_expiry", Reason: "hours until close below floor"}
	}
	if in.DaysUntilResolution > strat.MaxDaysToResolution {
		return &boterrors.RiskViolation{Code: "resolution_too_far", Reason: "days to resolution exceeds cap"}
	}

	if in.Quote.YesAsk > strat.EntryThresholdCents {
		return &boterrors.RiskViolation{Code: "entry_threshold", Reason: "ask above entry threshold"}
	}

	return nil
}

// KellySize applies fractional-Kelly position sizing: given
// conservative p, ask price, the caller's friction (fee + slippage),
// and the quality-mode's Kelly fraction, returns a contract count
// clamped to [1, maxContractsCap].
func KellySize(p float64, askCents, maxPositionCents, frictionCents int64, kellyFraction float64, maxContractsCap int64) int64 {
	pClamped := clamp(p, 0.01, 0.99)
	q := 1.0 - pClamped

	netPayout := float64(100 - askCents - frictionCents)
	if netPayout <= 0 {
		return 1
	}

	costPerContract := float64(askCents + frictionCents)
	b := netPayout / costPerContract

	kellyF := (pClamped*b - q) / b
	if kellyF <= 0 {
		return 1
	}

	fractional := kellyF * kellyFraction
	maxContracts := float64(maxPositionCents) / costPerContract
	contracts := int64(math.Floor(fractional * maxContracts))

	return clampInt64(contracts, 1, maxContractsCap)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
