// Package arbitrage prices complete-set mispricings across the
// outcome markets of one event. Grounded on
// arb_strategy/src/{fees,arb}.rs from the original implementation:
// same per-contract fee formula, same buy-set/sell-set cost
// calculations, same EV-discounted-payout heuristic for non-exhaustive
// sets.
package arbitrage

import (
	"math"
	"strings"

	"github.com/kalshi-trading/core/pkg/quotebook"
)

// Classification describes whether an ArbGroup's outcome markets
// exhaustively partition the event's resolution space.
type Classification string

const (
	Exhaustive   Classification = "exhaustive"
	TiePossible  Classification = "tie_possible"
	VoidPossible Classification = "void_possible"
	PartialSet   Classification = "partial_set" // never arbitrated
)

// GroupMember is one outcome ticker's metadata needed to classify and
// price its ArbGroup.
type GroupMember struct {
	Ticker             string
	RulesText          string
	MutuallyExclusive  bool
}

// Classify applies the classification heuristic: a single-market
// group is always exhaustive (YES+NO complement); a non-mutually-
// exclusive group is a PartialSet and is never arbitrated; "void" or
// "cancel" keywords in any member's rules mark VoidPossible; "tie" or
// "draw" keywords without a dedicated tie-outcome market mark
// TiePossible; otherwise the group is exhaustive.
func Classify(members []GroupMember) Classification {
	if len(members) == 1 {
		return Exhaustive
	}

	for _, m := range members {
		if !m.MutuallyExclusive {
			return PartialSet
		}
	}

	for _, m := range members {
		lower := strings.ToLower(m.RulesText)
		if strings.Contains(lower, "void") || strings.Contains(lower, "cancel") {
			return VoidPossible
		}
	}

	hasTieOutcome := false
	for _, m := range members {
		if strings.Contains(strings.ToLower(m.Ticker), "tie") || strings.Contains(strings.ToLower(m.Ticker), "draw") {
			hasTieOutcome = true
		}
	}
	for _, m := range members {
		lower := strings.ToLower(m.RulesText)
		if (strings.Contains(lower, "tie") || strings.Contains(lower, "draw")) && !hasTieOutcome {
			return TiePossible
		}
	}

	return Exhaustive
}

// PVoidTable is the configurable heuristic probability-of-void table
// per classification (unreviewed estimates per the spec's open
// questions — exposed here as a map rather than hardcoded constants).
var PVoidTable = map[Classification]float64{
	TiePossible:  0.05,
	VoidPossible: 0.02,
	PartialSet:   0.10, // unused: PartialSet is never arbitrated
}

// FeeModel computes the taker/maker fee schedule shared with the
// Decision Engine (§4.3 point 2) plus arb-specific set-level cost and
// revenue calculations.
type FeeModel struct {
	TakerCoeff      float64 // 0.07
	SlippageBuffer  int64   // cents per leg
}

// NewFeeModel builds the standard fee model with the given per-leg
// slippage buffer in cents.
func NewFeeModel(slippageBufferCents int64) FeeModel {
	return FeeModel{TakerCoeff: 0.07, SlippageBuffer: slippageBufferCents}
}

// MakerCoeff is exactly taker/4, by invariant (§8 round-trip law).
func (f FeeModel) MakerCoeff() float64 { return f.TakerCoeff / 4.0 }

// PerContractTakerFee computes ceil(coeff * P * (1-P) * 100) for one
// contract at the given price in cents. Symmetric under
// fee(P) == fee(100-P) by construction.
func (f FeeModel) PerContractTakerFee(priceCents int64) int64 {
	p := float64(priceCents) / 100.0
	raw := f.TakerCoeff * p * (1 - p) * 100.0
	return int64(math.Ceil(raw))
}

// TakerFee computes the taker fee for qty contracts at priceCents.
func (f FeeModel) TakerFee(qty, priceCents int64) int64 {
	return f.PerContractTakerFee(priceCents) * qty
}

// NetBuySetCost returns Σ (ask_i + slippage)*qty + Σ fee(qty, ask_i+slippage).
func (f FeeModel) NetBuySetCost(quotes []quotebook.Quote, qty int64) int64 {
	var total int64
	for _, q := range quotes {
		effectiveAsk := q.YesAsk + f.SlippageBuffer
		total += effectiveAsk*qty + f.TakerFee(qty, effectiveAsk)
	}
	return total
}

// NetSellSetRevenue returns Σ (bid_i - slippage)*qty - Σ fee(...), or
// (0, false) if any leg's effective bid after slippage is non-positive.
func (f FeeModel) NetSellSetRevenue(quotes []quotebook.Quote, qty int64) (int64, bool) {
	var total int64
	for _, q := range quotes {
		effectiveBid := q.YesBid - f.SlippageBuffer
		if effectiveBid <= 0 {
			return 0, false
		}
		total += effectiveBid*qty - f.TakerFee(qty, effectiveBid)
	}
	return total, true
}

// PerContractBuyCost is the per-unit net cost to buy the full set.
func (f FeeModel) PerContractBuyCost(quotes []quotebook.Quote) int64 {
	var total int64
	for _, q := range quotes {
		effectiveAsk := q.YesAsk + f.SlippageBuffer
		total += effectiveAsk + f.PerContractTakerFee(effectiveAsk)
	}
	return total
}

// PerContractSellRevenue is the per-unit net revenue for selling the
// full set, or (0, false) if any leg is non-positive after slippage.
func (f FeeModel) PerContractSellRevenue(quotes []quotebook.Quote) (int64, bool) {
	var total int64
	for _, q := range quotes {
		effectiveBid := q.YesBid - f.SlippageBuffer
		if effectiveBid <= 0 {
			return 0, false
		}
		total += effectiveBid - f.PerContractTakerFee(effectiveBid)
	}
	return total, true
}

// EVDiscountedPayout is the expected payout (cents) for a
// non-exhaustive set given heuristic void probability pVoid:
// floor(100*(1-pVoid)).
func EVDiscountedPayout(pVoid float64) int64 {
	return int64(math.Floor(100.0 * (1.0 - pVoid)))
}

// SingleMarketBuySetCost prices the single-market complementary-pair
// arb (buy YES and NO simultaneously): no_ask = 100 - yes_bid, cost
// includes both legs' fees.
func (f FeeModel) SingleMarketBuySetCost(q quotebook.Quote, qty int64) int64 {
	yesAsk := q.YesAsk + f.SlippageBuffer
	noAsk := q.NoAsk() + f.SlippageBuffer
	return (yesAsk+f.PerContractTakerFee(yesAsk))*qty + (noAsk+f.PerContractTakerFee(noAsk))*qty
}

// Side distinguishes which direction an Opportunity trades the set.
type Side string

const (
	// BuySet buys every outcome (or, for a single market, buys both
	// YES and NO) and collects the payout at resolution.
	BuySet Side = "buy_set"
	// SellSet sells every outcome and must cover the payout for
	// whichever one resolves true, keeping the rest as pure premium.
	SellSet Side = "sell_set"
)

// Opportunity is an arbitrage signal emitted by the detector: either
// a BuySet (buy all outcomes, collect 100 at resolution) or a
// SellSet (sell all outcomes, pay out 100 at resolution).
type Opportunity struct {
	EventTicker    string
	Tickers        []string
	Classification Classification
	Side           Side
	Qty            int64
	// PerContractCost is the per-contract cost paid for a BuySet, or
	// the per-contract revenue collected for a SellSet.
	PerContractCost int64
	NetProfitCents   int64 // total, after fees, at Qty
	GrossEdgeCents   int64 // informational only per spec open question — not used in veto/sizing
}

// Detect evaluates one ArbGroup and returns an Opportunity if either
// the buy-set or the sell-set direction clears (min_profit + buffer) *
// qty net of fees. A single-market group (len(members)==1) prices the
// YES+NO complementary-pair buy only; PartialSet groups never produce
// opportunities, even with EV-discounting enabled.
func Detect(members []GroupMember, quotes []quotebook.Quote, fees FeeModel, qty int64, minProfitCents, bufferCents int64) (Opportunity, bool) {
	class := Classify(members)
	if class == PartialSet {
		return Opportunity{}, false
	}

	payout := int64(100)
	if class == TiePossible || class == VoidPossible {
		payout = EVDiscountedPayout(PVoidTable[class])
	}

	threshold := (minProfitCents + bufferCents) * qty

	tickers := make([]string, len(members))
	for i, m := range members {
		tickers[i] = m.Ticker
	}
	grossEdge := int64(100) - sumYesAsk(quotes)

	if len(members) == 1 {
		perContractCost := fees.SingleMarketBuySetCost(quotes[0], 1)
		netProfit := payout*qty - perContractCost*qty
		if netProfit < threshold {
			return Opportunity{}, false
		}
		return Opportunity{
			Tickers:         tickers,
			Classification:  class,
			Side:            BuySet,
			Qty:             qty,
			PerContractCost: perContractCost,
			NetProfitCents:  netProfit,
			GrossEdgeCents:  grossEdge,
		}, true
	}

	perContractCost := fees.PerContractBuyCost(quotes)
	buyNetProfit := payout*qty - fees.NetBuySetCost(quotes, qty)
	if buyNetProfit >= threshold {
		return Opportunity{
			Tickers:         tickers,
			Classification:  class,
			Side:            BuySet,
			Qty:             qty,
			PerContractCost: perContractCost,
			NetProfitCents:  buyNetProfit,
			GrossEdgeCents:  grossEdge,
		}, true
	}

	perContractRevenue, ok := fees.PerContractSellRevenue(quotes)
	if ok {
		netRevenue, ok := fees.NetSellSetRevenue(quotes, qty)
		if ok {
			sellNetProfit := netRevenue - payout*qty
			if sellNetProfit >= threshold {
				return Opportunity{
					Tickers:         tickers,
					Classification:  class,
					Side:            SellSet,
					Qty:             qty,
					PerContractCost: perContractRevenue,
					NetProfitCents:  sellNetProfit,
					GrossEdgeCents:  grossEdge,
				}, true
			}
		}
	}

	return Opportunity{}, false
}

func sumYesAsk(quotes []quotebook.Quote) int64 {
	var sum int64
	for _, q := range quotes {
		sum += q.YesAsk
	}
	return sum
}
