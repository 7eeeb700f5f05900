package execution

import (
	"github.com/kalshi-trading/core/internal/decision"
	"github.com/kalshi-trading/core/internal/signal/arbitrage"
	"github.com/kalshi-trading/core/pkg/boterrors"
	"github.com/kalshi-trading/core/pkg/quotebook"
)

// LegsFromIntent converts one approved Decision Engine Intent (always
// a single directional trade on a market's YES side) into the
// single-leg batch Execute expects. The slippage buffer is applied
// once, inside build, so the raw quoted price is passed through here.
func LegsFromIntent(intent *decision.Intent) []Leg {
	return []Leg{{
		Ticker:     intent.Ticker,
		Side:       "yes",
		Action:     intent.Action,
		LimitCents: intent.PriceCents,
		Qty:        intent.Qty,
	}}
}

// LegsFromArbOpportunity converts an arbitrage Opportunity into the
// leg batch Execute expects, priced off the same quote snapshot the
// detector scored the opportunity against. quotes must be in the same
// ticker order as opp.Tickers (quotebook.Book.SnapshotGroup preserves
// the order of its input slice).
//
// A single-market BuySet (len(opp.Tickers)==1) buys both YES and NO on
// the one ticker, per the complementary-pair arb. A multi-market
// BuySet buys YES on every outcome ticker; a SellSet sells YES on
// every outcome ticker.
func LegsFromArbOpportunity(opp arbitrage.Opportunity, quotes []quotebook.Quote) ([]Leg, error) {
	if len(quotes) != len(opp.Tickers) {
		return nil, &boterrors.MarketError{Ticker: opp.EventTicker, Reason: "quote snapshot size does not match opportunity ticker count"}
	}

	if len(opp.Tickers) == 1 && opp.Side == arbitrage.BuySet {
		ticker := opp.Tickers[0]
		q := quotes[0]
		return []Leg{
			{Ticker: ticker, Side: "yes", Action: "buy", LimitCents: q.YesAsk, Qty: opp.Qty},
			{Ticker: ticker, Side: "no", Action: "buy", LimitCents: q.NoAsk(), Qty: opp.Qty},
		}, nil
	}

	action := "buy"
	if opp.Side == arbitrage.SellSet {
		action = "sell"
	}

	legs := make([]Leg, len(opp.Tickers))
	for i, ticker := range opp.Tickers {
		limit := quotes[i].YesAsk
		if action == "sell" {
			limit = quotes[i].YesBid
		}
		legs[i] = Leg{
			Ticker:     ticker,
			Side:       "yes",
			Action:     action,
			LimitCents: limit,
			Qty:        opp.Qty,
		}
	}
	return legs, nil
}
