package app

import (
	"strings"
	"time"

	"github.com/kalshi-trading/core/internal/execution"
	"github.com/kalshi-trading/core/internal/risk"
	"github.com/kalshi-trading/core/internal/signal/arbitrage"
	"github.com/kalshi-trading/core/pkg/quotebook"
)

// evaluateArbGroup runs one event's outcome-ticker group through the
// complete-set pricing pipeline. tickers is the event's full member
// list as discovery currently sees it.
func (a *App) evaluateArbGroup(eventTicker string, tickers []string) {
	if len(tickers) == 0 {
		return
	}

	members := make([]arbitrage.GroupMember, len(tickers))
	for i, t := range tickers {
		tracked, ok := a.discovery.Get(t)
		rules := ""
		if ok {
			rules = tracked.RulesPrimary + " " + tracked.RulesSecondary
		}
		members[i] = arbitrage.GroupMember{
			Ticker:            t,
			RulesText:         rules,
			MutuallyExclusive: true,
		}
	}

	class := arbitrage.Classify(members)
	if class == arbitrage.PartialSet {
		return
	}

	quotes, ok := a.book.SnapshotGroup(tickers)
	if !ok {
		return
	}
	if !quotebook.AllFresh(quotes, time.Now(), a.cfg.Timing.PriceStaleSecs) {
		return
	}

	fees := arbitrage.NewFeeModel(a.cfg.Quality.SlippageBufferCents)
	qty := int64(1) // complete-set arbitrage sizes conservatively: one contract per group per tick
	opp, found := arbitrage.Detect(members, quotes, fees, qty, a.cfg.Strategy.EdgeThresholdCents, a.cfg.Quality.SlippageBufferCents)
	if !found {
		return
	}

	legs, err := execution.LegsFromArbOpportunity(opp, quotes)
	if err != nil {
		a.journal.OrderFailed(eventTicker, err.Error())
		return
	}

	groupKey := "ARB-" + eventTicker
	trade := risk.Trade{
		Group:       groupKey,
		EventTicker: eventTicker,
		Ticker:      strings.Join(opp.Tickers, "+"),
		Qty:         opp.Qty,
		PriceCents:  opp.PerContractCost,
		LegCount:    len(legs),
		PayoutCents: 100,
	}
	if err := a.guard.CheckPreTrade(trade); err != nil {
		a.journal.RiskRejected(eventTicker, err.Error())
		return
	}

	a.journal.OpportunityFound(eventTicker, "arbitrage", opp.NetProfitCents)
	a.journal.ExecutionStart(eventTicker, len(legs))
	result := a.executor.Execute(a.ctx, legs, opp.NetProfitCents)
	a.journal.ExecutionResult(eventTicker, string(result.State), result.RealizedProfitCents)
	if a.indexer != nil {
		a.indexer.IndexExecutionResult(a.ctx, eventTicker, string(result.State), result.RealizedProfitCents, time.Now())
	}

	if result.State == execution.StateComplete || result.State == execution.StatePartialUnwound {
		a.guard.RecordExecution(trade)
	}
}
