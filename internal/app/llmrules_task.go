package app

import (
	"time"

	"go.uber.org/zap"

	"github.com/kalshi-trading/core/internal/decision"
	"github.com/kalshi-trading/core/internal/discovery"
	"github.com/kalshi-trading/core/internal/signal/llmrules"
)

// researchEntry caches one ticker's LLM rules-research response
// alongside its fetch time, mirroring weatherForecastEntry's role for
// the weather variant.
type researchEntry struct {
	response llmrules.Response
	fetchAt  time.Time
}

// runResearchRefresh refreshes the rules-research cache for every
// tracked ticker on a fixed cadence, independent of the strategy tick.
// Mirrors runWeatherForecastRefresh's role for the weather variant.
func (a *App) runResearchRefresh() {
	defer a.wg.Done()
	interval := a.cfg.Timing.ResearchStaleSecs / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.refreshAllResearch()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.refreshAllResearch()
		}
	}
}

func (a *App) refreshAllResearch() {
	for _, t := range a.discovery.TrackedTickers() {
		tracked, ok := a.discovery.Get(t)
		if !ok {
			continue
		}
		a.refreshResearch(tracked)
	}
}

func (a *App) researchFor(ticker string) (researchEntry, bool) {
	a.researchMu.RLock()
	defer a.researchMu.RUnlock()
	r, ok := a.research[ticker]
	return r, ok
}

// refreshResearch issues a rules-research request for one tracked
// ticker if the cache entry is absent or stale, caching the validated
// response for the strategy tick to consume. Grounded on the pattern
// of running signal acquisition on its own cadence, separate from the
// strategy tick (runWeatherForecastRefresh's role for the weather
// variant).
func (a *App) refreshResearch(tracked discovery.Tracked) {
	if existing, ok := a.researchFor(tracked.Ticker); ok {
		if time.Since(existing.fetchAt) < a.cfg.Timing.ResearchStaleSecs {
			return
		}
	}

	if cached, ok := a.cache.Get("research:" + tracked.Ticker); ok {
		if resp, ok := cached.(llmrules.Response); ok {
			a.researchMu.Lock()
			a.research[tracked.Ticker] = researchEntry{response: resp, fetchAt: time.Now()}
			a.researchMu.Unlock()
			return
		}
	}

	req := llmrules.Request{
		RequestID:      llmrules.NewRequestID(),
		MarketTicker:   tracked.Ticker,
		EventTicker:    tracked.EventTicker,
		RulesPrimary:   tracked.RulesPrimary,
		RulesSecondary: tracked.RulesSecondary,
		AsOfMs:         time.Now().UnixMilli(),
	}

	resp, err := a.llmClient.Research(a.ctx, req)
	if err != nil {
		a.logger.Warn("research-failed", zap.String("ticker", tracked.Ticker), zap.Error(err))
		return
	}
	if err := llmrules.Validate(req, resp); err != nil {
		a.logger.Warn("research-invalid", zap.String("ticker", tracked.Ticker), zap.Error(err))
		return
	}

	a.researchMu.Lock()
	a.research[tracked.Ticker] = researchEntry{response: resp, fetchAt: time.Now()}
	a.researchMu.Unlock()
	a.cache.Set("research:"+tracked.Ticker, resp, a.cfg.Timing.ResearchStaleSecs)
}

// evaluateLLMRulesTicker runs one market through the LLM-assisted
// rules-research pipeline: cached research plus the current quote
// produce a probability estimate, which then flows through the same
// veto ladder and execution path as the weather variant.
func (a *App) evaluateLLMRulesTicker(tracked discovery.Tracked) {
	research, ok := a.researchFor(tracked.Ticker)
	if !ok {
		return
	}

	quote, ok := a.book.Get(tracked.Ticker)
	if !ok {
		return
	}

	now := time.Now()
	baseP := float64(quote.YesBid+quote.YesAsk) / 200.0
	estimate := llmrules.ToProbabilityEstimate(research.response, baseP)

	input := decision.Input{
		Ticker:              tracked.Ticker,
		Quote:               quote,
		QuoteFresh:          quote.Fresh(now, a.cfg.Timing.PriceStaleSecs),
		Estimate:            estimate,
		EstimateFresh:       now.Sub(research.fetchAt) <= a.cfg.Timing.ResearchStaleSecs,
		Research:            &research.response,
		HoursUntilClose:     time.Until(tracked.CloseTime).Hours(),
		DaysUntilResolution: int64(time.Until(tracked.CloseTime).Hours() / 24),
	}

	a.runDecisionAndExecute(tracked.EventTicker, tracked.Ticker, input)
}
