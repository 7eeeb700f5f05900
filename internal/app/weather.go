package app

import (
	"time"

	"go.uber.org/zap"

	"github.com/kalshi-trading/core/internal/decision"
	"github.com/kalshi-trading/core/internal/discovery"
	"github.com/kalshi-trading/core/internal/execution"
	"github.com/kalshi-trading/core/internal/risk"
	"github.com/kalshi-trading/core/internal/signal/weather"
	"github.com/kalshi-trading/core/pkg/config"
)

// weatherForecastEntry caches one city's blended forecast alongside
// the time it was fetched, so the strategy tick can judge staleness
// without re-fetching on every cycle.
type weatherForecastEntry struct {
	forecast weather.Forecast
	fetchAt  time.Time
}

// runWeatherForecastRefresh refreshes every configured city's blended
// forecast on TimingConfig.ForecastIntervalSecs, independent of the
// strategy tick cadence (forecasts change far slower than quotes).
func (a *App) runWeatherForecastRefresh() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.Timing.ForecastIntervalSecs)
	defer ticker.Stop()

	a.refreshForecasts()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.refreshForecasts()
		}
	}
}

func (a *App) refreshForecasts() {
	for _, city := range a.cfg.Cities {
		f, err := a.forecastFeed.Fetch(a.ctx, city)
		if err != nil {
			a.logger.Warn("forecast-refresh-failed", zap.String("city", city.Name), zap.Error(err))
			continue
		}
		a.forecastsMu.Lock()
		a.forecasts[city.Name] = weatherForecastEntry{forecast: f, fetchAt: time.Now()}
		a.forecastsMu.Unlock()
		a.journal.ForecastCycle(city.SeriesPrefix, 0)
	}
}

func (a *App) forecastFor(cityName string) (weatherForecastEntry, bool) {
	a.forecastsMu.RLock()
	defer a.forecastsMu.RUnlock()
	f, ok := a.forecasts[cityName]
	return f, ok
}

// evaluateWeatherTicker runs one weather-market ticker through the
// forecast -> probability -> decision -> risk -> execution pipeline.
func (a *App) evaluateWeatherTicker(tracked discovery.Tracked) {
	city, ok := config.CityForTicker(a.cfg.Cities, tracked.Ticker)
	if !ok {
		return
	}
	fc, ok := a.forecastFor(city.Name)
	if !ok {
		return
	}

	quote, ok := a.book.Get(tracked.Ticker)
	if !ok {
		return
	}

	now := time.Now()
	strike := weather.Strike{
		Type:        strikeTypeFromString(tracked.StrikeType),
		FloorStrike: tracked.FloorStrike,
		CapStrike:   tracked.CapStrike,
	}
	estimate := weather.ComputeProbability(fc.forecast, strike, now.UnixMilli())

	input := decision.Input{
		Ticker:              tracked.Ticker,
		Quote:               quote,
		QuoteFresh:          quote.Fresh(now, a.cfg.Timing.PriceStaleSecs),
		Estimate:            estimate,
		EstimateFresh:       now.Sub(fc.fetchAt) <= a.cfg.Timing.ForecastStaleSecs,
		HoursUntilClose:     time.Until(tracked.CloseTime).Hours(),
		DaysUntilResolution: int64(time.Until(tracked.CloseTime).Hours() / 24),
	}

	a.runDecisionAndExecute(tracked.EventTicker, tracked.Ticker, input)
}

func strikeTypeFromString(s string) weather.StrikeType {
	switch s {
	case "greater":
		return weather.StrikeGreater
	case "less":
		return weather.StrikeLess
	default:
		return weather.StrikeBetween
	}
}

// runDecisionAndExecute is shared by every bot variant's single-ticker
// evaluation path: run the veto ladder, then risk, then execution.
func (a *App) runDecisionAndExecute(eventTicker, ticker string, input decision.Input) {
	intent, err := decision.Evaluate(input, a.cfg.Strategy, a.cfg.Quality, decisionFees())
	if err != nil {
		a.journal.DecisionVeto(ticker, err.Error())
		return
	}

	group := ticker
	if prefix, ok := config.CityForTicker(a.cfg.Cities, ticker); ok {
		group = prefix.SeriesPrefix
	}

	trade := risk.Trade{
		Group:       group,
		EventTicker: eventTicker,
		Ticker:      ticker,
		Qty:         intent.Qty,
		PriceCents:  intent.PriceCents,
		LegCount:    1,
		PayoutCents: 100,
	}
	if err := a.guard.CheckPreTrade(trade); err != nil {
		a.journal.RiskRejected(ticker, err.Error())
		return
	}

	a.journal.OpportunityFound(ticker, "directional", intent.NetEdgeCents)
	legs := execution.LegsFromIntent(intent)
	a.journal.ExecutionStart(ticker, len(legs))

	result := a.executor.Execute(a.ctx, legs, intent.NetEdgeCents)
	a.journal.ExecutionResult(ticker, string(result.State), result.RealizedProfitCents)
	if a.indexer != nil {
		a.indexer.IndexExecutionResult(a.ctx, ticker, string(result.State), result.RealizedProfitCents, time.Now())
	}

	if result.State == execution.StateComplete || result.State == execution.StatePartialUnwound {
		a.guard.RecordExecution(trade)
	}
}

func decisionFees() decision.FeeSchedule {
	return decision.DefaultFeeSchedule()
}
