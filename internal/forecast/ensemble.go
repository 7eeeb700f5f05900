package forecast

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/kalshi-trading/core/internal/signal/weather"
	"github.com/kalshi-trading/core/pkg/config"
)

// Ensemble blends NOAA and Google forecasts per the configured source
// weights, degrading gracefully to whichever source is still
// reachable rather than failing the whole cycle.
type Ensemble struct {
	noaa    Source
	google  Source
	weights config.WeatherSourcesConfig
	logger  *zap.Logger
}

// NewEnsemble builds an Ensemble. Either source may be nil to disable
// it entirely (e.g. no Google API key configured).
func NewEnsemble(weights config.WeatherSourcesConfig, noaa, google Source, logger *zap.Logger) *Ensemble {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ensemble{noaa: noaa, google: google, weights: weights, logger: logger}
}

type weightedForecast struct {
	f      weather.Forecast
	weight float64
}

// Fetch blends the available sources' forecasts for city, weighted by
// WeatherSourcesConfig. A source error is logged and that source is
// dropped from the blend rather than failing the whole fetch; an
// error is only returned when every source fails.
func (e *Ensemble) Fetch(ctx context.Context, city config.CityConfig) (weather.Forecast, error) {
	var members []weightedForecast

	if e.noaa != nil {
		f, err := e.noaa.Fetch(ctx, city)
		if err != nil {
			e.logger.Warn("noaa-forecast-fetch-failed", zap.String("city", city.Name), zap.Error(err))
		} else {
			members = append(members, weightedForecast{f: f, weight: e.weights.NOAAWeight})
		}
	}

	if e.google != nil {
		f, err := e.google.Fetch(ctx, city)
		if err != nil {
			e.logger.Warn("google-forecast-fetch-failed", zap.String("city", city.Name), zap.Error(err))
		} else {
			members = append(members, weightedForecast{f: f, weight: e.weights.GoogleWeight})
		}
	}

	if len(members) == 0 {
		return weather.Forecast{}, fmt.Errorf("all forecast sources failed for city %s", city.Name)
	}

	totalWeight := 0.0
	for _, m := range members {
		totalWeight += m.weight
	}
	if totalWeight <= 0 {
		totalWeight = float64(len(members))
		for i := range members {
			members[i].weight = 1.0
		}
	}

	var high, low, precip, stdDev float64
	for _, m := range members {
		w := m.weight / totalWeight
		high += m.f.HighTempF * w
		low += m.f.LowTempF * w
		precip += m.f.PrecipProb * w
		stdDev = math.Max(stdDev, m.f.TempStdDevF)
	}

	// Disagreement between sources is itself a source of uncertainty:
	// widen the blended std dev by half the spread between members'
	// highs, so a forecast blend masking real disagreement doesn't
	// read as more confident than either source alone.
	if len(members) > 1 {
		spread := math.Abs(members[0].f.HighTempF - members[len(members)-1].f.HighTempF)
		stdDev += spread / 2.0
	}

	latest := members[0].f.FetchedAt
	for _, m := range members[1:] {
		if m.f.FetchedAt.After(latest) {
			latest = m.f.FetchedAt
		}
	}

	return weather.Forecast{
		City:        city.Name,
		HighTempF:   high,
		LowTempF:    low,
		PrecipProb:  precip,
		TempStdDevF: stdDev,
		FetchedAt:   latest,
	}, nil
}
