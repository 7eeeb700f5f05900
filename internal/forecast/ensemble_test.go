package forecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalshi-trading/core/internal/signal/weather"
	"github.com/kalshi-trading/core/pkg/config"
)

type fakeSource struct {
	f   weather.Forecast
	err error
}

func (s fakeSource) Fetch(ctx context.Context, city config.CityConfig) (weather.Forecast, error) {
	return s.f, s.err
}

func TestEnsemble_BlendsBothSources(t *testing.T) {
	noaa := fakeSource{f: weather.Forecast{HighTempF: 80, LowTempF: 60, PrecipProb: 0.1, TempStdDevF: 2.0, FetchedAt: time.Now()}}
	google := fakeSource{f: weather.Forecast{HighTempF: 82, LowTempF: 62, PrecipProb: 0.2, TempStdDevF: 2.5, FetchedAt: time.Now()}}

	ens := NewEnsemble(config.WeatherSourcesConfig{NOAAWeight: 0.5, GoogleWeight: 0.5}, noaa, google, nil)
	f, err := ens.Fetch(context.Background(), config.CityConfig{Name: "Test City"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.HighTempF != 81 {
		t.Errorf("expected blended high 81, got %v", f.HighTempF)
	}
	if f.LowTempF != 61 {
		t.Errorf("expected blended low 61, got %v", f.LowTempF)
	}
}

func TestEnsemble_DegradesToOneSource(t *testing.T) {
	noaa := fakeSource{err: errors.New("timeout")}
	google := fakeSource{f: weather.Forecast{HighTempF: 75, LowTempF: 55, PrecipProb: 0.0, TempStdDevF: 2.0, FetchedAt: time.Now()}}

	ens := NewEnsemble(config.WeatherSourcesConfig{NOAAWeight: 0.5, GoogleWeight: 0.5}, noaa, google, nil)
	f, err := ens.Fetch(context.Background(), config.CityConfig{Name: "Test City"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.HighTempF != 75 {
		t.Errorf("expected the surviving source's forecast to win unblended, got %v", f.HighTempF)
	}
}

func TestEnsemble_AllSourcesFail(t *testing.T) {
	noaa := fakeSource{err: errors.New("timeout")}
	google := fakeSource{err: errors.New("rate limited")}

	ens := NewEnsemble(config.WeatherSourcesConfig{NOAAWeight: 0.5, GoogleWeight: 0.5}, noaa, google, nil)
	if _, err := ens.Fetch(context.Background(), config.CityConfig{Name: "Test City"}); err == nil {
		t.Fatal("expected error when every source fails")
	}
}
