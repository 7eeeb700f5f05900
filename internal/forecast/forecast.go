// Package forecast supplies the weather bot variant's Forecast inputs
// by querying the two external ensemble members named in the domain
// stack (NOAA gridpoint forecasts, Google Weather hourly forecasts)
// and blending them. The exchange protocol, the LLM research
// provider, and these forecast providers are all external
// collaborators seen by the rest of the system only through the
// signal.ProbabilityEstimate / weather.Forecast contracts; this
// package is the thin adapter that turns their wire formats into
// weather.Forecast, grounded on the teacher's
// internal/discovery/client.go request-build-then-decode shape.
package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kalshi-trading/core/internal/signal/weather"
	"github.com/kalshi-trading/core/pkg/config"
)

// Source fetches one ensemble member's forecast for a city.
type Source interface {
	Fetch(ctx context.Context, city config.CityConfig) (weather.Forecast, error)
}

// NOAAClient queries the National Weather Service gridpoint hourly
// forecast endpoint. NOAA requires an identifying User-Agent on every
// request.
type NOAAClient struct {
	httpClient *http.Client
	userAgent  string
	logger     *zap.Logger
}

// NewNOAAClient builds a NOAAClient. userAgent should identify the
// bot and an operator contact, per NOAA's API usage policy.
func NewNOAAClient(userAgent string, logger *zap.Logger) *NOAAClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if userAgent == "" {
		userAgent = "kalshi-trading-bot (ops@kalshi-trading.example)"
	}
	return &NOAAClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		userAgent:  userAgent,
		logger:     logger,
	}
}

type noaaForecastResponse struct {
	Properties struct {
		Periods []struct {
			StartTime                string `json:"startTime"`
			Temperature               float64 `json:"temperature"`
			ProbabilityOfPrecipitation struct {
				Value *float64 `json:"value"`
			} `json:"probabilityOfPrecipitation"`
		} `json:"periods"`
	} `json:"properties"`
}

// Fetch retrieves the next 24 hourly periods for city's gridpoint and
// reduces them to a high/low/precip forecast.
func (c *NOAAClient) Fetch(ctx context.Context, city config.CityConfig) (weather.Forecast, error) {
	endpoint := fmt.Sprintf("https://api.weather.gov/gridpoints/%s/%d,%d/forecast/hourly", city.WFO, city.GridX, city.GridY)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return weather.Forecast{}, fmt.Errorf("build noaa request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return weather.Forecast{}, fmt.Errorf("noaa request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return weather.Forecast{}, fmt.Errorf("noaa request: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed noaaForecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return weather.Forecast{}, fmt.Errorf("decode noaa response: %w", err)
	}

	n := len(parsed.Properties.Periods)
	if n > 24 {
		n = 24
	}
	return reduceHourly(city, n, func(i int) (temp float64, precip float64, ok bool) {
		p := parsed.Properties.Periods[i]
		precipProb := 0.0
		if p.ProbabilityOfPrecipitation.Value != nil {
			precipProb = *p.ProbabilityOfPrecipitation.Value / 100.0
		}
		return p.Temperature, precipProb, true
	}), nil
}

// GoogleClient queries the Google Weather hourly forecast lookup
// endpoint.
type GoogleClient struct {
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGoogleClient builds a GoogleClient against the given API key.
func NewGoogleClient(apiKey string, logger *zap.Logger) *GoogleClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type googleHoursResponse struct {
	ForecastHours []struct {
		Temperature struct {
			Degrees float64 `json:"degrees"`
		} `json:"temperature"`
		Precipitation struct {
			Probability struct {
				Percent float64 `json:"percent"`
			} `json:"probability"`
		} `json:"precipitation"`
	} `json:"forecastHours"`
}

// Fetch retrieves the next 24 hourly entries for city's coordinates.
func (c *GoogleClient) Fetch(ctx context.Context, city config.CityConfig) (weather.Forecast, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("location.latitude", strconv.FormatFloat(city.Lat, 'f', 6, 64))
	q.Set("location.longitude", strconv.FormatFloat(city.Lon, 'f', 6, 64))
	q.Set("unitsSystem", "IMPERIAL")
	q.Set("hours", "24")
	q.Set("pageSize", "24")

	endpoint := "https://weather.googleapis.com/v1/forecast/hours:lookup?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return weather.Forecast{}, fmt.Errorf("build google weather request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return weather.Forecast{}, fmt.Errorf("google weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return weather.Forecast{}, fmt.Errorf("google weather request: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed googleHoursResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return weather.Forecast{}, fmt.Errorf("decode google weather response: %w", err)
	}

	return reduceHourly(city, len(parsed.ForecastHours), func(i int) (temp float64, precip float64, ok bool) {
		h := parsed.ForecastHours[i]
		return h.Temperature.Degrees, h.Precipitation.Probability.Percent / 100.0, true
	}), nil
}

// reduceHourly folds n hourly entries (read through get) into a single
// Forecast: max temperature as the day's high, min as the low, mean
// precipitation probability, and a fixed-floor std dev since neither
// provider reports per-period forecast uncertainty directly.
func reduceHourly(city config.CityConfig, n int, get func(i int) (temp, precip float64, ok bool)) weather.Forecast {
	if n == 0 {
		return weather.Forecast{City: city.Name, TempStdDevF: 2.0, FetchedAt: time.Now()}
	}

	high := -1000.0
	low := 1000.0
	precipSum := 0.0
	count := 0

	for i := 0; i < n; i++ {
		temp, precip, ok := get(i)
		if !ok {
			continue
		}
		if temp > high {
			high = temp
		}
		if temp < low {
			low = temp
		}
		precipSum += precip
		count++
	}

	if count == 0 {
		return weather.Forecast{City: city.Name, TempStdDevF: 2.0, FetchedAt: time.Now()}
	}

	return weather.Forecast{
		City:        city.Name,
		HighTempF:   high,
		LowTempF:    low,
		PrecipProb:  precipSum / float64(count),
		TempStdDevF: 2.0,
		FetchedAt:   time.Now(),
	}
}
