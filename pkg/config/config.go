package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kalshi-trading/core/pkg/boterrors"
)

// QualityMode controls the conservatism of the decision pipeline:
// spread caps, Kelly fraction, and source-veto strictness all derive
// from it.
type QualityMode string

const (
	QualityUltraSafe  QualityMode = "ultra_safe"
	QualityBalanced   QualityMode = "balanced"
	QualityAggressive QualityMode = "aggressive"
)

// KellyFraction returns the fractional-Kelly multiplier for this mode.
func (m QualityMode) KellyFraction() float64 {
	switch m {
	case QualityUltraSafe:
		return 0.20
	case QualityAggressive:
		return 0.75
	default:
		return 0.50
	}
}

// CityConfig locates a forecast gridpoint and its associated market
// series prefix for the weather bot variant.
type CityConfig struct {
	Name         string
	Lat          float64
	Lon          float64
	WFO          string
	GridX        int
	GridY        int
	SeriesPrefix string
}

func defaultCities() []CityConfig {
	return []CityConfig{
		{Name: "New York City", Lat: 40.7128, Lon: -74.0060, WFO: "OKX", GridX: 33, GridY: 37, SeriesPrefix: "KXHIGHNYC"},
		{Name: "Chicago", Lat: 41.8781, Lon: -87.6298, WFO: "LOT", GridX: 76, GridY: 73, SeriesPrefix: "KXHIGHCHI"},
		{Name: "Seattle", Lat: 47.6062, Lon: -122.3321, WFO: "SEW", GridX: 124, GridY: 67, SeriesPrefix: "KXHIGHSEA"},
		{Name: "Atlanta", Lat: 33.7490, Lon: -84.3880, WFO: "FFC", GridX: 50, GridY: 86, SeriesPrefix: "KXHIGHATL"},
		{Name: "Dallas", Lat: 32.7767, Lon: -96.7970, WFO: "FWD", GridX: 80, GridY: 108, SeriesPrefix: "KXHIGHDAL"},
	}
}

// CityForTicker extracts the configured city whose SeriesPrefix is the
// longest matching prefix of ticker, used by Risk Guard's per-city
// concentration check (§4.4 point 10).
func CityForTicker(cities []CityConfig, ticker string) (CityConfig, bool) {
	best := CityConfig{}
	found := false
	for _, c := range cities {
		if len(ticker) >= len(c.SeriesPrefix) && ticker[:len(c.SeriesPrefix)] == c.SeriesPrefix {
			if !found || len(c.SeriesPrefix) > len(best.SeriesPrefix) {
				best = c
				found = true
			}
		}
	}
	return best, found
}

// StrategyConfig holds decision-engine thresholds.
type StrategyConfig struct {
	EntryThresholdCents int64
	ExitThresholdCents  int64
	EdgeThresholdCents  int64
	SafetyMarginCents   int64
	MaxPositionCents    int64
	MaxTradesPerRun     int
	MaxSpreadCents      int64
	MinHoursBeforeClose float64
	MaxDaysToResolution int64
	MaxKellyContracts   int64
}

// RiskConfig holds Risk Guard thresholds.
type RiskConfig struct {
	MaxPositionCents          int64
	MaxTotalExposureCents     int64
	MaxCityExposureCents      int64
	MaxExposurePerEventCents  int64
	MaxDailyLossCents         int64
	MaxOrdersPerMinute        int
	MaxAttemptsPerGroupPerMin int
	MinBalanceCents           int64
	KillSwitchDisconnectCount int
}

// TimingConfig holds task cadences.
type TimingConfig struct {
	ScanIntervalSecs      time.Duration
	ForecastIntervalSecs  time.Duration
	DiscoveryIntervalSecs time.Duration
	PriceStaleSecs        time.Duration
	ForecastStaleSecs     time.Duration
	ResearchStaleSecs     time.Duration
}

// WeatherSourcesConfig weights the forecast ensemble.
type WeatherSourcesConfig struct {
	NOAAWeight   float64
	GoogleWeight float64
}

// QualityConfig holds the veto-ladder and sizing knobs that vary by
// QualityMode.
type QualityConfig struct {
	Mode                        QualityMode
	StrictSourceVeto            bool
	RequireBothSources          bool
	MaxSourceProbGap            float64
	MinSourceConfidence         float64
	MinEnsembleConfidence       float64
	MinConservativeNetEdgeCents int64
	MinConservativeEVCents      int64
	MinVolume24h                int64
	MinOpenInterest             int64
	SlippageBufferCents         int64
	MaxSpreadCentsUltra         int64
	MaxUncertainty              float64
	RulesRiskVetoLevel          string // "low", "medium", "high", "critical" — veto at or above this rank
}

// Config holds all application configuration, loaded from environment
// variables with documented defaults.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Bot variant
	BotVariant string // "weather", "arbitrage", "llm_rules"

	// Exchange API
	KalshiAPIKey     string
	KalshiSecretKey  string
	UseDemo          bool
	KalshiAPIBaseURL string
	KalshiWSURL      string

	TradesDir string

	AnthropicAPIKey     string
	GoogleWeatherAPIKey string
	SportsDataIOAPIKey  string
	TheOddsAPIKey       string

	Cities         []CityConfig
	SeriesPrefixes []string

	Strategy       StrategyConfig
	Risk           RiskConfig
	Timing         TimingConfig
	WeatherSources WeatherSourcesConfig
	Quality        QualityConfig

	// Execution
	ExecutionMode string // "paper", "live", "shadow"
	ShadowMode    bool
	LiveEnable    bool

	// Storage
	StorageMode string // "jsonl" or "jsonl+postgres"
	PostgresDSN string
}

// LoadFromEnv loads configuration from environment variables with
// defaults, following the get*OrDefault idiom used throughout this
// codebase.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		LogLevel:   getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort:   getEnvOrDefault("HTTP_PORT", "8080"),
		BotVariant: getEnvOrDefault("BOT_VARIANT", "weather"),

		KalshiAPIKey:     os.Getenv("KALSHI_API_KEY"),
		KalshiSecretKey:  os.Getenv("KALSHI_SECRET_KEY"),
		UseDemo:          getBoolOrDefault("USE_DEMO", true),
		KalshiAPIBaseURL: getEnvOrDefault("KALSHI_API_BASE_URL", "https://trading-api.kalshi.com/trade-api/v2"),
		KalshiWSURL:      getEnvOrDefault("KALSHI_WS_URL", "wss://trading-api.kalshi.com/trade-api/ws/v2"),

		TradesDir: os.Getenv("TRADES_DIR"),

		AnthropicAPIKey:     os.Getenv("ANTHROPIC_API_KEY"),
		GoogleWeatherAPIKey: os.Getenv("GOOGLE_WEATHER_API_KEY"),
		SportsDataIOAPIKey:  os.Getenv("SPORTS_DATA_IO_API_KEY"),
		TheOddsAPIKey:       os.Getenv("THE_ODDS_API_KEY"),

		Cities:         defaultCities(),
		SeriesPrefixes: []string{"KXHIGHNYC", "KXHIGHCHI", "KXHIGHSEA", "KXHIGHATL", "KXHIGHDAL"},

		Strategy: StrategyConfig{
			EntryThresholdCents: getInt64OrDefault("STRATEGY_ENTRY_THRESHOLD_CENTS", 15),
			ExitThresholdCents:  getInt64OrDefault("STRATEGY_EXIT_THRESHOLD_CENTS", 45),
			EdgeThresholdCents:  getInt64OrDefault("STRATEGY_EDGE_THRESHOLD_CENTS", 5),
			SafetyMarginCents:   getInt64OrDefault("STRATEGY_SAFETY_MARGIN_CENTS", 3),
			MaxPositionCents:    getInt64OrDefault("STRATEGY_MAX_POSITION_CENTS", 500),
			MaxTradesPerRun:     getIntOrDefault("STRATEGY_MAX_TRADES_PER_RUN", 5),
			MaxSpreadCents:      getInt64OrDefault("STRATEGY_MAX_SPREAD_CENTS", 10),
			MinHoursBeforeClose: getFloat64OrDefault("STRATEGY_MIN_HOURS_BEFORE_CLOSE", 2.0),
			MaxDaysToResolution: getInt64OrDefault("STRATEGY_MAX_DAYS_TO_RESOLUTION", 11),
			MaxKellyContracts:   getInt64OrDefault("STRATEGY_MAX_KELLY_CONTRACTS", 10),
		},

		Risk: RiskConfig{
			MaxPositionCents:          getInt64OrDefault("RISK_MAX_POSITION_CENTS", 500),
			MaxTotalExposureCents:     getInt64OrDefault("RISK_MAX_TOTAL_EXPOSURE_CENTS", 5000),
			MaxCityExposureCents:      getInt64OrDefault("RISK_MAX_CITY_EXPOSURE_CENTS", 1500),
			MaxExposurePerEventCents:  getInt64OrDefault("RISK_MAX_EXPOSURE_PER_EVENT_CENTS", 1500),
			MaxDailyLossCents:         getInt64OrDefault("RISK_MAX_DAILY_LOSS_CENTS", 2000),
			MaxOrdersPerMinute:        getIntOrDefault("RISK_MAX_ORDERS_PER_MINUTE", 10),
			MaxAttemptsPerGroupPerMin: getIntOrDefault("RISK_MAX_ATTEMPTS_PER_GROUP_PER_MIN", 5),
			MinBalanceCents:           getInt64OrDefault("RISK_MIN_BALANCE_CENTS", 100),
			KillSwitchDisconnectCount: getIntOrDefault("RISK_KILL_SWITCH_DISCONNECT_COUNT", 5),
		},

		Timing: TimingConfig{
			ScanIntervalSecs:      getDurationSecsOrDefault("TIMING_SCAN_INTERVAL_SECS", 120),
			ForecastIntervalSecs:  getDurationSecsOrDefault("TIMING_FORECAST_INTERVAL_SECS", 1800),
			DiscoveryIntervalSecs: getDurationSecsOrDefault("TIMING_DISCOVERY_INTERVAL_SECS", 1800),
			PriceStaleSecs:        getDurationSecsOrDefault("TIMING_PRICE_STALE_SECS", 300),
			ForecastStaleSecs:     getDurationSecsOrDefault("TIMING_FORECAST_STALE_SECS", 3600),
			ResearchStaleSecs:     getDurationSecsOrDefault("TIMING_RESEARCH_STALE_SECS", 21600),
		},

		WeatherSources: WeatherSourcesConfig{
			NOAAWeight:   getFloat64OrDefault("WEATHER_NOAA_WEIGHT", 0.5),
			GoogleWeight: getFloat64OrDefault("WEATHER_GOOGLE_WEIGHT", 0.5),
		},

		Quality: QualityConfig{
			Mode:                        QualityMode(getEnvOrDefault("QUALITY_MODE", string(QualityUltraSafe))),
			StrictSourceVeto:            getBoolOrDefault("QUALITY_STRICT_SOURCE_VETO", true),
			RequireBothSources:          getBoolOrDefault("QUALITY_REQUIRE_BOTH_SOURCES", true),
			MaxSourceProbGap:            getFloat64OrDefault("QUALITY_MAX_SOURCE_PROB_GAP", 0.08),
			MinSourceConfidence:         getFloat64OrDefault("QUALITY_MIN_SOURCE_CONFIDENCE", 0.65),
			MinEnsembleConfidence:       getFloat64OrDefault("QUALITY_MIN_ENSEMBLE_CONFIDENCE", 0.75),
			MinConservativeNetEdgeCents: getInt64OrDefault("QUALITY_MIN_CONSERVATIVE_NET_EDGE_CENTS", 8),
			MinConservativeEVCents:      getInt64OrDefault("QUALITY_MIN_CONSERVATIVE_EV_CENTS", 4),
			MinVolume24h:                getInt64OrDefault("QUALITY_MIN_VOLUME_24H", 50),
			MinOpenInterest:             getInt64OrDefault("QUALITY_MIN_OPEN_INTEREST", 25),
			SlippageBufferCents:         getInt64OrDefault("QUALITY_SLIPPAGE_BUFFER_CENTS", 1),
			MaxSpreadCentsUltra:         getInt64OrDefault("QUALITY_MAX_SPREAD_CENTS_ULTRA", 6),
			MaxUncertainty:              getFloat64OrDefault("QUALITY_MAX_UNCERTAINTY", 0.5),
			RulesRiskVetoLevel:          getEnvOrDefault("QUALITY_RULES_RISK_VETO_LEVEL", "high"),
		},

		ExecutionMode: getEnvOrDefault("EXECUTION_MODE", "paper"),
		ShadowMode:    getBoolOrDefault("SHADOW_MODE", true),
		LiveEnable:    getBoolOrDefault("LIVE_ENABLE", false),

		StorageMode: getEnvOrDefault("STORAGE_MODE", "jsonl"),
		PostgresDSN: os.Getenv("JOURNAL_INDEX_POSTGRES_DSN"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are internally consistent,
// following the teacher's pre-flight validator pattern.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return &boterrors.ConfigError{Field: "HTTP_PORT", Reason: "cannot be empty"}
	}

	switch c.BotVariant {
	case "weather", "arbitrage", "llm_rules":
	default:
		return &boterrors.ConfigError{Field: "BOT_VARIANT", Reason: fmt.Sprintf("must be weather, arbitrage or llm_rules, got %q", c.BotVariant)}
	}

	switch c.ExecutionMode {
	case "paper", "live", "shadow":
	default:
		return &boterrors.ConfigError{Field: "EXECUTION_MODE", Reason: fmt.Sprintf("must be paper, live or shadow, got %q", c.ExecutionMode)}
	}

	if c.Strategy.MaxPositionCents <= 0 {
		return &boterrors.ConfigError{Field: "STRATEGY_MAX_POSITION_CENTS", Reason: "must be positive"}
	}

	if c.Risk.MaxTotalExposureCents <= 0 {
		return &boterrors.ConfigError{Field: "RISK_MAX_TOTAL_EXPOSURE_CENTS", Reason: "must be positive"}
	}

	if c.Risk.MaxOrdersPerMinute <= 0 {
		return &boterrors.ConfigError{Field: "RISK_MAX_ORDERS_PER_MINUTE", Reason: "must be positive"}
	}

	if c.WeatherSources.NOAAWeight < 0 || c.WeatherSources.GoogleWeight < 0 {
		return &boterrors.ConfigError{Field: "WEATHER_*_WEIGHT", Reason: "weights must be non-negative"}
	}

	switch c.Quality.Mode {
	case QualityUltraSafe, QualityBalanced, QualityAggressive:
	default:
		return &boterrors.ConfigError{Field: "QUALITY_MODE", Reason: fmt.Sprintf("unknown mode %q", c.Quality.Mode)}
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getDurationSecsOrDefault(key string, defaultSecs int64) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(defaultSecs) * time.Second
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Duration(defaultSecs) * time.Second
	}
	return time.Duration(parsed) * time.Second
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}
