package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kalshi-trading/core/internal/discovery"
	"github.com/kalshi-trading/core/internal/execution"
	"github.com/kalshi-trading/core/internal/forecast"
	"github.com/kalshi-trading/core/internal/journal"
	"github.com/kalshi-trading/core/internal/risk"
	"github.com/kalshi-trading/core/internal/signal/llmrules"
	"github.com/kalshi-trading/core/pkg/cache"
	"github.com/kalshi-trading/core/pkg/config"
	"github.com/kalshi-trading/core/pkg/healthprobe"
	"github.com/kalshi-trading/core/pkg/httpserver"
	"github.com/kalshi-trading/core/pkg/kalshi"
	"github.com/kalshi-trading/core/pkg/kalshiauth"
	"github.com/kalshi-trading/core/pkg/quotebook"
)

// New creates a new application instance, wiring every component for
// the configured bot variant.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	healthChecker := healthprobe.New()

	auth, err := kalshiauth.New(cfg.KalshiAPIKey, cfg.KalshiSecretKey)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup exchange auth: %w", err)
	}
	client := kalshi.NewClient(cfg.KalshiAPIBaseURL, auth, logger)

	book := quotebook.New()

	metaCache, err := setupCache(logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	discoverySvc := setupDiscovery(cfg, client, book, logger)
	stream := setupStream(cfg, auth, book, logger)

	guard := risk.New(cfg.Risk, logger)

	j, err := journal.New(cfg.BotVariant, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup journal: %w", err)
	}
	indexer := setupIndexer(cfg, logger)

	var executor *execution.Executor
	if cfg.ExecutionMode != "" {
		execCfg := execution.DefaultConfig(execution.Mode(cfg.ExecutionMode), cfg.LiveEnable, cfg.Quality.SlippageBufferCents, logger)
		executor = execution.New(execCfg, client, guard)
	}

	forecastFeed := setupForecastEnsemble(cfg, logger)
	llmClient := setupLLMClient(cfg, logger)

	a := &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthChecker,
		client:        client,
		book:          book,
		discovery:     discoverySvc,
		stream:        stream,
		guard:         guard,
		executor:      executor,
		journal:       j,
		indexer:       indexer,
		cache:         metaCache,
		forecastFeed:  forecastFeed,
		llmClient:     llmClient,
		forecasts:     make(map[string]weatherForecastEntry),
		research:      make(map[string]researchEntry),
		ctx:           ctx,
		cancel:        cancel,
	}

	a.httpServer = httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Discovery:     discoverySvc,
		Guard:         guard,
	})

	return a, nil
}

func setupCache(logger *zap.Logger) (cache.Cache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 10000,
		MaxCost:     2000,
		BufferItems: 64,
		Logger:      logger,
	})
}

func setupDiscovery(cfg *config.Config, client *kalshi.Client, book *quotebook.Book, logger *zap.Logger) *discovery.Service {
	var seriesPrefixes []string
	if cfg.BotVariant == "weather" {
		seriesPrefixes = cfg.SeriesPrefixes
	}
	return discovery.New(discovery.Config{
		Client:              client,
		Book:                book,
		SeriesPrefixes:      seriesPrefixes,
		PollInterval:        cfg.Timing.DiscoveryIntervalSecs,
		MaxDaysToResolution: cfg.Strategy.MaxDaysToResolution,
		Logger:              logger,
	})
}

func setupStream(cfg *config.Config, auth *kalshiauth.Auth, book *quotebook.Book, logger *zap.Logger) *kalshi.Stream {
	return kalshi.NewStream(kalshi.StreamConfig{
		URL:                   cfg.KalshiWSURL,
		DialTimeout:           10 * time.Second,
		PingInterval:          20 * time.Second,
		ReconnectInitialDelay: 1 * time.Second,
		ReconnectMaxDelay:     60 * time.Second,
		ReconnectBackoffMult:  2.0,
	}, auth, book, logger)
}

func setupIndexer(cfg *config.Config, logger *zap.Logger) *journal.Indexer {
	if cfg.PostgresDSN == "" {
		return nil
	}
	db, err := journal.OpenIndexerDB(cfg.PostgresDSN)
	if err != nil {
		logger.Warn("journal-indexer-disabled", zap.Error(err))
		return nil
	}
	return journal.NewIndexer(db, logger)
}

func setupForecastEnsemble(cfg *config.Config, logger *zap.Logger) *forecast.Ensemble {
	if cfg.BotVariant != "weather" {
		return nil
	}
	noaa := forecast.NewNOAAClient("kalshi-trading-core/1.0", logger)
	var google forecast.Source
	if cfg.GoogleWeatherAPIKey != "" {
		google = forecast.NewGoogleClient(cfg.GoogleWeatherAPIKey, logger)
	}
	return forecast.NewEnsemble(cfg.WeatherSources, noaa, google, logger)
}

func setupLLMClient(cfg *config.Config, logger *zap.Logger) *llmrules.Client {
	if cfg.BotVariant != "llm_rules" || cfg.AnthropicAPIKey == "" {
		return nil
	}
	return llmrules.NewClient(llmrules.ClientConfig{APIKey: cfg.AnthropicAPIKey, Logger: logger})
}
