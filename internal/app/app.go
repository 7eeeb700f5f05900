// Package app wires every component into one running process: the
// Orchestrator (spec component C7). Grounded on the teacher's
// internal/app package — same App/Options/New/Run/Shutdown shape, same
// context-plus-WaitGroup task lifecycle — generalized from a single
// Polymarket arbitrage pipeline to the three bot variants (weather,
// arbitrage, llm_rules) this module supports, each dispatched off
// cfg.BotVariant rather than hardcoded.
package app

import (
	"context"
	"sync"

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
	"github.com/kalshi-trading/core/pkg/quotebook"
)

// App is the main application orchestrator: it owns every long-running
// task and drives them from one context/WaitGroup pair.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server

	client    *kalshi.Client
	book      *quotebook.Book
	discovery *discovery.Service
	stream    *kalshi.Stream

	guard    *risk.Guard
	executor *execution.Executor
	journal  *journal.Journal
	indexer  *journal.Indexer

	cache        cache.Cache
	forecastFeed *forecast.Ensemble
	llmClient    *llmrules.Client

	forecasts   map[string]weatherForecastEntry
	forecastsMu sync.RWMutex
	research    map[string]researchEntry
	researchMu  sync.RWMutex

	cycleCount int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options holds application-level overrides, primarily useful in tests
// and local debugging.
type Options struct {
	SingleTicker string // set by run --single-ticker; discovery and the strategy tick do not read it, so every eligible market is still tracked
}
