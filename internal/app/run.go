package app

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run starts every long-running task and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("bot-variant", a.cfg.BotVariant),
		zap.String("execution-mode", a.cfg.ExecutionMode),
		zap.String("log-level", a.cfg.LogLevel))

	a.startComponents()
	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready", zap.String("http-addr", ":"+a.cfg.HTTPPort))

	return a.waitForShutdown()
}

func (a *App) startComponents() {
	a.wg.Add(1)
	go a.runHTTPServer()

	a.wg.Add(1)
	go a.runDiscoveryService()

	a.wg.Add(1)
	go a.runStream()

	a.wg.Add(1)
	go a.runTrackedTickerSync()

	switch a.cfg.BotVariant {
	case "weather":
		a.wg.Add(1)
		go a.runWeatherForecastRefresh()
	case "llm_rules":
		a.wg.Add(1)
		go a.runResearchRefresh()
	}

	a.wg.Add(1)
	go a.runStrategyTicks()

	a.wg.Add(1)
	go a.runHeartbeat()

	a.wg.Add(1)
	go a.runBalanceMonitor()
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runDiscoveryService() {
	defer a.wg.Done()
	if err := a.discovery.Run(a.ctx); err != nil && !errors.Is(err, a.ctx.Err()) {
		a.logger.Error("discovery-service-error", zap.Error(err))
	}
}

func (a *App) runStream() {
	defer a.wg.Done()
	if err := a.stream.Start(a.ctx); err != nil && !errors.Is(err, a.ctx.Err()) {
		a.logger.Error("stream-error", zap.Error(err))
	}
}

// runTrackedTickerSync keeps the streaming subscription in step with
// discovery's tracked set: every new ticker discovery surfaces widens
// the websocket subscription.
func (a *App) runTrackedTickerSync() {
	defer a.wg.Done()
	newTickers := a.discovery.NewTickersChan()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-newTickers:
			if err := a.stream.SetTracked(a.discovery.TrackedTickers()); err != nil {
				a.logger.Warn("stream-subscription-sync-failed", zap.Error(err))
			}
		}
	}
}

// runStrategyTicks drains the configured bot variant's evaluation path
// on every ScanIntervalSecs tick.
func (a *App) runStrategyTicks() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.Timing.ScanIntervalSecs)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.runStrategyTick()
		}
	}
}

func (a *App) runStrategyTick() {
	a.cycleCount++
	a.journal.StrategyCycleStart(a.cycleCount)

	switch a.cfg.BotVariant {
	case "weather":
		for _, t := range a.discovery.TrackedTickers() {
			tracked, ok := a.discovery.Get(t)
			if !ok {
				continue
			}
			a.evaluateWeatherTicker(tracked)
		}
	case "llm_rules":
		for _, t := range a.discovery.TrackedTickers() {
			tracked, ok := a.discovery.Get(t)
			if !ok {
				continue
			}
			a.evaluateLLMRulesTicker(tracked)
		}
	case "arbitrage":
		for eventTicker, tickers := range a.discovery.EventGroups() {
			a.evaluateArbGroup(eventTicker, tickers)
		}
	}
}

func (a *App) runHeartbeat() {
	defer a.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.journal.Heartbeat(len(a.discovery.TrackedTickers()), 0, a.cycleCount)
		}
	}
}

func (a *App) runBalanceMonitor() {
	defer a.wg.Done()
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			balance, err := a.client.GetBalance(a.ctx)
			if err != nil {
				a.logger.Warn("balance-check-failed", zap.Error(err))
				continue
			}
			a.guard.ObserveBalance(balance)
		}
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
