package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application in dependency order:
// stop accepting HTTP traffic, close the exchange stream, wait for
// every task goroutine to exit, then close the journal, the indexer
// and the cache.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")
	a.healthChecker.SetReady(false)
	a.journal.BotShutdown("signal")

	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	if err := a.stream.Close(); err != nil {
		a.logger.Error("stream-close-error", zap.Error(err))
	}

	a.wg.Wait()

	if err := a.journal.Close(); err != nil {
		a.logger.Error("journal-close-error", zap.Error(err))
	}
	if err := a.indexer.Close(); err != nil {
		a.logger.Error("indexer-close-error", zap.Error(err))
	}
	if a.cache != nil {
		a.cache.Close()
	}

	a.logger.Info("application-shutdown-complete")
	return nil
}
