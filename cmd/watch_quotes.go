package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kalshi-trading/core/pkg/config"
	"github.com/kalshi-trading/core/pkg/kalshi"
	"github.com/kalshi-trading/core/pkg/kalshiauth"
	"github.com/kalshi-trading/core/pkg/quotebook"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var watchQuotesCmd = &cobra.Command{
	Use:   "watch-quotes <ticker>",
	Short: "Watch live quote updates for a single market ticker",
	Long: `Connects to the Kalshi exchange websocket and prints quote updates
for a single market ticker as they arrive. Useful for debugging and
understanding market dynamics.

Example:
  kalshi-bot watch-quotes KXHIGHNY-24JUL01-B70`,
	Args: cobra.ExactArgs(1),
	RunE: runWatchQuotes,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(watchQuotesCmd)
}

func runWatchQuotes(_ *cobra.Command, args []string) error {
	ticker := args[0]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	auth, err := kalshiauth.New(cfg.KalshiAPIKey, cfg.KalshiSecretKey)
	if err != nil {
		return fmt.Errorf("setup exchange auth: %w", err)
	}

	book := quotebook.New()
	stream := kalshi.NewStream(kalshi.StreamConfig{
		URL:                   cfg.KalshiWSURL,
		DialTimeout:           10 * time.Second,
		PingInterval:          20 * time.Second,
		ReconnectInitialDelay: 1 * time.Second,
		ReconnectMaxDelay:     60 * time.Second,
		ReconnectBackoffMult:  2.0,
	}, auth, book, logger)

	if err := stream.Start(ctx); err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	defer stream.Close()

	if err := stream.SetTracked([]string{ticker}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	fmt.Printf("Watching %s. Press Ctrl+C to stop.\n\n", ticker)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	poll := time.NewTicker(500 * time.Millisecond)
	defer poll.Stop()

	var last quotebook.Quote
	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			return nil
		case <-poll.C:
			quote, ok := book.Get(ticker)
			if !ok || quote == last {
				continue
			}
			last = quote
			fmt.Printf("[%s] yes_bid=%d yes_ask=%d last=%d vol24h=%d\n",
				quote.UpdatedAt.Format("15:04:05"), quote.YesBid, quote.YesAsk, quote.LastPrice, quote.Volume24h)
		}
	}
}
