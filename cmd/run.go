package cmd

import (
	"fmt"

	"github.com/kalshi-trading/core/internal/app"
	"github.com/kalshi-trading/core/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the trading bot",
	Long: `Starts the configured bot variant (BOT_VARIANT env: weather,
arbitrage, or llm_rules), which will:
1. Discover eligible markets from the Kalshi markets API
2. Stream their quotes over the exchange websocket
3. Evaluate each bot variant's signal on every strategy tick
4. Run approved trades through the risk guard and executor

--single-ticker is stored in the app options, but discovery and the
strategy tick do not read it: every eligible market is still tracked.`,
	RunE: runBot,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("single-ticker", "s", "", "Market ticker stored in the app options (not applied to discovery or trading)")
}

func runBot(cmd *cobra.Command, _ []string) error {
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

	singleTicker, _ := cmd.Flags().GetString("single-ticker")

	opts := &app.Options{
		SingleTicker: singleTicker,
	}

	application, err := app.New(cfg, logger, opts)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	if err := application.Run(); err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
