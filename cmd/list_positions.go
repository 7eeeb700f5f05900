package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kalshi-trading/core/pkg/config"
	"github.com/kalshi-trading/core/pkg/kalshi"
	"github.com/kalshi-trading/core/pkg/kalshiauth"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var listPositionsCmd = &cobra.Command{
	Use:   "list-positions",
	Short: "List open market positions and account balance",
	Long:  `Fetches and displays every open market position for the authenticated Kalshi account, alongside the current account balance.`,
	Args:  cobra.NoArgs,
	RunE:  runListPositions,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(listPositionsCmd)
}

func runListPositions(_ *cobra.Command, _ []string) error {
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
	client := kalshi.NewClient(cfg.KalshiAPIBaseURL, auth, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	balance, err := client.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetch balance: %w", err)
	}

	positions, err := client.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("fetch positions: %w", err)
	}

	fmt.Printf("Account balance: $%.2f\n\n", float64(balance)/100)

	if len(positions) == 0 {
		fmt.Println("No open positions.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TICKER\tPOSITION\tEXPOSURE\n")
	fmt.Fprintf(w, "------\t--------\t--------\n")
	var totalExposure int64
	for _, p := range positions {
		fmt.Fprintf(w, "%s\t%d\t$%.2f\n", p.Ticker, p.Position, float64(p.MarketExposureCents)/100)
		totalExposure += p.MarketExposureCents
	}
	w.Flush()

	fmt.Printf("\nTotal positions: %d, total exposure: $%.2f\n", len(positions), float64(totalExposure)/100)
	return nil
}
