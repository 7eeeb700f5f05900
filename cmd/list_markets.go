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
var listMarketsCmd = &cobra.Command{
	Use:   "list-markets",
	Short: "List open markets from the Kalshi markets API",
	Long:  `Fetches and displays open markets from the Kalshi markets API for debugging purposes.`,
	RunE:  runListMarkets,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(listMarketsCmd)
	listMarketsCmd.Flags().IntP("limit", "l", 20, "Maximum number of markets to display")
	listMarketsCmd.Flags().StringP("series", "e", "", "Restrict to one series ticker prefix (e.g. KXHIGHNY)")
	listMarketsCmd.Flags().BoolP("verbose", "v", false, "Show detailed market information")
}

func runListMarkets(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
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

	limit, _ := cmd.Flags().GetInt("limit")
	series, _ := cmd.Flags().GetString("series")
	verbose, _ := cmd.Flags().GetBool("verbose")

	auth, err := kalshiauth.New(cfg.KalshiAPIKey, cfg.KalshiSecretKey)
	if err != nil {
		return fmt.Errorf("setup exchange auth: %w", err)
	}
	client := kalshi.NewClient(cfg.KalshiAPIBaseURL, auth, logger)

	fmt.Printf("Fetching open markets from Kalshi (series=%q)...\n\n", series)

	markets, _, err := client.ListMarkets(ctx, series, "open", "")
	if err != nil {
		return fmt.Errorf("list markets: %w", err)
	}

	if len(markets) == 0 {
		fmt.Println("No open markets found.")
		return nil
	}
	if limit > 0 && len(markets) > limit {
		markets = markets[:limit]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TICKER\tEVENT\tYES BID/ASK\tCLOSE TIME\n")
	fmt.Fprintf(w, "------\t-----\t-----------\t----------\n")

	for i := range markets {
		m := &markets[i]
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\n", m.Ticker, m.EventTicker, m.YesBid, m.YesAsk, m.CloseTime)
		if verbose {
			fmt.Fprintf(w, "\tStatus: %s, Volume24h: %d, OpenInterest: %d\n", m.Status, m.Volume24h, m.OpenInterest)
			fmt.Fprintf(w, "\n")
		}
	}
	w.Flush()

	fmt.Printf("\nTotal shown: %d\n", len(markets))
	return nil
}
