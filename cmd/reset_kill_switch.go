package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kalshi-trading/core/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var resetKillSwitchCmd = &cobra.Command{
	Use:   "reset-kill-switch",
	Short: "Clear a running bot's risk kill switch",
	Long: `Calls the running bot process's admin HTTP endpoint to clear the
risk guard's kill switch latch. The kill switch is an in-process atomic
flag, so a separate CLI invocation can only reach it over HTTP, not by
sharing memory with the bot process.`,
	Args: cobra.NoArgs,
	RunE: runResetKillSwitch,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(resetKillSwitchCmd)
}

func runResetKillSwitch(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	url := fmt.Sprintf("http://localhost:%s/api/risk/reset-kill-switch", cfg.HTTPPort)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("call admin endpoint: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		KillSwitchEngaged bool `json:"kill_switch_engaged"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("admin endpoint returned status %d", resp.StatusCode)
	}

	fmt.Printf("kill switch reset; engaged=%v\n", body.KillSwitchEngaged)
	return nil
}
