package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/LAG-4/cafefinder/internal/utils"
	"github.com/LAG-4/cafefinder/pkg/scraping"
)

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run a batch scrape over tracked venues",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("dbpath")
		lock, err := utils.NewDBLock(dbPath)
		if err != nil {
			return err
		}
		if err := lock.Lock(); err != nil {
			return err
		}
		defer lock.Unlock()

		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		modeStr, _ := cmd.Flags().GetString("mode")
		strategyStr, _ := cmd.Flags().GetString("strategy")
		limit, _ := cmd.Flags().GetInt("limit")
		continuous, _ := cmd.Flags().GetBool("continuous")
		intervalMin, _ := cmd.Flags().GetInt("interval")

		mode := scraping.Mode(modeStr)
		if mode != scraping.ModeAll {
			mode = scraping.ModeDue
		}
		strategy := scraping.Strategy(strategyStr)
		if strategy != scraping.StrategyConservative {
			strategy = scraping.StrategySmart
		}

		if continuous {
			return a.orch.RunContinuous(cmd.Context(), time.Duration(intervalMin)*time.Minute, strategy, limit)
		}

		summary, err := a.orch.Run(cmd.Context(), mode, strategy, limit)
		if err != nil {
			return err
		}
		fmt.Printf("Scrape complete: %d succeeded, %d failed, %d total (%s)\n",
			summary.Success, summary.Failed, summary.Total, summary.Strategy)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	scrapeCmd.Flags().String("mode", "due", "Which venues to scrape: due, all")
	scrapeCmd.Flags().String("strategy", "smart", "Pacing strategy: smart, conservative")
	scrapeCmd.Flags().Int("limit", 50, "Max venues per run (0 = no limit in all mode)")
	scrapeCmd.Flags().Bool("continuous", false, "Keep scraping due venues on an interval")
	scrapeCmd.Flags().Int("interval", 60, "Minutes between continuous runs")
}
