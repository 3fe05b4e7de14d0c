package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LAG-4/cafefinder/internal/utils"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init <venues.csv>",
	Short: "Seed tracked venues and manual mappings from a CSV export",
	Long: `Seed tracked venues and manual mappings from a CSV export.

The CSV needs a header row; the Name, Zomato, and Location columns are used.
Rows with a Zomato URL also get a high-confidence manual mapping.`,
	Args: cobra.ExactArgs(1),
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

		n, err := a.orch.InitializeFromCSV(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Initialized %d venues\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
