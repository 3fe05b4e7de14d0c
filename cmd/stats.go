package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints statistics about the venues and offers in the database.",
	Long:  "Prints statistics about the venues and offers in the database.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.db.GetStats(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Tracked venues:  %d\n", stats.TrackedVenues)
		fmt.Printf("Active offers:   %d\n", stats.ActiveOffers)
		fmt.Printf("Manual mappings: %d\n", stats.ManualMappings)

		if len(stats.ByPlatform) == 0 {
			return nil
		}

		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "PLATFORM\tOFFERS\tVENUES\t")

		var totalOffers int
		for _, s := range stats.ByPlatform {
			fmt.Fprintf(w, "%s\t%d\t%d\t\n", s.Platform, s.OfferCount, s.PlaceCount)
			totalOffers += s.OfferCount
		}

		fmt.Fprintln(w, " \t \t \t")
		fmt.Fprintf(w, "TOTAL\t%d\t\t\n", totalOffers)

		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
