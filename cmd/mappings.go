package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/LAG-4/cafefinder/pkg/offers"
)

// mappingsCmd represents the mappings command
var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Manage manual venue-to-platform URL mappings",
}

var mappingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all manual mappings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		mappings, err := a.db.AllManualMappings(cmd.Context())
		if err != nil {
			return err
		}
		if len(mappings) == 0 {
			fmt.Println("No manual mappings in the database.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "PLACE\tPLATFORM\tURL\tCONFIDENCE\t")
		for _, m := range mappings {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t\n", m.PlaceSlug, m.Platform, m.URL, m.Confidence)
		}
		w.Flush()
		return nil
	},
}

var mappingsAddCmd = &cobra.Command{
	Use:   "add <place-slug> <platform> <url>",
	Short: "Add or replace one manual mapping",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		confidence, _ := cmd.Flags().GetFloat64("confidence")
		err = a.db.PutManualMapping(cmd.Context(), offers.PlacePlatformMapping{
			PlaceSlug:  args[0],
			Platform:   offers.ParsePlatform(args[1]),
			URL:        args[2],
			Confidence: confidence,
			Source:     offers.SourceManual,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Mapped %s -> %s on %s\n", args[0], args[2], args[1])
		return nil
	},
}

var mappingsRemoveCmd = &cobra.Command{
	Use:   "remove <place-slug> <platform>",
	Short: "Remove one manual mapping",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.db.DeleteManualMapping(cmd.Context(), args[0], offers.ParsePlatform(args[1])); err != nil {
			return err
		}
		fmt.Printf("Removed mapping for %s on %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mappingsCmd)
	mappingsCmd.AddCommand(mappingsListCmd)
	mappingsCmd.AddCommand(mappingsAddCmd)
	mappingsCmd.AddCommand(mappingsRemoveCmd)
	mappingsAddCmd.Flags().Float64("confidence", 1.0, "Mapping confidence between 0 and 1")
}
