package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/LAG-4/cafefinder/pkg/offers"
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <place-slug>",
	Short: "Fetch aggregated offers for one venue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		slug := args[0]
		refresh, _ := cmd.Flags().GetBool("refresh")
		asJSON, _ := cmd.Flags().GetBool("json")
		name, _ := cmd.Flags().GetString("name")
		area, _ := cmd.Flags().GetString("area")
		address, _ := cmd.Flags().GetString("address")

		var identity *offers.PlaceIdentity
		if name != "" {
			identity = &offers.PlaceIdentity{Name: name, Area: area, Address: address}
		}

		resp := a.svc.GetOffers(cmd.Context(), slug, identity, refresh)

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}

		if len(resp.Offers) == 0 {
			fmt.Printf("No offers found for %s\n", slug)
		} else {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "PLATFORM\tTITLE\tDISCOUNT\tVALIDITY\t")
			for _, o := range resp.Offers {
				discount := "-"
				if o.DiscountPct > 0 {
					discount = fmt.Sprintf("%.0f%%", o.DiscountPct)
				}
				validity := o.ValidityText
				if validity == "" {
					validity = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", o.Platform, o.Title, discount, validity)
			}
			w.Flush()
		}

		for _, pe := range resp.ProviderErrors {
			fmt.Fprintf(os.Stderr, "warning: %s: %s\n", pe.Platform, pe.Reason)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().Bool("refresh", false, "Bypass the cache and re-fetch from the platforms")
	getCmd.Flags().Bool("json", false, "Print the full response as JSON")
	getCmd.Flags().String("name", "", "Venue name, improves platform matching")
	getCmd.Flags().String("area", "", "Venue area or neighbourhood")
	getCmd.Flags().String("address", "", "Venue street address")
}
