package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(rateCmd)
}

var rateCmd = &cobra.Command{
	Use:   "rate",
	Short: "Prints the exchange rate used for currency conversion.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		rate := a.Rates.Rate(cmd.Context())

		fmt.Fprintf(cmd.OutOrStdout(), "1 %s = %.4f %s (source: %s, fetched %s)\n",
			a.Config.Exchange.BaseCurrency,
			rate.Value,
			a.Config.Exchange.CanonicalCurrency,
			rate.Source,
			rate.FetchedAt.Format(time.RFC3339))
		if rate.Degraded {
			fmt.Fprintln(cmd.OutOrStdout(), "warning: no provider answered, using the fallback rate")
		}
		return nil
	},
}
