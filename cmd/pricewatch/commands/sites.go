package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/maltedev/pricewatch/internal/models"
	"github.com/maltedev/pricewatch/internal/scraper"
	"github.com/spf13/cobra"
)

var showQueries bool

func init() {
	sitesCmd.Flags().BoolVar(&showQueries, "queries", false, "list the search queries tried for each target")
	rootCmd.AddCommand(sitesCmd)
}

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "Lists the configured sites and search targets.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()

		t := table.NewWriter()
		t.SetOutputMirror(out)
		t.SetTitle("SITES (" + a.Catalog.Source + ")")
		t.AppendHeader(table.Row{"Key", "Name", "Currency", "Enabled", "Search URL"})
		for _, s := range a.Catalog.Sites {
			t.AppendRow(table.Row{s.Key, s.Name, s.Currency, s.Enabled, s.SearchURL})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()

		fmt.Fprintf(out, "\nRelevance keywords: %s\n", strings.Join(a.Matcher.Keywords(), ", "))
		writeTargets(out, a.Catalog.Targets, a.Queries, showQueries)
		return nil
	},
}

// writeTargets lists targets, optionally followed by the encoded queries in
// the order they are tried.
func writeTargets(out io.Writer, targets []models.SearchTarget, queries *scraper.QueryStrategy, withQueries bool) {
	fmt.Fprintf(out, "\nTargets (%d):\n", len(targets))
	for _, target := range targets {
		fmt.Fprintf(out, "  - %s\n", target.Name)
		if !withQueries {
			continue
		}
		for q := range queries.Variations(target.Name) {
			fmt.Fprintf(out, "      %s\n", q)
		}
	}
}
