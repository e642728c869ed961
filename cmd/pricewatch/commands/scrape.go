package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maltedev/pricewatch/internal/models"
	"github.com/maltedev/pricewatch/internal/report"
	"github.com/spf13/cobra"
)

var errNoResults = errors.New("no prices found")

var (
	scrapeTargets []string
	scrapeSites   []string
	scrapeOutput  string
	scrapeNoSave  bool
)

func init() {
	flags := scrapeCmd.Flags()
	flags.StringSliceVarP(&scrapeTargets, "target", "t", nil, "product to search for, repeatable (default: catalog targets)")
	flags.StringSliceVarP(&scrapeSites, "site", "s", nil, "site key to search, repeatable (default: all enabled sites)")
	flags.StringVarP(&scrapeOutput, "output", "o", "", "output directory (default from OUTPUT_DIR)")
	flags.BoolVar(&scrapeNoSave, "no-save", false, "print results without writing files")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--target <name>]... [--site <key>]...",
	Short: "Searches every site for every target and prints a price comparison.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		targets := a.Catalog.Targets
		if len(scrapeTargets) > 0 {
			targets = targets[:0:0]
			for _, name := range scrapeTargets {
				if name = strings.TrimSpace(name); name != "" {
					targets = append(targets, models.SearchTarget{Name: name})
				}
			}
		}

		sites := a.Catalog.Sites
		if len(scrapeSites) > 0 {
			sites = nil
			for _, key := range scrapeSites {
				site, ok := a.Catalog.Site(key)
				if !ok {
					return fmt.Errorf("unknown site %q", key)
				}
				sites = append(sites, site)
			}
		}

		run, err := a.Run(ctx, sites, targets)
		if err != nil {
			return err
		}

		rows := report.Rows(a.Collector.Quotes())
		if len(rows) == 0 {
			return errNoResults
		}

		now := time.Now()
		summary := report.Summarize(rows, now)

		report.RenderTable(cmd.OutOrStdout(), rows)
		report.RenderSummary(cmd.OutOrStdout(), summary, report.BestDeals(rows))

		if !scrapeNoSave {
			dir := a.Config.Output.Dir
			if scrapeOutput != "" {
				dir = scrapeOutput
			}
			w := report.NewWriter(report.WriterOptions{
				Dir:      dir,
				SaveCSV:  a.Config.Output.SaveCSV,
				SaveJSON: a.Config.Output.SaveJSON,
				Currency: a.Config.Exchange.CanonicalCurrency,
			})
			paths, err := w.Save(rows, summary, now)
			if err != nil {
				return fmt.Errorf("failed to save results: %w", err)
			}
			for _, p := range paths {
				fmt.Fprintf(cmd.ErrOrStderr(), "saved %s\n", p)
			}
		}

		if run.Degraded > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d results used a fallback rate or assumed currency\n", run.Degraded)
		}

		return nil
	},
}
