package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/maltedev/pricewatch/internal/matcher"
	"github.com/maltedev/pricewatch/internal/models"
	"github.com/maltedev/pricewatch/internal/parser"
	"github.com/spf13/cobra"
)

var (
	inspectSite   string
	inspectTarget string
)

func init() {
	flags := inspectCmd.Flags()
	flags.StringVarP(&inspectSite, "site", "s", "", "site key whose selectors are applied (required)")
	flags.StringVarP(&inspectTarget, "target", "t", "", "product name to check relevance against")
	_ = inspectCmd.MarkFlagRequired("site")
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <page.html>",
	Short: "Runs the selector cascade for a site against a saved search page.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		site, ok := a.Catalog.Site(inspectSite)
		if !ok {
			return fmt.Errorf("unknown site: %s", inspectSite)
		}

		return inspectPage(cmd.OutOrStdout(), a.Engine, a.Matcher, site, inspectTarget, body)
	},
}

func inspectPage(out io.Writer, engine *parser.Engine, m *matcher.Matcher, site models.SiteProfile, target string, body []byte) error {
	doc, err := parser.Parse(body)
	if err != nil {
		return err
	}

	analysis := engine.Analyze(doc)
	fmt.Fprintf(out, "Product-like elements: %d\n", analysis.ProductLikeElements)
	if len(analysis.PricePatterns) > 0 {
		fmt.Fprintf(out, "Price patterns: %s\n", strings.Join(analysis.PricePatterns, " | "))
	}

	strategy, candidates := engine.ExtractCandidates(doc, site.Selectors)
	if len(candidates) == 0 {
		fmt.Fprintf(out, "No strategy matched a container for %s\n", site.Key)
		return nil
	}
	fmt.Fprintf(out, "Strategy %s matched %q\n", strategy.Name, strategy.Selector)

	t := table.NewWriter()
	t.SetOutputMirror(out)
	header := table.Row{"Title", "Price", "Link"}
	if target != "" {
		header = append(header, "Strict", "Lenient")
	}
	t.AppendHeader(header)
	for _, c := range candidates {
		price := c.PriceText
		if c.PriceFallback {
			price += " (text)"
		}
		row := table.Row{parser.Truncate(c.Title, 60), price, site.ResolveLink(c.Link, "")}
		if target != "" {
			row = append(row,
				m.IsRelevant(c.Title, target, matcher.ModeStrict),
				m.IsRelevant(c.Title, target, matcher.ModeLenient))
		}
		t.AppendRow(row)
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
	return nil
}
