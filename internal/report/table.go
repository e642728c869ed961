package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const maxColumnWidth = 30

// RenderTable prints the comparison table.
func RenderTable(out io.Writer, rows []Row) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("PRICE COMPARISON")
	t.AppendHeader(table.Row{"Brand", "Model", "Price", "Supplier", "Country"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: maxColumnWidth},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, WidthMax: maxColumnWidth},
	})

	for _, r := range rows {
		t.AppendRow(table.Row{r.Brand, r.Model, r.Price, r.Supplier, r.Country})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}

// RenderSummary prints the totals and the best deal per model.
func RenderSummary(out io.Writer, summary Summary, deals []Row) {
	fmt.Fprintf(out, "\nTotal results: %d\n", summary.TotalResults)
	fmt.Fprintf(out, "Unique brands: %d\n", summary.UniqueBrands)
	fmt.Fprintf(out, "Unique models: %d\n", summary.UniqueModels)
	fmt.Fprintf(out, "Suppliers checked: %d\n", summary.UniqueSuppliers)
	if summary.Degraded > 0 {
		fmt.Fprintf(out, "Degraded results: %d\n", summary.Degraded)
	}

	if len(deals) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("BEST DEALS BY MODEL")
	t.AppendHeader(table.Row{"Brand", "Model", "Price", "Supplier", "Country"})
	for _, d := range deals {
		t.AppendRow(table.Row{d.Brand, d.Model, d.Price, d.Supplier, d.Country})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
