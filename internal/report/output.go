package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var csvHeader = []string{"brand", "manufacturer", "model", "price", "supplier", "link", "country", "scraped_date", "original_price"}

type document struct {
	ScrapeTimestamp time.Time `json:"scrape_timestamp"`
	TotalResults    int       `json:"total_results"`
	Currency        string    `json:"currency"`
	Data            []Row     `json:"data"`
}

type WriterOptions struct {
	Dir      string
	SaveCSV  bool
	SaveJSON bool
	Currency string
}

// Writer persists report rows as timestamped files plus "latest" copies.
type Writer struct {
	opts WriterOptions
}

func NewWriter(opts WriterOptions) *Writer {
	if opts.Currency == "" {
		opts.Currency = "AUD"
	}
	return &Writer{opts: opts}
}

// Save writes rows and the summary and returns the paths written.
func (w *Writer) Save(rows []Row, summary Summary, at time.Time) ([]string, error) {
	if err := os.MkdirAll(w.opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	stamp := at.Format("20060102_150405")
	var written []string

	if w.opts.SaveCSV {
		for _, name := range []string{"prices_" + stamp + ".csv", "latest_prices.csv"} {
			path := filepath.Join(w.opts.Dir, name)
			if err := writeCSV(path, rows); err != nil {
				return written, err
			}
			written = append(written, path)
		}
	}

	if w.opts.SaveJSON {
		doc := document{ScrapeTimestamp: at, TotalResults: len(rows), Currency: w.opts.Currency, Data: rows}
		for _, name := range []string{"prices_" + stamp + ".json", "latest_prices.json"} {
			path := filepath.Join(w.opts.Dir, name)
			if err := writeJSON(path, doc); err != nil {
				return written, err
			}
			written = append(written, path)
		}
	}

	path := filepath.Join(w.opts.Dir, "latest_summary.json")
	if err := writeJSON(path, summary); err != nil {
		return written, err
	}
	written = append(written, path)

	return written, nil
}

func writeCSV(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{r.Brand, r.Manufacturer, r.Model, r.Price, r.Supplier, r.Link, r.Country, r.ScrapedDate, r.OriginalPrice}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
