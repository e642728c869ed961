package report

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/maltedev/pricewatch/internal/models"
)

// brandKeywords is checked in order; the first keyword found in the model
// name decides the brand.
var brandKeywords = []struct {
	keyword string
	brand   string
}{
	{"fargo", "HID Fargo"},
	{"dtc", "HID Fargo"},
	{"evolis", "Evolis"},
	{"zebra", "Zebra"},
	{"zc", "Zebra"},
	{"magicard", "Magicard"},
	{"entrust", "Entrust"},
	{"sigma", "Entrust"},
	{"badgy", "Evolis"},
	{"primacy", "Evolis"},
	{"pronto", "Magicard"},
}

// Row is one line of the comparison output.
type Row struct {
	Brand         string  `json:"brand"`
	Manufacturer  string  `json:"manufacturer"`
	Model         string  `json:"model"`
	Price         string  `json:"price"`
	Supplier      string  `json:"supplier"`
	Link          string  `json:"link"`
	Country       string  `json:"country"`
	ScrapedDate   string  `json:"scraped_date"`
	OriginalPrice string  `json:"original_price,omitempty"`
	Status        string  `json:"status"`
	Amount        float64 `json:"-"`
}

func BrandFor(model string) string {
	lower := strings.ToLower(model)
	for _, bk := range brandKeywords {
		if strings.Contains(lower, bk.keyword) {
			return bk.brand
		}
	}

	fields := strings.Fields(model)
	if len(fields) == 0 {
		return ""
	}
	return titleWord(fields[0])
}

func CountryFor(siteKey string) string {
	lower := strings.ToLower(siteKey)
	if strings.Contains(lower, ".au") || strings.Contains(lower, "australia") {
		return "Australia"
	}
	return "United States"
}

func titleWord(w string) string {
	runes := []rune(strings.ToLower(w))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// Rows formats quotes and sorts them by brand, model and price.
func Rows(quotes []models.PriceQuote) []Row {
	rows := make([]Row, 0, len(quotes))
	for _, q := range quotes {
		brand := BrandFor(q.Model)
		row := Row{
			Brand:        brand,
			Manufacturer: brand,
			Model:        q.Model,
			Price:        fmt.Sprintf("$%.2f %s", q.CanonicalAmount, q.CanonicalCurrency),
			Supplier:     q.Supplier,
			Link:         q.SourceURL,
			Country:      CountryFor(q.SiteKey),
			ScrapedDate:  q.ScrapedAt.Format(time.DateOnly),
			Status:       string(q.Status),
			Amount:       q.CanonicalAmount,
		}
		if q.OriginalAmount > 0 {
			row.OriginalPrice = fmt.Sprintf("$%.2f %s", q.OriginalAmount, q.OriginalCurrency)
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Brand != rows[j].Brand {
			return rows[i].Brand < rows[j].Brand
		}
		if rows[i].Model != rows[j].Model {
			return rows[i].Model < rows[j].Model
		}
		return rows[i].Amount < rows[j].Amount
	})

	return rows
}

type PriceStats struct {
	Min float64 `json:"min_price"`
	Max float64 `json:"max_price"`
	Avg float64 `json:"avg_price"`
}

type Summary struct {
	ScrapeTime      time.Time  `json:"scrape_time"`
	TotalResults    int        `json:"total_results"`
	UniqueBrands    int        `json:"unique_brands"`
	UniqueModels    int        `json:"unique_models"`
	UniqueSuppliers int        `json:"unique_suppliers"`
	Degraded        int        `json:"degraded_results"`
	PriceStats      PriceStats `json:"price_stats"`
}

func Summarize(rows []Row, at time.Time) Summary {
	s := Summary{ScrapeTime: at, TotalResults: len(rows)}
	if len(rows) == 0 {
		return s
	}

	brands := map[string]bool{}
	modelSet := map[string]bool{}
	suppliers := map[string]bool{}
	var total float64

	s.PriceStats.Min = rows[0].Amount
	s.PriceStats.Max = rows[0].Amount
	for _, r := range rows {
		brands[r.Brand] = true
		modelSet[r.Model] = true
		suppliers[r.Supplier] = true
		if r.Status == string(models.QuoteStatusDegraded) {
			s.Degraded++
		}

		total += r.Amount
		s.PriceStats.Min = min(s.PriceStats.Min, r.Amount)
		s.PriceStats.Max = max(s.PriceStats.Max, r.Amount)
	}

	s.UniqueBrands = len(brands)
	s.UniqueModels = len(modelSet)
	s.UniqueSuppliers = len(suppliers)
	s.PriceStats.Avg = total / float64(len(rows))
	return s
}

// BestDeals returns the cheapest row per model, in model order of rows.
func BestDeals(rows []Row) []Row {
	best := map[string]int{}
	var order []string

	for i, r := range rows {
		j, seen := best[r.Model]
		if !seen {
			order = append(order, r.Model)
			best[r.Model] = i
			continue
		}
		if r.Amount < rows[j].Amount {
			best[r.Model] = i
		}
	}

	deals := make([]Row, 0, len(order))
	for _, model := range order {
		deals = append(deals, rows[best[model]])
	}
	return deals
}
