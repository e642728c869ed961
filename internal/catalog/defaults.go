package catalog

import "github.com/maltedev/pricewatch/internal/models"

const (
	PresetCatalog = "catalog"
	PresetFull    = "full"
	PresetFocused = "focused"
)

// FullTargets are the printer models searched by the full preset.
var FullTargets = []string{
	"Fargo DTC1250e",
	"Evolis Primacy 2",
	"Zebra ZC300",
	"Magicard 600",
	"Entrust Sigma DS2",
	"Zebra ZC100",
	"Evolis Badgy200",
	"Magicard Pronto 100",
}

// FocusedTargets trade model precision for broader search terms.
var FocusedTargets = []string{
	"card printer",
	"ID card printer",
	"Fargo DTC1250e",
	"Zebra ZC300",
}

func DefaultSites() []models.SiteProfile {
	return []models.SiteProfile{
		{
			Key:       "amazon.com.au",
			Name:      "Amazon Australia",
			BaseURL:   "https://www.amazon.com.au",
			SearchURL: "https://www.amazon.com.au/s?k={query}",
			Currency:  "AUD",
			Selectors: models.SelectorSet{
				Container: []string{"[data-component-type='s-search-result']"},
				Title:     []string{"h2 a span", "h2 span"},
				Price:     []string{".a-price .a-offscreen", ".a-price-whole"},
				Link:      "h2 a",
			},
			Enabled: true,
		},
		{
			Key:       "ebay.com.au",
			Name:      "eBay Australia",
			BaseURL:   "https://www.ebay.com.au",
			SearchURL: "https://www.ebay.com.au/sch/i.html?_nkw={query}",
			Currency:  "AUD",
			Selectors: models.SelectorSet{
				Container: []string{"li.s-item", ".s-item"},
				Title:     []string{".s-item__title"},
				Price:     []string{".s-item__price"},
				Link:      "a.s-item__link",
			},
			Enabled: true,
		},
		{
			Key:       "idwholesaler.com",
			Name:      "ID Wholesaler",
			BaseURL:   "https://www.idwholesaler.com",
			SearchURL: "https://www.idwholesaler.com/search.php?search_query={query}",
			Currency:  "USD",
			Selectors: models.SelectorSet{
				Container: []string{".product", ".card"},
				Title:     []string{".card-title", "h4 a"},
				Price:     []string{".price--withoutTax", ".price"},
				Link:      ".card-title a",
			},
			Enabled: true,
		},
	}
}

func targetsFrom(names []string) []models.SearchTarget {
	out := make([]models.SearchTarget, 0, len(names))
	for _, name := range names {
		out = append(out, models.SearchTarget{Name: name})
	}
	return out
}
