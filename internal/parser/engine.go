package parser

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/maltedev/pricewatch/internal/models"
)

const (
	StrategyConfigured    = "configured"
	StrategyFirstSelector = "first-selector"
	StrategyGenericClass  = "generic-class"
	StrategySimpleClass   = "simple-class"
)

const (
	genericClassSelector = `div[class*="product"], div[class*="item"], div[class*="result"], div[class*="card"]`
	simpleClassSelector  = `.product, .item, .result, .card`
	titleFallbackRunes   = 100
)

var productClassHints = []string{"product", "item", "result", "card"}

// Strategy is one container selector tried by the cascade.
type Strategy struct {
	Name     string
	Selector string
}

// Generic reports whether the strategy ignores the site's own selectors.
func (s Strategy) Generic() bool {
	return s.Name == StrategyGenericClass || s.Name == StrategySimpleClass
}

type EngineOptions struct {
	MaxCandidates int
	// MinFallbackPrice is the floor for prices recovered from container text.
	MinFallbackPrice float64
	Logger           *slog.Logger
}

// Engine applies the selector cascade to a parsed search results page.
type Engine struct {
	maxCandidates int
	minPrice      float64
	logger        *slog.Logger
}

func NewEngine(opts EngineOptions) *Engine {
	if opts.MaxCandidates < 1 {
		opts.MaxCandidates = 3
	}
	if opts.MinFallbackPrice <= 0 {
		opts.MinFallbackPrice = 10
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		maxCandidates: opts.MaxCandidates,
		minPrice:      opts.MinFallbackPrice,
		logger:        opts.Logger.With("component", "parser"),
	}
}

// Strategies returns the container strategies for set in the order they are
// tried. A strategy whose selector repeats an earlier one is left out.
func (e *Engine) Strategies(set models.SelectorSet) []Strategy {
	var all []Strategy
	if len(set.Container) > 0 {
		all = append(all,
			Strategy{Name: StrategyConfigured, Selector: strings.Join(set.Container, ", ")},
			Strategy{Name: StrategyFirstSelector, Selector: set.Container[0]},
		)
	}
	all = append(all,
		Strategy{Name: StrategyGenericClass, Selector: genericClassSelector},
		Strategy{Name: StrategySimpleClass, Selector: simpleClassSelector},
	)

	seen := make(map[string]bool, len(all))
	out := all[:0]
	for _, s := range all {
		key := strings.TrimSpace(s.Selector)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// Extract runs a single strategy and converts up to MaxCandidates matched
// containers into candidates.
func (e *Engine) Extract(doc *goquery.Document, set models.SelectorSet, strategy Strategy) []models.Candidate {
	sel, ok := e.compile(strategy.Selector)
	if !ok {
		return nil
	}

	containers := doc.FindMatcher(sel)
	e.logger.Debug("container selector evaluated",
		"strategy", strategy.Name,
		"selector", strategy.Selector,
		"matches", containers.Length())

	var candidates []models.Candidate
	containers.EachWithBreak(func(i int, container *goquery.Selection) bool {
		if i >= e.maxCandidates {
			return false
		}
		candidates = append(candidates, e.candidate(container, set))
		return true
	})

	return candidates
}

// ExtractCandidates stops at the first strategy that matches any container.
func (e *Engine) ExtractCandidates(doc *goquery.Document, set models.SelectorSet) (Strategy, []models.Candidate) {
	for _, strategy := range e.Strategies(set) {
		if candidates := e.Extract(doc, set, strategy); len(candidates) > 0 {
			return strategy, candidates
		}
	}
	return Strategy{}, nil
}

func (e *Engine) candidate(container *goquery.Selection, set models.SelectorSet) models.Candidate {
	var c models.Candidate

	for _, s := range set.Title {
		if text := e.firstText(container, s); text != "" {
			c.Title = text
			break
		}
	}
	if c.Title == "" {
		c.Title = Truncate(CleanText(container.Text()), titleFallbackRunes)
		c.TitleFallback = true
	}

	for _, s := range set.Price {
		text := e.firstText(container, s)
		if value, ok := ParsePrice(text); ok && value > 0 {
			c.PriceText = text
			break
		}
	}
	if c.PriceText == "" {
		if match, _, ok := FindPriceInText(container.Text(), e.minPrice); ok {
			c.PriceText = match
			c.PriceFallback = true
		}
	}

	if sel, ok := e.compile(set.LinkSelector()); ok {
		if href, exists := container.FindMatcher(sel).First().Attr("href"); exists {
			c.Link = strings.TrimSpace(href)
		}
	}

	return c
}

func (e *Engine) firstText(container *goquery.Selection, selector string) string {
	sel, ok := e.compile(selector)
	if !ok {
		return ""
	}
	return CleanText(container.FindMatcher(sel).First().Text())
}

func (e *Engine) compile(selector string) (cascadia.Selector, bool) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		e.logger.Debug("skipping invalid selector", "selector", selector, "error", err)
		return nil, false
	}
	return sel, true
}

// PageAnalysis summarizes what a results page looks like. It is only
// computed in verbose mode.
type PageAnalysis struct {
	ProductLikeElements int
	Samples             []string
	PricePatterns       []string
}

func (e *Engine) Analyze(doc *goquery.Document) PageAnalysis {
	var analysis PageAnalysis

	doc.Find("div[class], article[class], li[class]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= 10 {
			return false
		}
		class := strings.ToLower(s.AttrOr("class", ""))
		for _, hint := range productClassHints {
			if strings.Contains(class, hint) {
				analysis.ProductLikeElements++
				analysis.Samples = append(analysis.Samples, Truncate(CleanText(s.Text()), titleFallbackRunes))
				break
			}
		}
		return true
	})

	analysis.PricePatterns = pricePatterns(doc.Text(), 5)

	e.logger.Debug("page analysis",
		"product_like_elements", analysis.ProductLikeElements,
		"price_patterns", analysis.PricePatterns)

	return analysis
}
