package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/pricewatch/internal/clock"
	"github.com/maltedev/pricewatch/internal/matcher"
	"github.com/maltedev/pricewatch/internal/models"
	"github.com/maltedev/pricewatch/internal/parser"
)

// Reason explains why a candidate was not turned into a quote.
type Reason string

const (
	ReasonIrrelevant   Reason = "irrelevant"
	ReasonNoPrice      Reason = "no_price"
	ReasonNoConversion Reason = "no_conversion"
)

// Evaluation is the result of checking one candidate. Exactly one of Quote
// and Reason is set.
type Evaluation struct {
	Quote  *models.PriceQuote
	Reason Reason
}

func (e Evaluation) Accepted() bool { return e.Quote != nil }

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Fetcher    Fetcher
	Pacer      Pacer
	Normalizer Normalizer
	Engine     *parser.Engine
	Matcher    Matcher
	Queries    *QueryStrategy
	Clock      clock.Clock
	Logger     *slog.Logger
}

type Orchestrator struct {
	deps    Deps
	mode    matcher.Mode
	verbose bool
	logger  *slog.Logger
}

func New(deps Deps, opts Options) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Engine == nil {
		deps.Engine = parser.NewEngine(parser.EngineOptions{Logger: deps.Logger})
	}
	if deps.Matcher == nil {
		deps.Matcher = matcher.New(nil)
	}
	if deps.Queries == nil {
		deps.Queries = NewQueryStrategy("")
	}
	if opts.Mode == "" {
		opts.Mode = matcher.ModeLenient
	}

	return &Orchestrator{
		deps:    deps,
		mode:    opts.Mode,
		verbose: opts.Verbose,
		logger:  deps.Logger.With("component", "orchestrator"),
	}
}

// SearchSite resolves one (site, target) pair. The first query and strategy
// that yield an accepted candidate end the search; every accepted candidate of
// that container set is returned. Failures never escape: a pair that cannot
// be resolved returns no quotes.
func (o *Orchestrator) SearchSite(ctx context.Context, site models.SiteProfile, target models.SearchTarget) (quotes []models.PriceQuote) {
	if !site.Enabled {
		o.logger.Debug("skipping disabled site", "site", site.Key)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("recovered from panic while searching site",
				"site", site.Key,
				"target", target.Name,
				"panic", fmt.Sprint(r))
			quotes = nil
		}
	}()

	attempt := 0
	for query := range o.deps.Queries.Queries(target.Name) {
		if ctx.Err() != nil {
			return nil
		}
		attempt++

		searchURL := site.SearchURLFor(query.Text)
		o.logger.Info("searching site",
			"site", site.Name,
			"target", target.Name,
			"attempt", attempt,
			"url", searchURL)

		body, err := o.deps.Fetcher.Fetch(ctx, searchURL)
		if waitErr := o.deps.Pacer.Wait(ctx); waitErr != nil {
			return nil
		}
		if err != nil {
			o.logger.Warn("fetch failed, trying next query", "site", site.Key, "url", searchURL, "error", err)
			continue
		}

		if quotes := o.extract(ctx, site, target, query, searchURL, body); len(quotes) > 0 {
			return quotes
		}
	}

	o.logger.Info("no relevant products found", "site", site.Name, "target", target.Name)
	return nil
}

func (o *Orchestrator) extract(ctx context.Context, site models.SiteProfile, target models.SearchTarget, query Query, searchURL string, body []byte) []models.PriceQuote {
	doc, err := parser.Parse(body)
	if err != nil {
		o.logger.Warn("unparsable page", "site", site.Key, "url", searchURL, "error", err)
		return nil
	}

	if o.verbose {
		o.deps.Engine.Analyze(doc)
	}

	for _, strategy := range o.deps.Engine.Strategies(site.Selectors) {
		candidates := o.deps.Engine.Extract(doc, site.Selectors, strategy)
		if len(candidates) == 0 {
			continue
		}

		mode := o.modeFor(strategy, query)

		var quotes []models.PriceQuote
		for _, candidate := range candidates {
			eval := o.Evaluate(ctx, site, target, candidate, searchURL, mode)
			if !eval.Accepted() {
				o.logger.Debug("candidate rejected",
					"site", site.Key,
					"title", candidate.Title,
					"reason", eval.Reason)
				continue
			}
			o.logger.Info("accepted quote",
				"site", site.Key,
				"title", eval.Quote.Title,
				"amount", eval.Quote.CanonicalAmount,
				"currency", eval.Quote.CanonicalCurrency,
				"strategy", strategy.Name)
			quotes = append(quotes, *eval.Quote)
		}

		if len(quotes) > 0 {
			return quotes
		}
	}

	return nil
}

// modeFor resolves ModeAuto: strict while both the selectors and the query
// are specific to the site and product, lenient otherwise.
func (o *Orchestrator) modeFor(strategy parser.Strategy, query Query) matcher.Mode {
	if o.mode != matcher.ModeAuto {
		return o.mode
	}
	if strategy.Generic() || query.Reduced {
		return matcher.ModeLenient
	}
	return matcher.ModeStrict
}

// Evaluate turns a candidate into a quote or explains why it cannot be one.
func (o *Orchestrator) Evaluate(ctx context.Context, site models.SiteProfile, target models.SearchTarget, candidate models.Candidate, searchURL string, mode matcher.Mode) Evaluation {
	if !o.deps.Matcher.IsRelevant(candidate.Title, target.Name, mode) {
		return Evaluation{Reason: ReasonIrrelevant}
	}

	amount, ok := parser.ParsePrice(candidate.PriceText)
	if !ok || amount <= 0 {
		return Evaluation{Reason: ReasonNoPrice}
	}

	conv, ok := o.deps.Normalizer.ToCanonical(ctx, amount, site.Currency)
	if !ok {
		return Evaluation{Reason: ReasonNoConversion}
	}

	status := models.QuoteStatusSuccess
	if conv.Degraded || conv.Assumed {
		status = models.QuoteStatusDegraded
	}

	return Evaluation{Quote: &models.PriceQuote{
		ID:                uuid.New(),
		Model:             target.Name,
		Supplier:          site.Name,
		SiteKey:           site.Key,
		Title:             candidate.Title,
		OriginalAmount:    amount,
		OriginalCurrency:  site.Currency,
		CanonicalAmount:   conv.Amount,
		CanonicalCurrency: conv.Currency,
		SourceURL:         site.ResolveLink(candidate.Link, searchURL),
		SearchURL:         searchURL,
		ScrapedAt:         o.deps.Clock.Now(),
		Status:            status,
	}}
}

// RunSummary describes a completed run.
type RunSummary struct {
	RunID      uuid.UUID     `json:"run_id"`
	Targets    int           `json:"targets"`
	Sites      int           `json:"sites"`
	Pairs      int           `json:"pairs"`
	Quotes     int           `json:"quotes"`
	Degraded   int           `json:"degraded"`
	EmitErrors int           `json:"emit_errors"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
}

// Run searches every enabled site for every target, one pair at a time, and
// emits each quote to sink. A sink error is logged and does not stop the run.
func (o *Orchestrator) Run(ctx context.Context, sites []models.SiteProfile, targets []models.SearchTarget, sink QuoteSink) (RunSummary, error) {
	summary := RunSummary{
		RunID:     uuid.New(),
		Targets:   len(targets),
		StartedAt: o.deps.Clock.Now(),
	}

	if len(targets) == 0 {
		return summary, ErrNoTargets
	}

	var enabled []models.SiteProfile
	for _, site := range sites {
		if site.Enabled {
			enabled = append(enabled, site)
		}
	}
	summary.Sites = len(enabled)

	total := len(enabled) * len(targets)
	o.logger.Info("starting price run",
		"run_id", summary.RunID,
		"targets", len(targets),
		"sites", len(enabled))

	for _, target := range targets {
		for _, site := range enabled {
			if err := ctx.Err(); err != nil {
				return o.finish(summary), err
			}

			summary.Pairs++
			o.logger.Info("progress",
				"step", fmt.Sprintf("%d/%d", summary.Pairs, total),
				"target", target.Name,
				"site", site.Name)

			for _, quote := range o.SearchSite(ctx, site, target) {
				quote.RunID = summary.RunID
				if err := sink.Emit(ctx, quote); err != nil {
					summary.EmitErrors++
					o.logger.Error("failed to emit quote", "site", site.Key, "error", err)
					continue
				}
				summary.Quotes++
				if quote.IsDegraded() {
					summary.Degraded++
				}
			}
		}
	}

	summary = o.finish(summary)
	o.logger.Info("price run completed",
		"run_id", summary.RunID,
		"quotes", summary.Quotes,
		"degraded", summary.Degraded,
		"duration", summary.Duration)

	return summary, nil
}

func (o *Orchestrator) finish(summary RunSummary) RunSummary {
	summary.FinishedAt = o.deps.Clock.Now()
	summary.Duration = summary.FinishedAt.Sub(summary.StartedAt)
	return summary
}
