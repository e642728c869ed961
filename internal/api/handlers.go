package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/pricewatch/internal/database"
	"github.com/maltedev/pricewatch/internal/exchange"
	"github.com/maltedev/pricewatch/internal/models"
)

const maxSearchBody = 64 * 1024

type Searcher interface {
	SearchSite(ctx context.Context, site models.SiteProfile, target models.SearchTarget) []models.PriceQuote
}

type RateSource interface {
	Rate(ctx context.Context) exchange.Rate
	// Degraded reports whether the last lookup fell back to the constant rate.
	Degraded() bool
}

type QuoteLister interface {
	List(ctx context.Context, f database.QuoteFilter) ([]models.PriceQuote, error)
}

type QuoteSink interface {
	Emit(ctx context.Context, quote models.PriceQuote) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps wires the handlers. Quotes, Sink and DB are optional.
type Deps struct {
	Sites    []models.SiteProfile
	Searcher Searcher
	Rates    RateSource
	Quotes   QuoteLister
	Sink     QuoteSink
	DB       Pinger
	Base     string
	Quote    string
	Logger   *slog.Logger
}

type Handlers struct {
	sites    []models.SiteProfile
	searcher Searcher
	rates    RateSource
	quotes   QuoteLister
	sink     QuoteSink
	db       Pinger
	base     string
	quote    string
	logger   *slog.Logger
}

func NewHandlers(deps Deps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Handlers{
		sites:    deps.Sites,
		searcher: deps.Searcher,
		rates:    deps.Rates,
		quotes:   deps.Quotes,
		sink:     deps.Sink,
		db:       deps.DB,
		base:     deps.Base,
		quote:    deps.Quote,
		logger:   deps.Logger.With("component", "api"),
	}
}

// Health reports service status. A configured database that does not answer
// turns the status into an error.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":   "ok",
		"database": "disabled",
		"exchange": "ok",
	}
	if h.rates.Degraded() {
		health["exchange"] = "fallback"
	}

	status := http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("database ping failed", "error", err)
			health["status"] = "error"
			health["database"] = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			health["database"] = "ok"
		}
	}

	h.respondJSON(w, status, health)
}

type SiteResponse struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	BaseURL   string `json:"base_url"`
	SearchURL string `json:"search_url"`
	Currency  string `json:"currency"`
	Enabled   bool   `json:"enabled"`
}

func (h *Handlers) ListSites(w http.ResponseWriter, r *http.Request) {
	sites := make([]SiteResponse, 0, len(h.sites))
	for _, s := range h.sites {
		sites = append(sites, SiteResponse{
			Key:       s.Key,
			Name:      s.Name,
			BaseURL:   s.BaseURL,
			SearchURL: s.SearchURL,
			Currency:  s.Currency,
			Enabled:   s.Enabled,
		})
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sites": sites,
		"total": len(sites),
	})
}

type ExchangeRateResponse struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
	exchange.Rate
}

func (h *Handlers) GetExchangeRate(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, ExchangeRateResponse{
		Base:  h.base,
		Quote: h.quote,
		Rate:  h.rates.Rate(r.Context()),
	})
}

type SearchRequest struct {
	Target string   `json:"target"`
	Sites  []string `json:"sites"`
}

type SearchResponse struct {
	RunID    uuid.UUID           `json:"run_id"`
	Target   string              `json:"target"`
	Quotes   []models.PriceQuote `json:"quotes"`
	Count    int                 `json:"count"`
	Degraded int                 `json:"degraded"`
}

// Search resolves one target against the requested sites, or every enabled
// site when none are named. Quotes are forwarded to the sink when one is set.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSearchBody)).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Target = strings.TrimSpace(req.Target)
	if req.Target == "" {
		h.respondError(w, http.StatusBadRequest, "target is required")
		return
	}

	sites, unknown := h.selectSites(req.Sites)
	if unknown != "" {
		h.respondError(w, http.StatusBadRequest, "unknown site: "+unknown)
		return
	}

	resp := SearchResponse{
		RunID:  uuid.New(),
		Target: req.Target,
		Quotes: []models.PriceQuote{},
	}

	target := models.SearchTarget{Name: req.Target}
	for _, site := range sites {
		for _, quote := range h.searcher.SearchSite(r.Context(), site, target) {
			quote.RunID = resp.RunID
			if h.sink != nil {
				if err := h.sink.Emit(r.Context(), quote); err != nil {
					h.logger.Error("failed to emit quote", "site", site.Key, "error", err)
				}
			}
			if quote.IsDegraded() {
				resp.Degraded++
			}
			resp.Quotes = append(resp.Quotes, quote)
		}
	}
	resp.Count = len(resp.Quotes)

	h.logger.Info("search completed",
		"target", req.Target,
		"sites", len(sites),
		"quotes", resp.Count)

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *Handlers) selectSites(keys []string) ([]models.SiteProfile, string) {
	if len(keys) == 0 {
		var enabled []models.SiteProfile
		for _, s := range h.sites {
			if s.Enabled {
				enabled = append(enabled, s)
			}
		}
		return enabled, ""
	}

	selected := make([]models.SiteProfile, 0, len(keys))
	for _, key := range keys {
		found := false
		for _, s := range h.sites {
			if s.Key == key {
				selected = append(selected, s)
				found = true
				break
			}
		}
		if !found {
			return nil, key
		}
	}
	return selected, ""
}

// ListQuotes returns stored quotes. Query parameters: model, website, run_id,
// since (RFC3339) and limit.
func (h *Handlers) ListQuotes(w http.ResponseWriter, r *http.Request) {
	if h.quotes == nil {
		h.respondError(w, http.StatusServiceUnavailable, "quote storage is not configured")
		return
	}

	q := r.URL.Query()
	filter := database.QuoteFilter{
		Model:   q.Get("model"),
		SiteKey: q.Get("website"),
	}

	if v := q.Get("run_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid run_id")
			return
		}
		filter.RunID = id
	}

	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid since, expected RFC3339")
			return
		}
		filter.Since = since
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			h.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	quotes, err := h.quotes.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list quotes", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list quotes")
		return
	}
	if quotes == nil {
		quotes = []models.PriceQuote{}
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"quotes": quotes,
		"total":  len(quotes),
	})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
