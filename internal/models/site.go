package models

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
)

// QueryPlaceholder is substituted with the encoded search term in SearchURL.
const QueryPlaceholder = "{query}"

// SiteProfile describes one storefront. Profiles are read-only once loaded.
type SiteProfile struct {
	Key       string      `json:"key"`
	Name      string      `json:"name"`
	BaseURL   string      `json:"base_url"`
	SearchURL string      `json:"search_url"`
	Currency  string      `json:"currency"`
	Selectors SelectorSet `json:"selectors"`
	Enabled   bool        `json:"enabled"`
}

// SelectorSet holds the ordered selector lists used by the cascade engine.
type SelectorSet struct {
	Container []string `json:"container"`
	Title     []string `json:"title"`
	Price     []string `json:"price"`
	Link      string   `json:"link"`
}

type SearchTarget struct {
	Name string `json:"name"`
}

// Candidate is an ephemeral extraction result for a single container.
type Candidate struct {
	Title         string
	PriceText     string
	Link          string
	TitleFallback bool
	PriceFallback bool
}

// SearchURLFor returns the search URL with the query placeholder replaced.
func (s *SiteProfile) SearchURLFor(query string) string {
	return strings.Replace(s.SearchURL, QueryPlaceholder, query, 1)
}

// ResolveLink turns a possibly relative href into an absolute URL against BaseURL.
// An empty or unparsable href yields fallback.
func (s *SiteProfile) ResolveLink(href, fallback string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return fallback
	}

	ref, err := url.Parse(href)
	if err != nil {
		return fallback
	}

	base, err := url.Parse(s.BaseURL)
	if err != nil || s.BaseURL == "" {
		if ref.IsAbs() {
			return ref.String()
		}
		return fallback
	}

	return base.ResolveReference(ref).String()
}

// LinkSelector returns the configured link selector or "a".
func (s *SelectorSet) LinkSelector() string {
	if strings.TrimSpace(s.Link) == "" {
		return "a"
	}
	return s.Link
}

// Validate reports every problem with the profile. An empty result means the
// profile is usable.
func (s *SiteProfile) Validate() []string {
	var errors []string

	if s.Key == "" {
		errors = append(errors, "site key is required")
	}

	if s.Name == "" {
		errors = append(errors, "name is required")
	}

	if !strings.Contains(s.SearchURL, QueryPlaceholder) {
		errors = append(errors, fmt.Sprintf("search_url must contain %s", QueryPlaceholder))
	} else if _, err := url.Parse(s.SearchURLFor("x")); err != nil {
		errors = append(errors, fmt.Sprintf("invalid search_url: %v", err))
	}

	if len(strings.TrimSpace(s.Currency)) != 3 {
		errors = append(errors, fmt.Sprintf("invalid currency code %q", s.Currency))
	}

	if len(s.Selectors.Container) == 0 {
		errors = append(errors, "at least one container selector is required")
	}

	for _, group := range [][]string{s.Selectors.Container, s.Selectors.Title, s.Selectors.Price, {s.Selectors.LinkSelector()}} {
		for _, sel := range group {
			if _, err := cascadia.Compile(sel); err != nil {
				errors = append(errors, fmt.Sprintf("invalid selector %q: %v", sel, err))
			}
		}
	}

	return errors
}

// SplitSelectors splits a selector group such as "h2 a span, .title" into its
// individual selectors, in order. Text that cascadia cannot parse is split on
// commas so the caller can still report the broken part.
func SplitSelectors(group string) []string {
	group = strings.TrimSpace(group)
	if group == "" {
		return nil
	}

	if parsed, err := cascadia.ParseGroup(group); err == nil {
		out := make([]string, 0, len(parsed))
		for _, sel := range parsed {
			out = append(out, sel.String())
		}
		return out
	}

	var out []string
	for _, part := range strings.Split(group, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
