package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dario.cat/mergo"
	"github.com/maltedev/pricewatch/internal/models"
	"github.com/titanous/json5"
)

var ErrUnknownPreset = errors.New("unknown preset")

// Catalog is the resolved set of sites and targets for a run.
type Catalog struct {
	Sites         []models.SiteProfile
	Targets       []models.SearchTarget
	Keywords      []string
	CategoryQuery string
	// Source is the file the catalog came from, or "defaults".
	Source string
}

// Site returns the profile with the given key.
func (c *Catalog) Site(key string) (models.SiteProfile, bool) {
	for _, s := range c.Sites {
		if s.Key == key {
			return s, true
		}
	}
	return models.SiteProfile{}, false
}

type fileSchema struct {
	Websites          map[string]siteSchema `json:"websites"`
	TargetPrinters    []string              `json:"target_printers"`
	RelevanceKeywords []string              `json:"relevance_keywords"`
	CategoryQuery     string                `json:"category_query"`
}

type siteSchema struct {
	Name      string         `json:"name"`
	BaseURL   string         `json:"base_url"`
	SearchURL string         `json:"search_url"`
	Currency  string         `json:"currency"`
	Selectors selectorSchema `json:"selectors"`
	Enabled   *bool          `json:"enabled"`
}

// selectorSchema fields accept either a comma-separated selector group or a
// list of selectors.
type selectorSchema struct {
	ProductContainer any    `json:"product_container"`
	Container        any    `json:"container"`
	Title            any    `json:"title"`
	Price            any    `json:"price"`
	Link             string `json:"link"`
}

// Load resolves the catalog at path (JSON5, merged with <name>.local.<ext>
// when present) and applies preset. A missing or unreadable file falls back to
// the built-in defaults.
func Load(path, preset string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "catalog")

	cat := &Catalog{Source: "defaults"}

	file, err := readMerged(path, logger)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Warn("site catalog not found, using defaults", "path", path)
	case err != nil:
		logger.Error("invalid site catalog, using defaults", "path", path, "error", err)
	default:
		cat.Source = path
		cat.Sites = sitesFrom(file.Websites, logger)
		cat.Keywords = file.RelevanceKeywords
		cat.CategoryQuery = file.CategoryQuery
		cat.Targets = targetsFrom(nonEmpty(file.TargetPrinters))
	}

	if len(cat.Sites) == 0 {
		cat.Sites = DefaultSites()
	}

	switch strings.ToLower(strings.TrimSpace(preset)) {
	case "", PresetCatalog:
		if len(cat.Targets) == 0 {
			cat.Targets = targetsFrom(FullTargets)
		}
	case PresetFull:
		cat.Targets = targetsFrom(FullTargets)
	case PresetFocused:
		cat.Targets = targetsFrom(FocusedTargets)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, preset)
	}

	logger.Info("loaded site catalog",
		"source", cat.Source,
		"sites", len(cat.Sites),
		"targets", len(cat.Targets))

	return cat, nil
}

// readMerged decodes path and its local override into one document.
func readMerged(path string, logger *slog.Logger) (*fileSchema, error) {
	base, err := readDocument(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	found := err == nil

	localPath := localName(path)
	local, err := readDocument(localPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if base == nil {
			base = map[string]any{}
		}
		if err := mergo.Merge(&base, local, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge %s: %w", localPath, err)
		}
		logger.Info("merging site catalog with local overrides", "local", localPath)
		found = true
	}

	if !found {
		return nil, os.ErrNotExist
	}

	data, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}

	var file fileSchema
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &file, nil
}

func readDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := json5.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// localName maps "dir/website_configs.json" to "dir/website_configs.local.json".
func localName(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}

func sitesFrom(websites map[string]siteSchema, logger *slog.Logger) []models.SiteProfile {
	keys := make([]string, 0, len(websites))
	for key := range websites {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sites []models.SiteProfile
	for _, key := range keys {
		entry := websites[key]

		containers := selectorList(entry.Selectors.Container)
		if len(containers) == 0 {
			containers = selectorList(entry.Selectors.ProductContainer)
		}

		site := models.SiteProfile{
			Key:       key,
			Name:      entry.Name,
			BaseURL:   entry.BaseURL,
			SearchURL: entry.SearchURL,
			Currency:  strings.ToUpper(strings.TrimSpace(entry.Currency)),
			Selectors: models.SelectorSet{
				Container: containers,
				Title:     selectorList(entry.Selectors.Title),
				Price:     selectorList(entry.Selectors.Price),
				Link:      strings.TrimSpace(entry.Selectors.Link),
			},
			Enabled: entry.Enabled == nil || *entry.Enabled,
		}
		if site.Currency == "" {
			site.Currency = "AUD"
		}

		if problems := site.Validate(); len(problems) > 0 {
			logger.Warn("dropping invalid site", "site", key, "problems", problems)
			continue
		}
		sites = append(sites, site)
	}
	return sites
}

func selectorList(v any) []string {
	switch value := v.(type) {
	case string:
		return models.SplitSelectors(value)
	case []any:
		var out []string
		for _, item := range value {
			if s, ok := item.(string); ok {
				out = append(out, models.SplitSelectors(s)...)
			}
		}
		return out
	default:
		return nil
	}
}

func nonEmpty(names []string) []string {
	var out []string
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}
