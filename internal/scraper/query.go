package scraper

import (
	"iter"
	"strings"
)

const DefaultCategoryQuery = "card+printer"

// Query is one encoded search term. Reduced queries no longer carry the full
// product name.
type Query struct {
	Text    string
	Reduced bool
}

// QueryStrategy produces the search-term encodings tried against a site.
type QueryStrategy struct {
	category string
}

func NewQueryStrategy(category string) *QueryStrategy {
	if strings.TrimSpace(category) == "" {
		category = DefaultCategoryQuery
	}
	return &QueryStrategy{category: strings.TrimSpace(category)}
}

// Queries yields, in order: spaces as '+', spaces as "%20", fields joined by
// '+', the first field alone and the category term. Empty and repeated
// encodings are skipped. The sequence can be ranged over any number of times.
func (q *QueryStrategy) Queries(product string) iter.Seq[Query] {
	return func(yield func(Query) bool) {
		name := strings.TrimSpace(product)
		fields := strings.Fields(name)

		var first string
		if len(fields) > 0 {
			first = fields[0]
		}

		candidates := []Query{
			{Text: strings.ReplaceAll(name, " ", "+")},
			{Text: strings.ReplaceAll(name, " ", "%20")},
			{Text: strings.Join(fields, "+")},
			{Text: first, Reduced: len(fields) > 1},
			{Text: q.category, Reduced: true},
		}

		seen := make(map[string]bool, len(candidates))
		for _, c := range candidates {
			if c.Text == "" || seen[c.Text] {
				continue
			}
			seen[c.Text] = true
			if !yield(c) {
				return
			}
		}
	}
}

// Variations yields only the encoded strings of Queries.
func (q *QueryStrategy) Variations(product string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for query := range q.Queries(product) {
			if !yield(query.Text) {
				return
			}
		}
	}
}
