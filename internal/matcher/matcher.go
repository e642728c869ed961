package matcher

import (
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
)

type Mode string

const (
	ModeStrict  Mode = "strict"
	ModeLenient Mode = "lenient"
	ModeFuzzy   Mode = "fuzzy"
	// ModeAuto is resolved by the caller per attempt; IsRelevant treats it
	// as lenient.
	ModeAuto Mode = "auto"
)

const (
	strictRatio    = 0.6
	fuzzyThreshold = 0.9
)

// DefaultKeywords are the domain terms required by lenient matching.
var DefaultKeywords = []string{"printer", "card", "id", "badge", "fargo", "evolis", "zebra", "magicard", "entrust"}

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeStrict, ModeLenient, ModeFuzzy, ModeAuto:
		return m, nil
	case "":
		return ModeLenient, nil
	default:
		return "", fmt.Errorf("unknown relevance mode %q", s)
	}
}

// Matcher decides whether a listing title refers to a search target.
type Matcher struct {
	keywords []string
}

func New(keywords []string) *Matcher {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	normalized := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			normalized = append(normalized, k)
		}
	}
	return &Matcher{keywords: normalized}
}

func (m *Matcher) Keywords() []string {
	return append([]string(nil), m.keywords...)
}

func (m *Matcher) IsRelevant(title, target string, mode Mode) bool {
	title = strings.ToLower(strings.TrimSpace(title))
	words := strings.Fields(strings.ToLower(target))
	if title == "" || len(words) == 0 {
		return false
	}

	switch mode {
	case ModeStrict:
		return ratio(words, func(w string) bool { return strings.Contains(title, w) })
	case ModeFuzzy:
		tokens := strings.Fields(title)
		return ratio(words, func(w string) bool {
			return strings.Contains(title, w) || fuzzyContains(tokens, w)
		})
	default:
		return m.hasKeyword(title) && anyWord(title, words)
	}
}

func (m *Matcher) hasKeyword(title string) bool {
	for _, k := range m.keywords {
		if strings.Contains(title, k) {
			return true
		}
	}
	return false
}

func anyWord(title string, words []string) bool {
	for _, w := range words {
		if strings.Contains(title, w) {
			return true
		}
	}
	return false
}

func ratio(words []string, match func(string) bool) bool {
	matched := 0
	for _, w := range words {
		if match(w) {
			matched++
		}
	}
	return float64(matched) >= float64(len(words))*strictRatio
}

func fuzzyContains(tokens []string, word string) bool {
	for _, t := range tokens {
		if matchr.JaroWinkler(t, word, false) >= fuzzyThreshold {
			return true
		}
	}
	return false
}
