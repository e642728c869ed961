package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	currencyPricePattern = regexp.MustCompile(`(?:AU\$|A\$|US\$|[$£€])\s?\d[\d,]*(?:\.\d+)?`)
	barePricePattern     = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	pageSymbolPattern    = regexp.MustCompile(`[$£€][\d,]+\.?\d*`)
)

// ParsePrice turns noisy price text such as "AU$1,234.56" or "1.234,56 €"
// into a number. ok is false when no number can be recovered.
//
// When both separators occur the last one is the decimal separator. A lone
// comma group is decimal only when exactly two digits follow the last comma.
func ParsePrice(text string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' {
			return r
		}
		return -1
	}, text)

	if cleaned == "" {
		return 0, false
	}

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		if len(cleaned)-lastComma-1 == 2 {
			cleaned = strings.ReplaceAll(cleaned[:lastComma], ",", "") + "." + cleaned[lastComma+1:]
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	if strings.Count(cleaned, ".") > 1 {
		return 0, false
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// FindPriceInText scans free text for the first plausible price above min.
// Currency-prefixed numbers are preferred over bare numeric runs. The matched
// text is returned alongside the value.
func FindPriceInText(text string, min float64) (string, float64, bool) {
	for _, pattern := range []*regexp.Regexp{currencyPricePattern, barePricePattern} {
		for _, match := range pattern.FindAllString(text, -1) {
			if value, ok := ParsePrice(match); ok && value > min {
				return match, value, true
			}
		}
	}
	return "", 0, false
}

// pricePatterns returns up to limit currency-prefixed amounts found in text.
func pricePatterns(text string, limit int) []string {
	return pageSymbolPattern.FindAllString(text, limit)
}
