package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Provider returns the current base→quote rate from one upstream source.
type Provider interface {
	Name() string
	FetchRate(ctx context.Context) (float64, error)
}

// HTTPProvider reads a rate from a JSON endpoint. Path is a dotted accessor
// into the decoded document, e.g. "rates.AUD".
type HTTPProvider struct {
	name   string
	url    string
	path   string
	client *resty.Client
}

func NewHTTPProvider(name, url, path string, timeout time.Duration) *HTTPProvider {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &HTTPProvider{name: name, url: url, path: path, client: client}
}

func (p *HTTPProvider) Name() string { return p.name }

func (p *HTTPProvider) FetchRate(ctx context.Context) (float64, error) {
	resp, err := p.client.R().SetContext(ctx).Get(p.url)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}

	if resp.IsError() {
		return 0, fmt.Errorf("HTTP %d from %s", resp.StatusCode(), p.url)
	}

	var doc map[string]any
	if err := json.Unmarshal(resp.Body(), &doc); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}

	return lookupFloat(doc, p.path)
}

// DefaultProviders returns the public endpoints tried in order.
func DefaultProviders(base, quote string, timeout time.Duration) []Provider {
	path := "rates." + quote
	return []Provider{
		NewHTTPProvider("exchangerate-api", "https://api.exchangerate-api.com/v4/latest/"+base, path, timeout),
		NewHTTPProvider("open-er-api", "https://open.er-api.com/v6/latest/"+base, path, timeout),
		NewHTTPProvider("fixer", "https://api.fixer.io/latest?base="+base+"&symbols="+quote, path, timeout),
	}
}

func lookupFloat(doc map[string]any, path string) (float64, error) {
	var current any = doc

	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return 0, fmt.Errorf("path %q: %q is not an object", path, part)
		}
		if current, ok = obj[part]; !ok {
			return 0, fmt.Errorf("path %q: missing %q", path, part)
		}
	}

	value, ok := current.(float64)
	if !ok {
		return 0, fmt.Errorf("path %q: value is %T, not a number", path, current)
	}
	return value, nil
}
