package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/maltedev/pricewatch/internal/ratelimit"
	"golang.org/x/net/html/charset"
)

// ErrFetchFailed is returned once every attempt for a URL has failed.
var ErrFetchFailed = errors.New("fetch failed")

const maxBodySize = 10 * 1024 * 1024

type Rand interface {
	Float64() float64
	IntN(n int) int
}

type Options struct {
	UserAgents []string
	MaxRetries int
	Timeout    time.Duration
	// BaseDelay is multiplied by 2^attempt and a jitter factor in [1, 2).
	BaseDelay  time.Duration
	Rand       Rand
	Sleep      ratelimit.SleepFunc
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Fetcher performs GET requests with a rotating identity and bounded,
// jittered exponential backoff.
type Fetcher struct {
	client     *resty.Client
	userAgents []string
	maxRetries int
	baseDelay  time.Duration
	sleep      ratelimit.SleepFunc
	logger     *slog.Logger

	// mu guards rnd; one Fetcher serves concurrent API searches.
	mu  sync.Mutex
	rnd Rand
}

func New(opts Options) *Fetcher {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x2545f4914f6cdd1d))
	}
	if opts.Sleep == nil {
		opts.Sleep = ratelimit.Sleep
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = []string{"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"}
	}

	var client *resty.Client
	if opts.HTTPClient != nil {
		client = resty.NewWithClient(opts.HTTPClient)
	} else {
		client = resty.New()
	}
	client.SetTimeout(opts.Timeout)
	client.SetRetryCount(0)

	return &Fetcher{
		client:     client,
		userAgents: opts.UserAgents,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		rnd:        opts.Rand,
		sleep:      opts.Sleep,
		logger:     opts.Logger.With("component", "fetcher"),
	}
}

// Fetch returns the page body decoded to UTF-8. Any error wraps ErrFetchFailed
// unless ctx was cancelled.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < f.maxRetries; attempt++ {
		body, err := f.attempt(ctx, url)
		if err == nil {
			return body, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		lastErr = err
		f.logger.Warn("fetch attempt failed", "attempt", attempt+1, "url", url, "error", err)

		if attempt < f.maxRetries-1 {
			if err := f.sleep(ctx, f.Backoff(attempt)); err != nil {
				return nil, err
			}
		}
	}

	f.logger.Error("all fetch attempts failed", "url", url, "attempts", f.maxRetries)
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrFetchFailed, f.maxRetries, lastErr)
}

// Backoff returns the wait after the given zero-based failed attempt.
func (f *Fetcher) Backoff(attempt int) time.Duration {
	f.mu.Lock()
	jitter := f.rnd.Float64()
	f.mu.Unlock()

	factor := math.Pow(2, float64(attempt)) * (1 + jitter)
	return time.Duration(float64(f.baseDelay) * factor)
}

func (f *Fetcher) attempt(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeaders(f.headers()).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode(), url)
	}

	reader, err := charset.NewReader(bytes.NewReader(resp.Body()), resp.Header().Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}

	body, err := io.ReadAll(io.LimitReader(reader, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return body, nil
}

// headers builds a realistic browser header set with a freshly chosen user agent.
func (f *Fetcher) headers() map[string]string {
	f.mu.Lock()
	agent := f.userAgents[f.rnd.IntN(len(f.userAgents))]
	f.mu.Unlock()

	return map[string]string{
		"User-Agent":                agent,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.9,en-AU;q=0.8",
		"Accept-Encoding":           "gzip",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Cache-Control":             "max-age=0",
	}
}
