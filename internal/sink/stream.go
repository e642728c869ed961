package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/maltedev/pricewatch/internal/models"
	"github.com/redis/go-redis/v9"
)

const EventQuoteRecorded = "price_quote.recorded"

// RedisClient is the subset of *redis.Client the stream sink uses.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// StreamSink publishes quotes to a redis stream for downstream consumers.
type StreamSink struct {
	client RedisClient
	stream string
	maxLen int64
}

// NewStreamSink trims the stream to roughly maxLen entries; zero disables trimming.
func NewStreamSink(client RedisClient, stream string, maxLen int64) *StreamSink {
	return &StreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *StreamSink) Emit(ctx context.Context, quote models.PriceQuote) error {
	payload, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("failed to marshal quote: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"data":       string(payload),
			"type":       EventQuoteRecorded,
			"timestamp":  fmt.Sprintf("%d", quote.ScrapedAt.UnixNano()),
			"quote_id":   quote.ID.String(),
			"run_id":     quote.RunID.String(),
			"model":      quote.Model,
			"website":    quote.SiteKey,
			"status":     string(quote.Status),
			"emitted_at": time.Now().UTC().Format(time.RFC3339),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if _, err := s.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}
