package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/pricewatch/internal/clock"
	"github.com/maltedev/pricewatch/internal/models"
	"github.com/maltedev/pricewatch/internal/ratelimit"
	"github.com/redis/go-redis/v9"
)

var (
	ErrMalformedMessage = errors.New("malformed stream message")
	// ErrQuoteRejected means the downstream sink refused at least one quote;
	// those messages stay pending and are retried.
	ErrQuoteRejected = errors.New("quote rejected by sink")
)

// StreamReader is the subset of *redis.Client the consumer uses.
type StreamReader interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

type ConsumerOptions struct {
	Stream string
	Group  string
	Name   string
	Count  int64
	Block  time.Duration
	// ErrorBackoff is slept after a failed read.
	ErrorBackoff time.Duration
	// RetryInterval is the wait before rejected quotes are read again.
	RetryInterval time.Duration
	Sleep         ratelimit.SleepFunc
	Clock         clock.Clock
	Logger        *slog.Logger
}

// Consumer reads quotes published by StreamSink through a consumer group and
// hands them to a downstream sink.
type Consumer struct {
	client StreamReader
	dst    Sink
	opts   ConsumerOptions
	logger *slog.Logger

	backlog bool
	lastID  string
	retryAt time.Time
}

func NewConsumer(client StreamReader, dst Sink, opts ConsumerOptions) *Consumer {
	if opts.Stream == "" {
		opts.Stream = "stream:price_quotes"
	}
	if opts.Group == "" {
		opts.Group = "pricewatch-quotes"
	}
	if opts.Name == "" {
		opts.Name = "consumer-1"
	}
	if opts.Count <= 0 {
		opts.Count = 10
	}
	if opts.Block <= 0 {
		opts.Block = 5 * time.Second
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 30 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = ratelimit.Sleep
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Consumer{
		client:  client,
		dst:     dst,
		opts:    opts,
		logger:  opts.Logger.With("component", "stream_consumer", "stream", opts.Stream, "group", opts.Group),
		backlog: true,
		lastID:  "0",
	}
}

// Run creates the consumer group if needed and processes messages until ctx
// is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.opts.Stream, c.opts.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("starting consumer", "consumer", c.opts.Name)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if _, err := c.ReadOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			if sleepErr := c.opts.Sleep(ctx, c.opts.ErrorBackoff); sleepErr != nil {
				return sleepErr
			}
		}
	}
}

// ReadOnce reads one batch and returns the number of quotes delivered to the
// downstream sink. A fresh consumer first re-reads its own pending entries;
// after that it reads new messages, and a rejected quote schedules another
// pending pass once RetryInterval has elapsed. Malformed and foreign messages
// are acknowledged and dropped. ReadOnce is not safe for concurrent use.
func (c *Consumer) ReadOnce(ctx context.Context) (int, error) {
	if !c.backlog && !c.retryAt.IsZero() && !c.opts.Clock.Now().Before(c.retryAt) {
		c.backlog, c.lastID, c.retryAt = true, "0", time.Time{}
	}

	if c.backlog {
		msgs, err := c.read(ctx, c.lastID, -1)
		if err != nil {
			return 0, err
		}
		if len(msgs) > 0 {
			return c.process(ctx, msgs, true)
		}
		c.backlog = false
		c.logger.Debug("pending entries drained")
	}

	msgs, err := c.read(ctx, ">", c.opts.Block)
	if err != nil {
		return 0, err
	}
	return c.process(ctx, msgs, false)
}

// read fetches entries after start; ">" means never-delivered messages. A
// negative block returns immediately.
func (c *Consumer) read(ctx context.Context, start string, block time.Duration) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.opts.Group,
		Consumer: c.opts.Name,
		Streams:  []string{c.opts.Stream, start},
		Count:    c.opts.Count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var msgs []redis.XMessage
	for _, stream := range streams {
		msgs = append(msgs, stream.Messages...)
	}
	return msgs, nil
}

func (c *Consumer) process(ctx context.Context, msgs []redis.XMessage, backlog bool) (int, error) {
	delivered, rejected := 0, 0
	for _, msg := range msgs {
		if backlog {
			c.lastID = msg.ID
		}

		// Pending entries trimmed from the stream come back without values
		// and are dropped as foreign.
		quote, ok, err := DecodeMessage(msg)
		switch {
		case err != nil:
			c.logger.Warn("dropping malformed message", "id", msg.ID, "error", err)
		case !ok:
			c.logger.Debug("skipping foreign event", "id", msg.ID)
		default:
			if err := c.dst.Emit(ctx, quote); err != nil {
				c.logger.Error("failed to store quote", "id", msg.ID, "quote_id", quote.ID, "error", err)
				rejected++
				continue
			}
			delivered++
		}

		if err := c.client.XAck(ctx, c.opts.Stream, c.opts.Group, msg.ID).Err(); err != nil {
			c.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
		}
	}

	if rejected > 0 {
		if c.retryAt.IsZero() {
			c.retryAt = c.opts.Clock.Now().Add(c.opts.RetryInterval)
		}
		return delivered, fmt.Errorf("%w: %d of %d", ErrQuoteRejected, rejected, len(msgs))
	}
	return delivered, nil
}

// DecodeMessage extracts the quote from a StreamSink message. ok is false for
// messages of another event type.
func DecodeMessage(msg redis.XMessage) (quote models.PriceQuote, ok bool, err error) {
	if t, _ := msg.Values["type"].(string); t != EventQuoteRecorded {
		return quote, false, nil
	}

	data, isString := msg.Values["data"].(string)
	if !isString || data == "" {
		return quote, false, fmt.Errorf("%w: missing data", ErrMalformedMessage)
	}

	if err := json.Unmarshal([]byte(data), &quote); err != nil {
		return quote, false, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	return quote, true, nil
}
