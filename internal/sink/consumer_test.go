package sink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/maltedev/pricewatch/internal/clock"
	"github.com/maltedev/pricewatch/internal/logger"
	"github.com/maltedev/pricewatch/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStreamReader struct {
	mock.Mock
}

func (m *MockStreamReader) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	args := m.Called(ctx, stream, group, start)
	cmd := redis.NewStatusCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal("OK")
	}
	return cmd
}

func (m *MockStreamReader) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	args := m.Called(ctx, a)
	cmd := redis.NewXStreamSliceCmd(ctx)
	if err := args.Error(1); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(args.Get(0).([]redis.XStream))
	}
	return cmd
}

func (m *MockStreamReader) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	m.Called(ctx, stream, group, ids)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(ids)))
	return cmd
}

func readingFrom(start string) interface{} {
	return mock.MatchedBy(func(a *redis.XReadGroupArgs) bool { return a.Streams[1] == start })
}

// flakySink rejects quotes while failures is positive, then stores them.
type flakySink struct {
	failures int
	*Collector
}

func (f *flakySink) Emit(ctx context.Context, q models.PriceQuote) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("db down")
	}
	return f.Collector.Emit(ctx, q)
}

func quoteMessage(t *testing.T, id string) redis.XMessage {
	t.Helper()
	data, err := json.Marshal(sampleQuote())
	require.NoError(t, err)
	return redis.XMessage{ID: id, Values: map[string]interface{}{
		"type": EventQuoteRecorded,
		"data": string(data),
	}}
}

func TestDecodeMessage(t *testing.T) {
	quote, ok, err := DecodeMessage(quoteMessage(t, "1-0"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Zebra ZC300", quote.Model)

	_, ok, err = DecodeMessage(redis.XMessage{Values: map[string]interface{}{"type": "other"}})
	assert.NoError(t, err)
	assert.False(t, ok)

	_, _, err = DecodeMessage(redis.XMessage{Values: map[string]interface{}{"type": EventQuoteRecorded, "data": "{"}})
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, _, err = DecodeMessage(redis.XMessage{Values: map[string]interface{}{"type": EventQuoteRecorded}})
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestConsumerReadOnce(t *testing.T) {
	client := new(MockStreamReader)
	dst := NewCollector()
	c := NewConsumer(client, dst, ConsumerOptions{Stream: "s", Group: "g", Name: "n", Logger: logger.Discard()})

	messages := []redis.XMessage{
		quoteMessage(t, "1-0"),
		{ID: "2-0", Values: map[string]interface{}{"type": "other"}},
		{ID: "3-0", Values: map[string]interface{}{"type": EventQuoteRecorded, "data": "not json"}},
	}
	client.On("XReadGroup", mock.Anything, mock.MatchedBy(func(a *redis.XReadGroupArgs) bool {
		return a.Streams[1] == "0" && a.Block < 0
	})).Return([]redis.XStream{{Stream: "s"}}, nil).Once()
	client.On("XReadGroup", mock.Anything, mock.MatchedBy(func(a *redis.XReadGroupArgs) bool {
		return a.Group == "g" && a.Consumer == "n" && a.Streams[0] == "s" && a.Streams[1] == ">"
	})).Return([]redis.XStream{{Stream: "s", Messages: messages}}, nil).Once()
	client.On("XAck", mock.Anything, "s", "g", mock.Anything).Return()

	n, err := c.ReadOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, dst.Len())
	client.AssertNumberOfCalls(t, "XAck", 3)
}

func TestConsumerRedeliversRejectedQuotes(t *testing.T) {
	ctx := context.Background()
	client := new(MockStreamReader)
	clk := clock.NewManual(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC))
	dst := &flakySink{failures: 1, Collector: NewCollector()}
	c := NewConsumer(client, dst, ConsumerOptions{
		Stream:        "s",
		Group:         "g",
		RetryInterval: time.Minute,
		Clock:         clk,
		Logger:        logger.Discard(),
	})

	pending := []redis.XStream{{Stream: "s", Messages: []redis.XMessage{quoteMessage(t, "1-0")}}}
	client.On("XReadGroup", mock.Anything, readingFrom("0")).Return([]redis.XStream{{Stream: "s"}}, nil).Once()
	client.On("XReadGroup", mock.Anything, readingFrom("0")).Return(pending, nil).Once()
	client.On("XReadGroup", mock.Anything, readingFrom("1-0")).Return([]redis.XStream{{Stream: "s"}}, nil).Once()
	client.On("XReadGroup", mock.Anything, readingFrom(">")).Return(pending, nil).Once()
	client.On("XReadGroup", mock.Anything, readingFrom(">")).Return([]redis.XStream(nil), redis.Nil)
	client.On("XAck", mock.Anything, "s", "g", []string{"1-0"}).Return()

	n, err := c.ReadOnce(ctx)
	assert.ErrorIs(t, err, ErrQuoteRejected)
	assert.Equal(t, 0, n)
	client.AssertNotCalled(t, "XAck", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// the retry interval has not elapsed, so only new messages are read
	n, err = c.ReadOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	clk.Advance(time.Minute)
	n, err = c.ReadOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, dst.Len())
	client.AssertNumberOfCalls(t, "XAck", 1)

	n, err = c.ReadOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	client.AssertExpectations(t)
}

func TestConsumerKeepsReadingPastRejectedBacklog(t *testing.T) {
	ctx := context.Background()
	client := new(MockStreamReader)
	dst := &flakySink{failures: 10, Collector: NewCollector()}
	c := NewConsumer(client, dst, ConsumerOptions{Stream: "s", Group: "g", Logger: logger.Discard()})

	pending := []redis.XStream{{Stream: "s", Messages: []redis.XMessage{quoteMessage(t, "1-0")}}}
	client.On("XReadGroup", mock.Anything, readingFrom("0")).Return(pending, nil).Once()
	client.On("XReadGroup", mock.Anything, readingFrom("1-0")).Return([]redis.XStream{{Stream: "s"}}, nil).Once()
	client.On("XReadGroup", mock.Anything, readingFrom(">")).Return([]redis.XStream(nil), redis.Nil).Once()

	_, err := c.ReadOnce(ctx)
	assert.ErrorIs(t, err, ErrQuoteRejected)

	n, err := c.ReadOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	client.AssertExpectations(t)
}

func TestConsumerReadOnceEmpty(t *testing.T) {
	client := new(MockStreamReader)
	c := NewConsumer(client, NewCollector(), ConsumerOptions{Logger: logger.Discard()})

	client.On("XReadGroup", mock.Anything, mock.Anything).Return([]redis.XStream(nil), redis.Nil)

	n, err := c.ReadOnce(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
	client.AssertNumberOfCalls(t, "XReadGroup", 2)
}

func TestConsumerRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := new(MockStreamReader)
	var slept []time.Duration
	c := NewConsumer(client, NewCollector(), ConsumerOptions{
		ErrorBackoff: 2 * time.Second,
		Logger:       logger.Discard(),
		Sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			cancel()
			return ctx.Err()
		},
	})

	client.On("XGroupCreateMkStream", mock.Anything, "stream:price_quotes", "pricewatch-quotes", "0").
		Return(errors.New("BUSYGROUP Consumer Group name already exists"))
	client.On("XReadGroup", mock.Anything, mock.Anything).Return([]redis.XStream(nil), errors.New("connection reset"))

	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []time.Duration{2 * time.Second}, slept)
}

func TestConsumerRunGroupError(t *testing.T) {
	client := new(MockStreamReader)
	c := NewConsumer(client, NewCollector(), ConsumerOptions{Logger: logger.Discard()})

	client.On("XGroupCreateMkStream", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("NOAUTH Authentication required"))

	err := c.Run(context.Background())
	assert.Error(t, err)
	client.AssertNotCalled(t, "XReadGroup", mock.Anything, mock.Anything)
}
