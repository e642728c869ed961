package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/maltedev/pricewatch/internal/clock"
	"github.com/maltedev/pricewatch/internal/logger"
	"github.com/maltedev/pricewatch/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name  string
	value float64
	err   error
	calls int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) FetchRate(ctx context.Context) (float64, error) {
	p.calls++
	return p.value, p.err
}

type failingStore struct{}

func (failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, storage.ErrNotFound
}

func (failingStore) Put(ctx context.Context, key string, value []byte) error {
	return errors.New("disk full")
}

var epoch = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

func newService(store storage.Store, clk clock.Clock, providers ...Provider) *Service {
	return NewService(Options{
		Store:     store,
		Providers: providers,
		Clock:     clk,
		Logger:    logger.Discard(),
	})
}

func seed(t *testing.T, store storage.Store, rate float64, at time.Time) {
	t.Helper()
	data, err := json.Marshal(Entry{Rate: rate, FetchedAt: at})
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), CacheKey("USD", "AUD"), data))
}

func TestRate_CacheValidityBoundary(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		age       time.Duration
		wantCache bool
	}{
		{"fresh entry", time.Hour, true},
		{"just inside window", 11*time.Hour + 59*time.Minute, true},
		{"exactly at window", 12 * time.Hour, false},
		{"just outside window", 12*time.Hour + time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			seed(t, store, 1.45, epoch)

			provider := &stubProvider{name: "live", value: 1.55}
			svc := newService(store, clock.NewManual(epoch.Add(tt.age)), provider)

			rate := svc.Rate(ctx)
			if tt.wantCache {
				assert.Equal(t, 1.45, rate.Value)
				assert.Equal(t, SourceCache, rate.Source)
				assert.Zero(t, provider.calls)
			} else {
				assert.Equal(t, 1.55, rate.Value)
				assert.Equal(t, "live", rate.Source)
				assert.Equal(t, 1, provider.calls)
			}
			assert.False(t, rate.Degraded)
		})
	}
}

func TestRate_SanityBand(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		value  float64
		accept bool
	}{
		{0.5, false},
		{5.0, false},
		{1.0, false},
		{2.0, false},
		{1.48, true},
	}

	for _, tt := range tests {
		svc := newService(storage.NewMemoryStore(), clock.NewManual(epoch),
			&stubProvider{name: "p", value: tt.value})

		rate := svc.Rate(ctx)
		if tt.accept {
			assert.Equal(t, tt.value, rate.Value)
			assert.False(t, rate.Degraded)
		} else {
			assert.Equal(t, 1.50, rate.Value, "value %v should be rejected", tt.value)
			assert.True(t, rate.Degraded)
		}
	}
}

func TestRate_ProviderOrder(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	first := &stubProvider{name: "first", err: errors.New("timeout")}
	second := &stubProvider{name: "second", value: 3.2}
	third := &stubProvider{name: "third", value: 1.52}
	fourth := &stubProvider{name: "fourth", value: 1.60}

	svc := newService(store, clock.NewManual(epoch), first, second, third, fourth)

	rate := svc.Rate(ctx)
	assert.Equal(t, 1.52, rate.Value)
	assert.Equal(t, "third", rate.Source)
	assert.Zero(t, fourth.calls)

	t.Run("accepted rate is persisted", func(t *testing.T) {
		data, err := store.Get(ctx, "exchange:USD:AUD")
		require.NoError(t, err)

		var entry Entry
		require.NoError(t, json.Unmarshal(data, &entry))
		assert.Equal(t, 1.52, entry.Rate)
		assert.True(t, entry.FetchedAt.Equal(epoch))
	})

	t.Run("second lookup hits the cache", func(t *testing.T) {
		svc.Rate(ctx)
		assert.Equal(t, 1, third.calls)
	})
}

func TestRate_AllProvidersFail(t *testing.T) {
	svc := newService(storage.NewMemoryStore(), clock.NewManual(epoch),
		&stubProvider{name: "a", err: errors.New("HTTP 500")},
		&stubProvider{name: "b", err: errors.New("bad json")},
	)

	rate := svc.Rate(context.Background())
	assert.Equal(t, 1.50, rate.Value)
	assert.Equal(t, SourceFallback, rate.Source)
	assert.True(t, rate.Degraded)
	assert.True(t, svc.Degraded())
}

func TestRate_PersistFailureIsIgnored(t *testing.T) {
	svc := newService(failingStore{}, clock.NewManual(epoch), &stubProvider{name: "p", value: 1.49})

	rate := svc.Rate(context.Background())
	assert.Equal(t, 1.49, rate.Value)
	assert.False(t, svc.Degraded())
}

func TestRate_UnreadableCacheIsAMiss(t *testing.T) {
	ctx := context.Background()

	t.Run("garbage", func(t *testing.T) {
		store := storage.NewMemoryStore()
		require.NoError(t, store.Put(ctx, CacheKey("USD", "AUD"), []byte(`{"rate":"x"}`)))

		svc := newService(store, clock.NewManual(epoch), &stubProvider{name: "p", value: 1.51})
		assert.Equal(t, 1.51, svc.Rate(ctx).Value)
	})

	t.Run("cached value outside band", func(t *testing.T) {
		store := storage.NewMemoryStore()
		seed(t, store, 7.0, epoch)

		svc := newService(store, clock.NewManual(epoch), &stubProvider{name: "p", value: 1.51})
		assert.Equal(t, 1.51, svc.Rate(ctx).Value)
	})
}

func TestEntry_NaiveTimestamp(t *testing.T) {
	var entry Entry
	require.NoError(t, json.Unmarshal([]byte(`{"rate": 1.47, "timestamp": "2026-10-16T09:30:00.123456"}`), &entry))
	assert.Equal(t, 1.47, entry.Rate)
	assert.Equal(t, 30, entry.FetchedAt.Minute())

	assert.Error(t, json.Unmarshal([]byte(`{"rate": 1.47, "timestamp": "yesterday"}`), &entry))
}
