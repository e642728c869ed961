package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/maltedev/pricewatch/internal/catalog"
	"github.com/maltedev/pricewatch/internal/config"
	"github.com/maltedev/pricewatch/internal/logger"
	"github.com/maltedev/pricewatch/internal/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("GITHUB_ACTIONS", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.Scraper.CatalogPath = filepath.Join(dir, "missing.json")
	cfg.Exchange.Store = "memory"
	cfg.Database.Enabled = false
	cfg.Redis.StreamEnabled = false
	return cfg
}

func TestNew_Defaults(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), logger.Discard())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "defaults", a.Catalog.Source)
	assert.Len(t, a.Catalog.Sites, len(catalog.DefaultSites()))
	assert.Empty(t, a.Outputs)
	assert.Len(t, a.Sink, 1)
	assert.Nil(t, a.Quotes)
	assert.NotNil(t, a.Orchestrator)
}

func TestNew_FileRateStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Exchange.Store = "file"
	cfg.Exchange.CacheFile = filepath.Join(t.TempDir(), "rates", "exchange_rates.json")

	a, err := New(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	a.Close()
}

func TestNew_InvalidSettings(t *testing.T) {
	t.Run("mode", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Scraper.Mode = "sloppy"
		_, err := New(context.Background(), cfg, logger.Discard())
		assert.Error(t, err)
	})

	t.Run("preset", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Scraper.Preset = "everything"
		_, err := New(context.Background(), cfg, logger.Discard())
		assert.ErrorIs(t, err, catalog.ErrUnknownPreset)
	})
}

func TestRun_NoTargets(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), logger.Discard())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Run(context.Background(), a.Catalog.Sites, nil)
	assert.ErrorIs(t, err, scraper.ErrNoTargets)
	assert.Equal(t, 0, a.Collector.Len())
}
