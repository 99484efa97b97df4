package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/listwatch/listwatch/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Config{}
	cfg.Snapshot.Provider = "file"
	cfg.Snapshot.Dir = t.TempDir()
	cfg.Notify.Provider = "none"
	cfg.Scraper.Concurrency = 2
	cfg.Scraper.MaxRetries = 1
	cfg.Scraper.SaveEvery = 10
	cfg.Browser.NavTimeoutSeconds = 30
	cfg.Feed.MaxPages = 3
	cfg.Feed.TimeoutSeconds = 5
	cfg.Logging.Development = true
	cfg.Searches = []config.SearchConfig{
		{Name: "corolla", URL: "https://example.test/vehicles/cars?model=10"},
	}
	return cfg
}

func TestNewWiresFileProvider(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Logger())
	require.NotNil(t, a.Worker())
	require.NotNil(t, a.Snapshots())
	require.Len(t, a.Worker().Searches(), 1)

	// File provider with notify disabled holds no external connections.
	require.Empty(t, a.cleanups)
}

func TestNewWiresLocalArchive(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Archive.Enabled = true
	cfg.Archive.Dir = t.TempDir()

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()
}

func TestNewRejectsUnknownSnapshotProvider(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Snapshot.Provider = "redis"

	_, err := New(context.Background(), cfg)
	require.ErrorContains(t, err, "unknown snapshot provider")
}

func TestNewRejectsUnknownNotifyProvider(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Notify.Provider = "kafka"

	_, err := New(context.Background(), cfg)
	require.ErrorContains(t, err, "unknown notify provider")
}
