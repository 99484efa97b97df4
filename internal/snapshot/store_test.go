package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/listwatch/listwatch/internal/fingerprint"
	"github.com/listwatch/listwatch/internal/listing"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), fingerprint.New(), nil)
	require.NoError(t, err)
	return store
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	snap := listing.Snapshot{
		SearchName: "hyundai_kona",
		SearchURL:  "https://example.com/vehicles/cars?manufacturer=21",
		LastRun:    now,
		Complete:   true,
		Total:      2,
		Entries: []listing.Entry{
			{
				Listing:     listing.Listing{ItemID: "aa11", Title: "Kona 2021", Price: 92000},
				Status:      listing.StatusActive,
				Fingerprint: "f1",
				FirstSeen:   now,
				LastUpdate:  now,
			},
			{
				Listing:     listing.Listing{ItemID: "bb22", Title: "Kona 2022", Price: 105000},
				Status:      listing.StatusNew,
				Fingerprint: "f2",
				FirstSeen:   now,
				LastUpdate:  now,
			},
		},
	}
	require.NoError(t, store.Save(ctx, "hyundai_kona", snap))

	loaded, err := store.Load(ctx, "hyundai_kona")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, listing.StatusNew, loaded["bb22"].Status)
	require.Equal(t, 92000, loaded["aa11"].Price)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	loaded, err := store.Load(context.Background(), "never_ran")
	require.NoError(t, err)
	require.Empty(t, loaded)
}

func TestLoadCorruptFileIsEmpty(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	require.NoError(t, os.WriteFile(store.Path("broken"), []byte("{not json"), 0o600))

	loaded, err := store.Load(context.Background(), "broken")
	require.NoError(t, err)
	require.Empty(t, loaded)
}

func TestLoadLegacyBareArray(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	legacy := `[
		{"item_id": "x1", "title": "old shape", "price": 50000, "location": "Haifa"},
		{"item_id": "x2", "title": "another", "price": 61000}
	]`
	require.NoError(t, os.WriteFile(store.Path("legacy"), []byte(legacy), 0o600))

	loaded, err := store.Load(context.Background(), "legacy")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	// Unknown status defaults to active; fingerprint backfilled from the
	// entry's own fields.
	require.Equal(t, listing.StatusActive, loaded["x1"].Status)
	require.NotEmpty(t, loaded["x1"].Fingerprint)
	require.Equal(t,
		fingerprint.New().Fingerprint(loaded["x1"].Listing),
		loaded["x1"].Fingerprint,
	)
}

func TestLoadLegacyCarsEnvelope(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	legacy := `{
		"search_url": "https://example.com/feed",
		"last_scraped": "2025-11-02 10:30",
		"cars": [{"item_id": "c1", "price": 70000, "status": "updated", "content_hash": "keep"}]
	}`
	require.NoError(t, os.WriteFile(store.Path("envelope"), []byte(legacy), 0o600))

	loaded, err := store.Load(context.Background(), "envelope")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, listing.StatusUpdated, loaded["c1"].Status)
	require.Equal(t, "keep", loaded["c1"].Fingerprint)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(dir, fingerprint.New(), nil)
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), "s", listing.Snapshot{SearchURL: "u"}))

	files, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, store.Path("s"), files[0])
}

func TestPathSanitizesName(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	require.Equal(t, filepath.Base(store.Path("a/b c")), "a_b_c.json")
}
