package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/listwatch/listwatch/internal/listing"
)

func newStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, "snapshot_entries", "runs", zap.NewNop())
	require.NoError(t, err)
	return store, mock
}

func TestLoadReturnsEntries(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)

	entry := listing.Entry{
		Listing:     listing.Listing{ItemID: "abc123", Title: "Toyota Corolla", Price: 95000},
		Status:      listing.StatusActive,
		Fingerprint: "f00d",
	}
	raw, err := json.Marshal(entry)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT item_id, entry FROM snapshot_entries").
		WithArgs("corolla").
		WillReturnRows(pgxmock.NewRows([]string{"item_id", "entry"}).
			AddRow("abc123", raw).
			AddRow("broken", []byte(`{not json`)))

	prior, err := store.Load(context.Background(), "corolla")
	require.NoError(t, err)
	// The undecodable row is skipped, not fatal.
	require.Len(t, prior, 1)
	require.Equal(t, entry, prior["abc123"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadQueryFailureMeansEmptyPrior(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)

	mock.ExpectQuery("SELECT item_id, entry FROM snapshot_entries").
		WithArgs("corolla").
		WillReturnError(errors.New("relation does not exist"))

	prior, err := store.Load(context.Background(), "corolla")
	require.NoError(t, err)
	require.Empty(t, prior)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveUpsertsEntriesAndRun(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)

	now := time.Unix(1700000000, 0).UTC()
	entry := listing.Entry{
		Listing:     listing.Listing{ItemID: "abc123", Title: "Toyota Corolla", Price: 95000},
		Status:      listing.StatusUpdated,
		Fingerprint: "f00d",
	}
	raw, err := json.Marshal(entry)
	require.NoError(t, err)

	snap := listing.Snapshot{
		SearchName: "corolla",
		RunID:      "run-1",
		LastRun:    now,
		Complete:   true,
		Total:      1,
		Totals:     map[listing.Status]int{listing.StatusUpdated: 1},
		Entries:    []listing.Entry{entry},
	}
	totals, err := json.Marshal(snap.Totals)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO snapshot_entries").
		WithArgs("corolla", "abc123", "updated", "f00d", raw, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO runs").
		WithArgs("run-1", "corolla", now, true, 1, totals).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Save(context.Background(), "corolla", snap))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePropagatesUpsertFailure(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)

	entry := listing.Entry{
		Listing: listing.Listing{ItemID: "abc123"},
		Status:  listing.StatusActive,
	}
	mock.ExpectExec("INSERT INTO snapshot_entries").
		WillReturnError(errors.New("connection reset"))

	err := store.Save(context.Background(), "corolla", listing.Snapshot{Entries: []listing.Entry{entry}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "upsert entry abc123")
}

func TestNewWithPoolValidatesTables(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "bad;table", "runs", zap.NewNop())
	require.Error(t, err)

	_, err = NewWithPool(nil, "snapshot_entries", "runs", zap.NewNop())
	require.Error(t, err)
}
