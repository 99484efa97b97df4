// Package postgres provides a Postgres-backed snapshot store.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/listwatch/listwatch/internal/listing"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for snapshot rows.
type Config struct {
	DSN             string
	EntriesTable    string
	RunsTable       string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querierCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// Store keeps one row per (search, item) with the full entry as jsonb, plus
// one row per completed run.
type Store struct {
	pool         querierCloser
	entriesTable string
	runsTable    string
	logger       *zap.Logger
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("snapshot.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool, cfg.EntriesTable, cfg.RunsTable, logger)
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewWithPool(pool querierCloser, entriesTable, runsTable string, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if entriesTable == "" {
		entriesTable = "snapshot_entries"
	}
	if runsTable == "" {
		runsTable = "runs"
	}
	for _, table := range []string{entriesTable, runsTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:         pool,
		entriesTable: entriesTable,
		runsTable:    runsTable,
		logger:       logger,
	}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Load returns the last-known entries for a search. Unreadable state maps to
// an empty prior so the run proceeds as a bootstrap, matching the file
// store's contract.
func (s *Store) Load(ctx context.Context, search string) (map[listing.ItemID]listing.Entry, error) {
	entries := make(map[listing.ItemID]listing.Entry)
	if s == nil || s.pool == nil {
		return entries, fmt.Errorf("snapshot store is not configured")
	}

	query := fmt.Sprintf(`SELECT item_id, entry FROM %s WHERE search_name = $1`, s.entriesTable)
	rows, err := s.pool.Query(ctx, query, search)
	if err != nil {
		s.logger.Warn("snapshot query failed, starting from empty prior",
			zap.String("search", search),
			zap.Error(err),
		)
		return entries, nil
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		var entry listing.Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			s.logger.Warn("skipping undecodable snapshot row",
				zap.String("search", search),
				zap.String("item_id", id),
				zap.Error(err),
			)
			continue
		}
		if entry.ItemID == "" {
			entry.ItemID = listing.ItemID(id)
		}
		entries[entry.ItemID] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read snapshot rows: %w", err)
	}
	return entries, nil
}

// Save upserts every entry and appends one run row. Removed entries are
// written too, they stay queryable until the item resurfaces.
func (s *Store) Save(ctx context.Context, search string, snap listing.Snapshot) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("snapshot store is not configured")
	}

	upsert := fmt.Sprintf(`
INSERT INTO %s (search_name, item_id, status, fingerprint, entry, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (search_name, item_id) DO UPDATE SET
	status = EXCLUDED.status,
	fingerprint = EXCLUDED.fingerprint,
	entry = EXCLUDED.entry,
	updated_at = EXCLUDED.updated_at`, s.entriesTable)

	for _, entry := range snap.Entries {
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal entry %s: %w", entry.ItemID, err)
		}
		args := []any{
			search,
			string(entry.ItemID),
			string(entry.Status),
			entry.Fingerprint,
			raw,
			snap.LastRun,
		}
		if _, err := s.pool.Exec(ctx, upsert, args...); err != nil {
			return fmt.Errorf("upsert entry %s: %w", entry.ItemID, err)
		}
	}

	totals, err := json.Marshal(snap.Totals)
	if err != nil {
		return fmt.Errorf("marshal totals: %w", err)
	}
	// Interim saves reuse the run id, the last write wins.
	runInsert := fmt.Sprintf(`
INSERT INTO %s (run_id, search_name, run_at, complete, total, totals)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (run_id) DO UPDATE SET
	run_at = EXCLUDED.run_at,
	complete = EXCLUDED.complete,
	total = EXCLUDED.total,
	totals = EXCLUDED.totals`, s.runsTable)
	args := []any{
		snap.RunID,
		search,
		snap.LastRun,
		snap.Complete,
		snap.Total,
		totals,
	}
	if _, err := s.pool.Exec(ctx, runInsert, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}
