// Package snapshot persists the reconciled view of each tracked search.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"

	"github.com/listwatch/listwatch/internal/listing"
)

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// FileStore keeps one JSON document per search under a root directory.
// Writes go through a temp file and rename so a crash mid-write never leaves
// a half-written document that the next load would trust.
type FileStore struct {
	root   string
	fp     listing.Fingerprinter
	logger *zap.Logger
}

// NewFileStore returns a store rooted at dir, creating it if needed.
func NewFileStore(root string, fp listing.Fingerprinter, logger *zap.Logger) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("snapshot root directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create snapshot dir %s: %w", root, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{root: root, fp: fp, logger: logger}, nil
}

// Path returns the document path for a search name.
func (s *FileStore) Path(search string) string {
	name := invalidNameChars.ReplaceAllString(search, "_")
	return filepath.Join(s.root, name+".json")
}

// legacyDocument covers every shape ever written: the current envelope, the
// older one keyed "cars", and the oldest bare array handled separately.
type legacyDocument struct {
	SearchURL string          `json:"search_url"`
	Listings  []listing.Entry `json:"listings"`
	Cars      []listing.Entry `json:"cars"`
}

// Load reads the prior snapshot for a search. A missing, unreadable, or
// malformed document yields an empty map, not an error: the run proceeds as
// a first-ever run and the file on disk stays untouched until the next save.
func (s *FileStore) Load(ctx context.Context, search string) (map[listing.ItemID]listing.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}
	path := s.Path(search)
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("snapshot unreadable, starting fresh",
				zap.String("path", path), zap.Error(err))
		}
		return map[listing.ItemID]listing.Entry{}, nil
	}

	entries, ok := decodeEntries(raw)
	if !ok {
		s.logger.Warn("snapshot malformed, starting fresh", zap.String("path", path))
		return map[listing.ItemID]listing.Entry{}, nil
	}

	out := make(map[listing.ItemID]listing.Entry, len(entries))
	for _, e := range entries {
		if e.ItemID == "" {
			continue
		}
		out[e.ItemID] = s.upgrade(e)
	}
	return out, nil
}

// upgrade fills in fields that older document shapes lacked. Status defaults
// to active; a missing fingerprint is computed from the entry's own persisted
// fields so the first run after a migration does not classify everything as
// updated.
func (s *FileStore) upgrade(e listing.Entry) listing.Entry {
	if e.Status == "" {
		e.Status = listing.StatusActive
	}
	if e.Fingerprint == "" && s.fp != nil {
		e.Fingerprint = s.fp.Fingerprint(e.Listing)
	}
	return e
}

func decodeEntries(raw []byte) ([]listing.Entry, bool) {
	var doc legacyDocument
	if err := json.Unmarshal(raw, &doc); err == nil {
		switch {
		case doc.Listings != nil:
			return doc.Listings, true
		case doc.Cars != nil:
			return doc.Cars, true
		}
	}
	var bare []listing.Entry
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare, true
	}
	return nil, false
}

// Save writes the snapshot document atomically.
func (s *FileStore) Save(ctx context.Context, search string, snap listing.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	path := s.Path(search)
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace snapshot %s: %w", path, err)
	}
	return nil
}
