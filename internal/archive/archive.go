// Package archive preserves per-run snapshot documents in object storage so
// history survives the working snapshot being overwritten each run.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/listwatch/listwatch/internal/listing"
)

// ObjectStore writes one named object and returns its location URI.
type ObjectStore interface {
	Put(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}

// Archiver writes a dated copy of each run's snapshot.
type Archiver struct {
	store  ObjectStore
	prefix string
	logger *zap.Logger
}

// New builds an Archiver. prefix may be empty.
func New(store ObjectStore, prefix string, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{store: store, prefix: strings.Trim(prefix, "/"), logger: logger}
}

// Archive uploads the snapshot under <prefix>/<search>/<runstamp>.json and
// returns the object URI.
func (a *Archiver) Archive(ctx context.Context, search string, snap listing.Snapshot) (string, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	name := fmt.Sprintf("%s/%s.json", search, snap.LastRun.UTC().Format("20060102T150405Z"))
	if a.prefix != "" {
		name = a.prefix + "/" + name
	}

	uri, err := a.store.Put(ctx, name, "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("archive snapshot %s: %w", name, err)
	}
	a.logger.Info("snapshot archived",
		zap.String("search", search),
		zap.String("uri", uri),
	)
	return uri, nil
}
