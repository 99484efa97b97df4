// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/listwatch/listwatch/internal/archive"
	archivegcs "github.com/listwatch/listwatch/internal/archive/gcs"
	archivelocal "github.com/listwatch/listwatch/internal/archive/local"
	"github.com/listwatch/listwatch/internal/blockdetect"
	"github.com/listwatch/listwatch/internal/browser"
	"github.com/listwatch/listwatch/internal/clock/system"
	"github.com/listwatch/listwatch/internal/config"
	"github.com/listwatch/listwatch/internal/feed"
	"github.com/listwatch/listwatch/internal/fetcher/headless"
	"github.com/listwatch/listwatch/internal/fingerprint"
	"github.com/listwatch/listwatch/internal/id/uuid"
	"github.com/listwatch/listwatch/internal/listing"
	"github.com/listwatch/listwatch/internal/logging"
	"github.com/listwatch/listwatch/internal/metrics"
	"github.com/listwatch/listwatch/internal/notify"
	notifynoop "github.com/listwatch/listwatch/internal/notify/noop"
	notifypubsub "github.com/listwatch/listwatch/internal/notify/pubsub"
	"github.com/listwatch/listwatch/internal/scheduler"
	"github.com/listwatch/listwatch/internal/snapshot"
	snapshotpg "github.com/listwatch/listwatch/internal/snapshot/postgres"
	"github.com/listwatch/listwatch/internal/worker"
)

// App holds the shared, long-lived services. It is initialized once at
// startup and handed to the commands that need it.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	store  listing.SnapshotStore
	worker *worker.Worker

	cleanups []func()
}

// New creates and wires all services from configuration. It fails fast when
// a critical service cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}

	fp := fingerprint.New()
	store, err := a.buildSnapshotStore(ctx, fp)
	if err != nil {
		return nil, err
	}
	a.store = store

	events, err := a.buildPublisher(ctx)
	if err != nil {
		return nil, err
	}
	archiver, err := a.buildArchiver(ctx)
	if err != nil {
		return nil, err
	}

	detector := blockdetect.New(nil, nil, nil)
	browserCfg := browser.Config{
		Headful:           cfg.Browser.Headful,
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: cfg.NavTimeout(),
		BlockResources:    cfg.Browser.BlockResources,
	}
	sourceFactory := headless.NewFactory(headless.Config{
		Browser: browserCfg,
		QPS:     cfg.Browser.QPS,
	}, detector, logger)

	probe := feed.NewHTTPFetcher(feed.HTTPConfig{
		UserAgent: cfg.Browser.UserAgent,
		Timeout:   cfg.FeedTimeout(),
	})
	rendered := &renderedFetcher{cfg: browserCfg, logger: logger}

	searches := make([]worker.Search, 0, len(cfg.Searches))
	enumerators := make(map[string]*feed.Enumerator, len(cfg.Searches))
	for _, s := range cfg.Searches {
		searches = append(searches, worker.Search{Name: s.Name, URL: s.URL})
		enumerators[s.URL] = feed.New(probe, rendered, detector, feed.Config{
			MaxPages:         cfg.Feed.MaxPages,
			TitleMustContain: s.TitleMustContain,
		}, logger)
	}

	a.worker = worker.New(
		searches,
		&searchEnumerator{enumerators: enumerators},
		func() worker.Fetcher {
			return scheduler.New(sourceFactory, scheduler.Config{
				Concurrency: cfg.Scraper.Concurrency,
				MaxRetries:  cfg.Scraper.MaxRetries,
			}, logger)
		},
		store,
		fp,
		system.New(),
		uuid.New(),
		events,
		archiver,
		worker.Config{SaveEvery: cfg.Scraper.SaveEvery},
		logger,
	)

	logger.Info("application services initialized",
		zap.String("snapshot_provider", cfg.Snapshot.Provider),
		zap.String("notify_provider", cfg.Notify.Provider),
		zap.Int("searches", len(cfg.Searches)),
	)
	return a, nil
}

// Logger returns the shared zap logger instance.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Worker returns the sync runner.
func (a *App) Worker() *worker.Worker {
	return a.worker
}

// Snapshots exposes the configured snapshot store.
func (a *App) Snapshots() listing.SnapshotStore {
	return a.store
}

// Close gracefully shuts down all services. Called by a Cobra hook after the
// command finishes.
func (a *App) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	// Best-effort flush; stderr sync errors on shutdown are unactionable.
	_ = a.logger.Sync()
}

func (a *App) buildSnapshotStore(ctx context.Context, fp listing.Fingerprinter) (listing.SnapshotStore, error) {
	switch a.cfg.Snapshot.Provider {
	case "file":
		store, err := snapshot.NewFileStore(a.cfg.Snapshot.Dir, fp, a.logger)
		if err != nil {
			return nil, fmt.Errorf("initialize file snapshot store: %w", err)
		}
		return store, nil
	case "postgres":
		pg := a.cfg.Snapshot.Postgres
		store, err := snapshotpg.New(ctx, snapshotpg.Config{
			DSN:             pg.DSN,
			EntriesTable:    pg.EntriesTable,
			RunsTable:       pg.RunsTable,
			MaxConns:        pg.MaxConns,
			MinConns:        pg.MinConns,
			MaxConnLifetime: time.Duration(pg.ConnLifetimeMinute) * time.Minute,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("initialize postgres snapshot store: %w", err)
		}
		a.cleanups = append(a.cleanups, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown snapshot provider: %s", a.cfg.Snapshot.Provider)
	}
}

func (a *App) buildPublisher(ctx context.Context) (notify.Publisher, error) {
	switch a.cfg.Notify.Provider {
	case "", "none":
		return notifynoop.New(), nil
	case "pubsub":
		pub, cleanup, err := notifypubsub.Connect(ctx, a.cfg.Notify.ProjectID, a.cfg.Notify.Topic)
		if err != nil {
			return nil, fmt.Errorf("initialize pubsub publisher: %w", err)
		}
		a.cleanups = append(a.cleanups, cleanup)
		a.logger.Info("publishing events to pubsub", zap.String("topic", a.cfg.Notify.Topic))
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown notify provider: %s", a.cfg.Notify.Provider)
	}
}

func (a *App) buildArchiver(ctx context.Context) (worker.Archiver, error) {
	if !a.cfg.Archive.Enabled {
		return nil, nil
	}

	var store archive.ObjectStore
	if a.cfg.Archive.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialize storage client: %w", err)
		}
		a.cleanups = append(a.cleanups, func() { _ = client.Close() })

		store, err = archivegcs.New(client, archivegcs.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("initialize archive store: %w", err)
		}
	} else {
		var err error
		store, err = archivelocal.New(archivelocal.Config{BaseDir: a.cfg.Archive.Dir})
		if err != nil {
			return nil, fmt.Errorf("initialize archive store: %w", err)
		}
	}
	return archive.New(store, a.cfg.Archive.Prefix, a.logger), nil
}

// searchEnumerator routes each search URL to its configured enumerator, so
// per-search title filters apply.
type searchEnumerator struct {
	enumerators map[string]*feed.Enumerator
}

func (s *searchEnumerator) Refs(ctx context.Context, searchURL string) ([]listing.TargetRef, error) {
	e, ok := s.enumerators[searchURL]
	if !ok {
		return nil, fmt.Errorf("no enumerator for %s", searchURL)
	}
	return e.Refs(ctx, searchURL)
}

// renderedFetcher renders one feed page in a short-lived browser session.
// Promotion is rare enough that a session per page keeps lifecycle simple.
type renderedFetcher struct {
	cfg    browser.Config
	logger *zap.Logger
}

func (r *renderedFetcher) FetchPage(ctx context.Context, pageURL string) ([]byte, string, error) {
	session, err := browser.NewSession(ctx, r.cfg, r.logger)
	if err != nil {
		return nil, "", fmt.Errorf("launch feed browser: %w", err)
	}
	defer func() { _ = session.Close() }()
	return feed.NewBrowserFetcher(session).FetchPage(ctx, pageURL)
}
