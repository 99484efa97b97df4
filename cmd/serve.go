package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/listwatch/listwatch/internal/api"
)

// newServeCmd creates the 'serve' subcommand, which exposes the snapshots
// and sync triggers over HTTP.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the snapshot API over HTTP",
		Long: `Starts an HTTP server exposing the configured searches, their current
snapshots, and an endpoint that triggers a synchronization run. The server
shuts down gracefully on SIGINT or SIGTERM.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	logger := appInstance.Logger()

	searches := make([]api.SearchInfo, 0, len(cfg.Searches))
	for _, s := range cfg.Searches {
		searches = append(searches, api.SearchInfo{
			Name:             s.Name,
			URL:              s.URL,
			TitleMustContain: s.TitleMustContain,
		})
	}

	apiServer := api.NewServer(searches, appInstance.Snapshots(), appInstance.Worker(), api.Config{
		AuthEnabled: cfg.Auth.Enabled,
		APIKey:      cfg.Auth.APIKey,
		Timeout:     cfg.ServerTimeout(),
	}, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if interval := cfg.SyncInterval(); interval > 0 {
		go runPeriodicSync(ctx, appInstance, interval)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}

// runPeriodicSync re-runs every configured search on a fixed interval until
// the context is canceled. Searches run sequentially; an error on one search
// is logged and does not stop the ticker.
func runPeriodicSync(ctx context.Context, appInstance App, interval time.Duration) {
	logger := appInstance.Logger()
	logger.Info("periodic sync enabled", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, s := range appInstance.Worker().Searches() {
			if ctx.Err() != nil {
				return
			}
			if _, err := appInstance.Worker().Sync(ctx, s.Name); err != nil {
				logger.Warn("periodic sync failed",
					zap.String("search", s.Name), zap.Error(err))
			}
		}
	}
}
