package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/listwatch/listwatch/internal/listing"
	"github.com/listwatch/listwatch/internal/reconcile"
	"github.com/listwatch/listwatch/internal/scheduler"
)

// newSyncCmd creates the 'sync' subcommand. With no arguments it runs every
// configured search; otherwise only the named ones.
func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [search ...]",
		Short: "Run a synchronization pass over the configured searches",
		Long: `Fetches every listing in each search feed, classifies the results against
the previous snapshot, and persists the updated snapshot. Searches are named
in the configuration file.`,
		RunE: runSyncCommand,
	}
}

func runSyncCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	names := args
	if len(names) == 0 {
		for _, s := range appInstance.Worker().Searches() {
			names = append(names, s.Name)
		}
	}
	if len(names) == 0 {
		return errors.New("no searches configured")
	}

	var failed, incomplete int
	for _, name := range names {
		snap, err := appInstance.Worker().Sync(cmd.Context(), name)
		switch {
		case err == nil:
		case errors.Is(err, scheduler.ErrRetryBudgetExhausted):
			// Partial results are persisted; report and move on.
			incomplete++
			logger.Warn("search finished incomplete",
				zap.String("search", name), zap.Error(err))
		default:
			failed++
			logger.Error("search failed", zap.String("search", name), zap.Error(err))
			continue
		}
		printSummary(cmd, name, snap)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d searches failed", failed, len(names))
	}
	if incomplete > 0 {
		return fmt.Errorf("%d of %d searches stopped before the feed was exhausted", incomplete, len(names))
	}
	return nil
}

func printSummary(cmd *cobra.Command, name string, snap listing.Snapshot) {
	totals := snap.Totals
	if totals == nil {
		totals = reconcile.Totals(snap.Entries)
	}
	cmd.Printf("%s: %d listings (new=%d updated=%d active=%d removed=%d)\n",
		name,
		len(snap.Entries),
		totals[listing.StatusNew],
		totals[listing.StatusUpdated],
		totals[listing.StatusActive],
		totals[listing.StatusRemoved],
	)
}
