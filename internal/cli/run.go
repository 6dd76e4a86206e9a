package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/cadence/internal/database"
	"github.com/watzon/cadence/internal/events"
	"github.com/watzon/cadence/internal/executions"
	"github.com/watzon/cadence/internal/runner"
	"github.com/watzon/cadence/internal/schedules"
	"github.com/watzon/cadence/internal/server"
)

const shutdownTimeout = 10 * time.Second

var (
	runDryRun   bool
	runManifest string
	runWatch    bool
	runPrune    bool
	runOnce     bool
	runNow      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the schedule runner",
	Long: `Start the runner. Every tick it evaluates each enabled schedule, records
the decision and publishes a trigger event for schedules allowed to fire.

When a manifest is given it is synced before the first tick, and with
--watch again whenever the file changes. The ops server (/health, /metrics,
/api) starts alongside when server.enabled is set.

Use --once to run a single pass, deliver its events and exit.

Examples:
  cadence run --manifest schedules.yaml --watch
  cadence run --dry-run
  cadence run --once --now 2024-01-15T09:00:00Z`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "audit decisions without triggering")
	runCmd.Flags().StringVar(&runManifest, "manifest", "", "manifest to sync on start (overrides runner.manifest)")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "re-sync the manifest when it changes")
	runCmd.Flags().BoolVar(&runPrune, "prune", false, "delete schedules missing from the manifest when syncing")
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run one pass and exit")
	runCmd.Flags().StringVar(&runNow, "now", "", "evaluation instant for --once (RFC3339, default now)")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	rc := cfg.Runner
	if cmd.Flags().Changed("dry-run") {
		rc.DryRun = runDryRun
	}
	if runManifest != "" {
		rc.Manifest = runManifest
	}
	if cmd.Flags().Changed("watch") {
		rc.Watch = runWatch
	}

	now := time.Now().UTC()
	if runNow != "" {
		if !runOnce {
			return fmt.Errorf("--now requires --once")
		}
		t, err := time.Parse(time.RFC3339, runNow)
		if err != nil {
			return fmt.Errorf("invalid --now: %w", err)
		}
		now = t.UTC()
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := schedules.NewStore(db)
	syncOpts := schedules.SyncOptions{Prune: runPrune}
	if rc.Manifest != "" {
		manifest, err := schedules.LoadManifest(rc.Manifest)
		if err != nil {
			return err
		}
		result, err := store.Sync(ctx, manifest, syncOpts)
		if err != nil {
			return err
		}
		log.Info().
			Str("manifest", rc.Manifest).
			Int("created", len(result.Created)).
			Int("updated", len(result.Updated)).
			Int("deleted", len(result.Deleted)).
			Msg("Manifest synced")
	}

	bus := newEventBus(db)

	r, err := runner.New(db, bus, runner.Options{
		TickSpec:         rc.TickSpec,
		LimitWindow:      rc.LimitWindow,
		RecentExecutions: rc.RecentExecutions,
		DryRun:           rc.DryRun,
	})
	if err != nil {
		return err
	}

	if runOnce {
		return runSinglePass(ctx, cmd, r, bus, now)
	}

	if _, err := r.Recover(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to check for missed ticks")
	}

	bus.Start(ctx)
	defer bus.Stop()

	if err := r.Start(ctx); err != nil {
		return err
	}
	defer r.Stop()

	if rc.HistoryRetention > 0 {
		janitor := executions.NewJanitor(executions.NewStore(db), rc.HistoryRetention)
		janitor.Start(ctx)
		defer janitor.Stop()
	}

	if rc.Watch && rc.Manifest != "" {
		watcher, err := schedules.SyncWatcher(store, rc.Manifest, syncOpts)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up manifest watcher, continuing without it")
		} else {
			watcher.Start(ctx)
			defer func() { _ = watcher.Stop() }()
			log.Info().Str("manifest", rc.Manifest).Msg("Watching manifest")
		}
	}

	errCh := make(chan error, 1)
	var srv *server.Server
	if cfg.Server.Enabled {
		srv = server.New(cfg.Server, db, server.WithVersion(Version()))
		go func() { errCh <- srv.Start(ctx) }()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err = <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Ops server failed")
		}
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			log.Warn().Err(serr).Msg("Ops server shutdown")
		}
	}

	return err
}

// newEventBus builds the trigger outbox from the events section. Delivery
// outcomes flow back into execution status; the default subscriber logs
// every trigger.
func newEventBus(db *database.DB) *events.EventBus {
	ec := cfg.Events
	bus := events.NewEventBus(db, &events.EventBusConfig{
		Retention:       ec.Retention,
		ProcessInterval: ec.ProcessInterval,
		CleanupInterval: ec.CleanupInterval,
		BatchSize:       ec.BatchSize,
	})
	bus.OnProcessed(runner.DeliveryObserver(executions.NewStore(db)))

	if err := bus.Subscribe(events.EventTypeTrigger, "*", events.ActionFire, logTrigger); err != nil {
		log.Error().Err(err).Msg("Failed to subscribe trigger logger")
	}

	return bus
}

func logTrigger(ctx context.Context, event *events.Event) error {
	var payload events.TriggerPayload
	if err := event.DecodePayload(&payload); err != nil {
		return err
	}
	log.Info().
		Str("schedule", event.Source).
		Str("execution_id", payload.ExecutionID).
		Str("correlation_id", payload.CorrelationID).
		Msg("Schedule fired")
	return nil
}

func runSinglePass(ctx context.Context, cmd *cobra.Command, r *runner.Runner, bus *events.EventBus, now time.Time) error {
	result, err := r.Tick(ctx, now)
	if err != nil {
		return err
	}
	delivered, err := bus.ProcessPending(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"Pass at %s: %d evaluated, %d triggered, %d blocked, %d failed, %d events delivered\n",
		result.At.Format(time.RFC3339), result.Evaluated, result.Triggered, result.Blocked, result.Failed, delivered)
	return nil
}
