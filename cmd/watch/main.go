// Command watch loads the active events and follows live attendance changes for them.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stanstork/alumni-sync/internal/archive"
	"github.com/stanstork/alumni-sync/internal/capability"
	"github.com/stanstork/alumni-sync/internal/config"
	"github.com/stanstork/alumni-sync/internal/orchestrator"
	"github.com/stanstork/alumni-sync/internal/realtime"
	"github.com/stanstork/alumni-sync/internal/repository"
	"github.com/stanstork/alumni-sync/internal/state"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type watchOptions struct {
	ConfigPath string
	EventIDs   []int64
}

func main() {
	if err := newWatchCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newWatchCommand() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow live attendance changes for active events",
		Long: `Load active events and contacts, then apply attendance changes from the
database notification channel as they arrive.

Example:
  watch --config ./config/config.yaml --event 12 --event 14`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to config.yaml (default ./config.yaml or ./config/config.yaml)")
	cmd.Flags().Int64SliceVar(&opts.EventIDs, "event", nil, "only follow these event ids (default all active events)")

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

func runWatch(ctx context.Context, opts *watchOptions) error {
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to the database: %w", err)
	}
	defer db.Close()

	store := repository.NewStore(db)
	caps := capability.NewRegistry(logger)
	orch := orchestrator.New(store, caps, logger)

	local := state.NewStore()
	events, err := orch.LoadEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}
	local.Events.Set(events)
	contacts, err := orch.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load contacts: %w", err)
	}
	local.SetContacts(contacts)

	feed, err := realtime.NewPQFeed(cfg.DatabaseURL, cfg.Realtime.Channel, logger)
	if err != nil {
		return fmt.Errorf("failed to listen for attendance changes: %w", err)
	}
	reconciler := realtime.NewReconciler(feed, logger)
	watched := opts.EventIDs
	if len(watched) == 0 {
		watched = local.Events.IDs()
	}
	reconciler.Watch(watched...)

	session := state.NewSession(local, orch, archive.NewManager(store, caps, logger), logger)
	session.Attach(reconciler)
	defer func() {
		session.Close()
		session.Wait()
	}()

	reconciler.Register(realtime.HolderFunc(func(c realtime.Change) bool {
		e, ok := local.Events.Get(c.EventID)
		if !ok {
			return false
		}
		logger.Info().
			Str("event", e.Title).
			Int64("contact_id", c.ContactID).
			Str("op", string(c.Op)).
			Str("rsvp_status", string(c.Status)).
			Msg("attendance changed")
		return true
	}))

	logger.Info().
		Int("events", len(events)).
		Int("contacts", len(contacts)).
		Str("channel", cfg.Realtime.Channel).
		Msg("watching attendance")

	if err := reconciler.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("change feed stopped: %w", err)
	}
	logger.Info().Msg("watch stopped")
	return nil
}
