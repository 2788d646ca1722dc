package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"fintrack/internal/api"
	"fintrack/internal/clock"
	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/credentials"
	"fintrack/internal/events"
	"fintrack/internal/log"
	"fintrack/internal/storage"
	"fintrack/internal/store"
)

// app carries what a single command invocation needs. The state database
// and API client are only opened by commands that call openState.
type app struct {
	cfg    *config.Config
	logger *log.Logger
	out    *OutputFormatter
	bus    *events.Bus

	repo      *storage.SQLiteRepository
	holder    *credentials.Holder
	client    *api.Client
	endpoints map[string]api.Endpoints
}

func newApp(cmd *cobra.Command, opts *RootOptions) (*app, error) {
	LoadEnvFile()
	cfg, err := LoadAndValidateConfig()
	if err != nil {
		return nil, err
	}
	logger := SetupLogger(cfg.LogLevel, opts.Verbose, cmd.ErrOrStderr())
	return &app{
		cfg:    cfg,
		logger: logger,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
		bus: events.NewBus(),
	}, nil
}

func (a *app) openState() error {
	repo, err := InitSQLite(a.logger, a.cfg.StateDBPath)
	if err != nil {
		return err
	}
	endpoints := api.DefaultEndpoints()
	if a.cfg.EndpointsFile != "" {
		if endpoints, err = api.LoadEndpoints(a.cfg.EndpointsFile); err != nil {
			repo.Close()
			return WrapExitError(ExitCommandError, "load endpoints", err)
		}
	}
	client, err := api.NewClient(a.cfg.APIURL, a.cfg.HTTPTimeout, a.logger)
	if err != nil {
		repo.Close()
		return WrapExitError(ExitCommandError, "create API client", err)
	}

	a.repo = repo
	a.holder = credentials.NewHolder(repo, a.logger)
	a.client = client
	a.endpoints = endpoints
	a.out.VerboseLog("backend %s, state %s", client.BaseURL(), a.cfg.StateDBPath)
	return nil
}

func (a *app) Close() {
	a.bus.Close()
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.logger.Warn("Failed to close state database", log.FieldError, err)
		}
	}
}

// openStore builds the store for collection and restores its last
// snapshot, so that later writes never persist an empty collection over
// the cached one. A nil reconciler selects the configured deferred refetch.
func openStore[T core.Record](ctx context.Context, a *app, collection string, reconciler store.Reconciler) *store.Store[T] {
	clk := clock.Real()
	if reconciler == nil {
		reconciler = store.NewDeferredRefetch(a.cfg.ReconcileDelay, clk)
	}
	s := store.New[T](
		api.NewCollection[T](a.client, a.endpoints[collection]),
		a.holder,
		store.Options{
			Name:       collection,
			Logger:     a.logger,
			Clock:      clk,
			Reconciler: reconciler,
			Bus:        a.bus,
			Persister:  store.NewKVPersister(a.repo),
		},
	)
	if _, err := s.Rehydrate(ctx); err != nil {
		a.logger.WarnContext(ctx, "Cached snapshot ignored",
			log.NewFields().WithStore(collection).WithOperation(log.OpRehydrate).WithError(err).ToSlice()...)
	}
	return s
}

// refresh fetches the collection unless offline. A failed fetch is not
// fatal when a cached copy exists; the caller gets stale data and a notice.
func refresh[T core.Record](ctx context.Context, a *app, s *store.Store[T], offline bool) error {
	if offline {
		return nil
	}
	err := s.FetchAll(ctx)
	if err == nil {
		return nil
	}
	if len(s.State().Collection) == 0 || core.ErrorKind(err) == core.KindAuth {
		return err
	}
	a.out.Notice("warning: showing cached %s: %v", s.Name(), err)
	return nil
}

func unsupportedExit(err error) error {
	if errors.Is(err, core.ErrUnsupportedOperation) {
		return WrapExitError(ExitCommandError, "not available", err)
	}
	return err
}
