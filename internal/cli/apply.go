package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/provision/internal/catalog"
	"github.com/roach88/provision/internal/config"
	"github.com/roach88/provision/internal/migrate"
	"github.com/roach88/provision/internal/store"
	"github.com/roach88/provision/internal/tracing"
	"github.com/roach88/provision/internal/watch"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Database string
	Project  string
	Memory   bool
	Parallel int
	NoReport bool
	Watch    bool

	// RunIDs overrides the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs migrate.RunIDGenerator
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply [catalog]",
		Short: "Provision schemas, indexes, rules and seeds into the store",
		Long: `Plan the catalog and apply it to the document store in four phases:
schemas, indexes, rules, then seeds.

Every artifact is compared with the stored document first, so a repeated
apply writes nothing. A failed artifact does not stop the run; the run
report lists it and the command exits 1.

With --watch the catalog is re-applied whenever it changes, until
interrupted.

Example:
  provision apply --db ./zygo.db catalog.yaml
  provision apply --memory --format json
  provision apply --watch ./catalog`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", config.DefaultStorePath, "path to SQLite database")
	cmd.Flags().StringVar(&opts.Project, "project", store.DefaultProject, "project id recorded in run reports")
	cmd.Flags().BoolVar(&opts.Memory, "memory", false, "apply to an in-memory store (dry run)")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 1, "artifacts applied concurrently within a phase")
	cmd.Flags().BoolVar(&opts.NoReport, "no-report", false, "do not store the run report")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "re-apply when the catalog changes")

	return cmd
}

func runApply(opts *ApplyOptions, cmd *cobra.Command, args []string) error {
	f := newFormatter(opts.RootOptions, cmd)
	cfg, err := loadConfig(opts.RootOptions, cmd, args, []flagBinding{bindDB, bindProject, bindParallel}, func(v *viper.Viper) {
		if opts.Memory {
			v.Set(config.KeyStoreDriver, store.DriverMemory)
		}
		if opts.NoReport {
			v.Set(config.KeyPersistReport, false)
		}
	})
	if err != nil {
		return configFailure(f, err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(cfg, opts.RootOptions, cmd.ErrOrStderr())

	provider, err := tracing.NewProvider(ctx, cfg.Tracing, tracing.WithStdout(cmd.ErrOrStderr()))
	if err != nil {
		return fail(f, ExitCommandError, ErrCodeConfig, "tracing", err, nil)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	client, err := store.Connect(cfg.Store)
	if err != nil {
		return fail(f, ExitCommandError, ErrCodeStore, "open store", err, nil)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("error closing store", "error", err)
		}
	}()
	logger.Debug("store ready", "driver", cfg.Store.Driver, "path", cfg.Store.Path, "project", cfg.Store.Project)

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = migrate.UUIDv7Generator{}
	}
	a := &applier{
		f:   f,
		cfg: cfg,
		opts: []migrate.Option{
			migrate.WithLogger(logger),
			migrate.WithTracer(provider.Tracer()),
			migrate.WithRunIDs(runIDs),
			migrate.WithProject(cfg.Store.Project),
			migrate.WithParallelism(cfg.Apply.Parallelism),
			migrate.WithReportPersistence(cfg.Apply.PersistReport),
		},
		client: client,
	}

	if !opts.Watch {
		return a.apply(ctx)
	}
	return a.watch(ctx, logger)
}

// applier runs one catalog against one open store, once or repeatedly.
type applier struct {
	f      *OutputFormatter
	cfg    config.Config
	opts   []migrate.Option
	client store.Client
}

func (a *applier) apply(ctx context.Context) error {
	cat, plan, err := loadPlan(a.f, a.cfg)
	if err != nil {
		return err
	}

	opts := append([]migrate.Option{migrate.WithCompiler(cat.Compiler())}, a.opts...)
	report, err := migrate.New(a.client, opts...).Run(ctx, plan)
	switch {
	case migrate.IsPlanError(err):
		return fail(a.f, ExitFailure, ErrCodePlanning, "planning failed", err, problems(err))
	case err != nil:
		return fail(a.f, ExitCommandError, ErrCodeStore, "store unavailable", err, nil)
	}

	view := reportView{report}
	if failed := report.Failed(); len(failed) > 0 {
		_ = a.f.Error(ErrCodeApplyFailed, fmt.Sprintf("run %s: %d artifact(s) failed", report.RunID, len(failed)), view)
		return NewExitError(ExitFailure, report.Error)
	}
	return a.f.Success(view)
}

// watch applies once, then again on every catalog change. A failing run
// is reported and watching continues.
func (a *applier) watch(ctx context.Context, logger *slog.Logger) error {
	if a.cfg.Catalog == "" || a.cfg.Catalog == catalog.BuiltinSource {
		return fail(a.f, ExitCommandError, ErrCodeCatalog, "watch needs a catalog file or directory", nil, nil)
	}

	w, err := watch.New(a.cfg.Catalog, watch.DefaultDebounce)
	if err != nil {
		return fail(a.f, ExitCommandError, ErrCodeCatalog, "watch catalog", err, nil)
	}
	changes, err := w.Start()
	if err != nil {
		return fail(a.f, ExitCommandError, ErrCodeCatalog, "watch catalog", err, nil)
	}
	defer func() { _ = w.Stop() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := func() {
		if err := a.apply(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("apply failed; waiting for changes", "error", err)
		}
	}

	run()
	logger.Info("watching catalog", "path", a.cfg.Catalog)
	for {
		select {
		case <-ctx.Done():
			logger.Info("watch stopped")
			return nil
		case <-changes:
			logger.Info("catalog changed, re-applying", "path", a.cfg.Catalog)
			run()
		case err := <-w.Errors():
			logger.Warn("watch error", "error", err)
		}
	}
}
