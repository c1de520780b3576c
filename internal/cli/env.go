package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/provision/internal/catalog"
	"github.com/roach88/provision/internal/config"
	"github.com/roach88/provision/internal/migrate"
	"github.com/roach88/provision/internal/store"
)

// flagBinding maps a command flag onto a configuration key.
type flagBinding struct {
	flag string
	key  string
}

var (
	bindDB       = flagBinding{"db", config.KeyStorePath}
	bindProject  = flagBinding{"project", config.KeyProjectID}
	bindParallel = flagBinding{"parallel", config.KeyParallelism}
)

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// fail reports err through the formatter and returns the matching ExitError.
func fail(f *OutputFormatter, exit int, code, message string, err error, details any) error {
	msg := message
	if err != nil {
		msg = message + ": " + err.Error()
	}
	_ = f.Error(code, msg, details)
	return WrapExitError(exit, message, err)
}

// loadConfig resolves configuration for one invocation. A positional
// catalog argument overrides the catalog key; adjust runs last.
func loadConfig(opts *RootOptions, cmd *cobra.Command, args []string, binds []flagBinding, adjust func(*viper.Viper)) (config.Config, error) {
	v := config.New()
	if err := config.Read(v, opts.Config); err != nil {
		return config.Config{}, err
	}
	for _, b := range binds {
		if f := cmd.Flags().Lookup(b.flag); f != nil {
			if err := v.BindPFlag(b.key, f); err != nil {
				return config.Config{}, fmt.Errorf("bind --%s: %w", b.flag, err)
			}
		}
	}
	if len(args) > 0 {
		v.Set(config.KeyCatalog, args[0])
	}
	if adjust != nil {
		adjust(v)
	}
	return config.Decode(v)
}

func configFailure(f *OutputFormatter, err error) error {
	return fail(f, ExitCommandError, ErrCodeConfig, "configuration", err, nil)
}

// newLogger builds the text logger on w. --verbose forces debug.
func newLogger(cfg config.Config, opts *RootOptions, w io.Writer) *slog.Logger {
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadPlan loads the configured catalog and builds its plan. Failures are
// already reported on f when the returned error is non-nil.
func loadPlan(f *OutputFormatter, cfg config.Config) (*catalog.Catalog, migrate.Plan, error) {
	cat, err := catalog.Load(cfg.Catalog)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, migrate.Plan{}, fail(f, ExitCommandError, ErrCodeCatalog, "catalog not found", err, nil)
		}
		return nil, migrate.Plan{}, fail(f, ExitFailure, ErrCodeCatalog, "invalid catalog", err, problems(err))
	}
	f.VerboseLog("Loaded catalog %s: %d collections, %d rules, %d seeds", cat.Source, len(cat.Collections), len(cat.Rules), len(cat.Seeds))

	plan, err := cat.Plan()
	if err != nil {
		return nil, migrate.Plan{}, fail(f, ExitFailure, ErrCodePlanning, "planning failed", err, problems(err))
	}
	return cat, plan, nil
}

// problemList is one line per catalog or planning problem.
type problemList []string

func (p problemList) Text() string {
	var b strings.Builder
	for _, line := range p {
		b.WriteString("  - ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// problems flattens catalog and planning errors into one message each.
func problems(err error) problemList {
	var catErrs catalog.Errors
	if errors.As(err, &catErrs) {
		out := make(problemList, len(catErrs))
		for i, e := range catErrs {
			out[i] = e.Error()
		}
		return out
	}
	var planErr *migrate.PlanError
	if errors.As(err, &planErr) {
		out := make(problemList, len(planErr.Violations))
		for i, v := range planErr.Violations {
			out[i] = v.Error()
		}
		return out
	}
	if err == nil {
		return nil
	}
	return problemList{err.Error()}
}

// openForRead opens the configured store without creating anything. ok is
// false when the SQLite file does not exist yet.
func openForRead(cfg config.Config) (client store.Client, ok bool, err error) {
	if strings.EqualFold(cfg.Store.Driver, store.DriverMemory) {
		return store.NewMemory(), true, nil
	}
	if _, err := os.Stat(cfg.Store.Path); errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	s, err := store.Open(cfg.Store.Path, cfg.Store.Project, store.ReadOnly())
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// Written reports an artifact written to disk instead of stdout.
type Written struct {
	Path   string `json:"path"`
	Bytes  int    `json:"bytes"`
	SHA256 string `json:"sha256,omitempty"`
}

func (w Written) Text() string {
	return fmt.Sprintf("✓ wrote %s (%d bytes)\n", w.Path, w.Bytes)
}

// writeOutput writes data to path and reports it on f.
func writeOutput(f *OutputFormatter, path string, data []byte, sum string) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fail(f, ExitCommandError, ErrCodeWriteFailed, "write output", err, nil)
	}
	return f.Success(Written{Path: path, Bytes: len(data), SHA256: sum})
}
