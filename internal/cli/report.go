package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/provision/internal/ir"
	"github.com/roach88/provision/internal/migrate"
	"github.com/roach88/provision/internal/store"
)

// reportView renders a run report. JSON output is the report itself.
type reportView struct {
	*migrate.RunReport
}

func (v reportView) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.RunReport)
}

func (v reportView) Text() string {
	r := v.RunReport
	var b strings.Builder
	mark := "✓"
	if r.Status != migrate.StatusDone {
		mark = "✗"
	}
	fmt.Fprintf(&b, "%s run %s %s", mark, r.RunID, r.Status)
	if r.Project != "" {
		fmt.Fprintf(&b, " (project %s)", r.Project)
	}
	if !r.StartedAt.IsZero() && !r.FinishedAt.IsZero() {
		fmt.Fprintf(&b, " in %s", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	b.WriteByte('\n')

	counts := r.Counts()
	fmt.Fprintf(&b, "  created %d, updated %d, unchanged %d, failed %d\n",
		counts[migrate.OutcomeCreated], counts[migrate.OutcomeUpdated],
		counts[migrate.OutcomeUnchanged], counts[migrate.OutcomeFailed])

	for _, a := range r.Artifacts {
		switch a.Outcome {
		case migrate.OutcomeCreated:
			fmt.Fprintf(&b, "  + %-8s %s\n", a.Phase, a.Target())
		case migrate.OutcomeUpdated:
			fmt.Fprintf(&b, "  ~ %-8s %s\n", a.Phase, a.Target())
		case migrate.OutcomeFailed:
			fmt.Fprintf(&b, "  ✗ %-8s %s: %s\n", a.Phase, a.Target(), a.Reason)
		}
	}
	for _, c := range r.Cycles {
		fmt.Fprintf(&b, "  warning: %s\n", c.Message)
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "  error: %s\n", r.Error)
	}
	return b.String()
}

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Database string
	Project  string
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the report of the last stored run",
		Long: `Read the run report that the last apply stored in the database.

The store is opened read-only.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Project, "project", "", "project id (default from config)")

	return cmd
}

func runReport(opts *ReportOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	cfg, err := loadConfig(opts.RootOptions, cmd, nil, []flagBinding{bindDB, bindProject}, nil)
	if err != nil {
		return configFailure(f, err)
	}

	client, ok, err := openForRead(cfg)
	if err != nil {
		return fail(f, ExitCommandError, ErrCodeStore, "open store", err, nil)
	}
	if !ok {
		return fail(f, ExitCommandError, ErrCodeNoReport, "no run report", fmt.Errorf("database %s does not exist", cfg.Store.Path), nil)
	}
	defer func() { _ = client.Close() }()

	ctx := cmd.Context()
	if err := client.EnsureInitialized(ctx); err != nil {
		return fail(f, ExitCommandError, ErrCodeStore, "open store", err, nil)
	}
	payload, err := client.Get(ctx, ir.SystemCollection, ir.LastRunReportKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fail(f, ExitCommandError, ErrCodeNoReport, "no run report", err, nil)
	case err != nil:
		return fail(f, ExitCommandError, ErrCodeStore, "read run report", err, nil)
	}

	report, err := migrate.ReportFromPayload(payload)
	if err != nil {
		return fail(f, ExitFailure, ErrCodeStore, "decode run report", err, nil)
	}
	return f.Success(reportView{report})
}
