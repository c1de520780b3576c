package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/roach88/provision/internal/ir"
	"github.com/roach88/provision/internal/migrate"
)

// DiffEntry is one artifact's would-be outcome. Patch is a line diff of
// the stored and desired documents, set for updates only.
type DiffEntry struct {
	migrate.ArtifactDiff
	Patch string `json:"patch,omitempty"`
}

// DiffResult is what an apply would do, computed without writing.
type DiffResult struct {
	Source    string      `json:"source"`
	Project   string      `json:"project"`
	Changes   int         `json:"changes"`
	Artifacts []DiffEntry `json:"artifacts"`
}

func (r DiffResult) Text() string {
	var b strings.Builder
	if r.Changes == 0 {
		fmt.Fprintf(&b, "✓ project %s is up to date with %s\n", r.Project, r.Source)
		return b.String()
	}
	fmt.Fprintf(&b, "%d change(s) to apply from %s to project %s\n", r.Changes, r.Source, r.Project)
	for _, e := range r.Artifacts {
		switch e.Outcome {
		case migrate.OutcomeCreated:
			fmt.Fprintf(&b, "  + %-8s %s\n", e.Phase, e.Target())
		case migrate.OutcomeUpdated:
			fmt.Fprintf(&b, "  ~ %-8s %s\n", e.Phase, e.Target())
			for _, line := range strings.SplitAfter(e.Patch, "\n") {
				if line != "" {
					b.WriteString("      " + line)
				}
			}
		case migrate.OutcomeFailed:
			fmt.Fprintf(&b, "  ✗ %-8s %s: %s\n", e.Phase, e.Target(), e.Reason)
		}
	}
	return b.String()
}

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	*RootOptions
	Database string
	Project  string
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff [catalog]",
		Short: "Show what apply would change, without writing",
		Long: `Compare every planned artifact with the stored document and report
whether apply would create, update or leave it unchanged.

The store is opened read-only. A database that does not exist yet is
treated as empty.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Project, "project", "", "project id (default from config)")

	return cmd
}

func runDiff(opts *DiffOptions, cmd *cobra.Command, args []string) error {
	f := newFormatter(opts.RootOptions, cmd)
	cfg, err := loadConfig(opts.RootOptions, cmd, args, []flagBinding{bindDB, bindProject}, nil)
	if err != nil {
		return configFailure(f, err)
	}

	cat, plan, err := loadPlan(f, cfg)
	if err != nil {
		return err
	}

	client, ok, err := openForRead(cfg)
	if err != nil {
		return fail(f, ExitCommandError, ErrCodeStore, "open store", err, nil)
	}
	if !ok {
		f.VerboseLog("Database %s does not exist; diffing against an empty store", cfg.Store.Path)
		client, _, _ = openForRead(cfg.WithMemoryStore())
	}
	defer func() { _ = client.Close() }()

	orch := migrate.New(client, migrate.WithCompiler(cat.Compiler()), migrate.WithProject(cfg.Store.Project))
	diffs, err := orch.Diff(cmd.Context(), plan)
	switch {
	case migrate.IsPlanError(err):
		return fail(f, ExitFailure, ErrCodePlanning, "planning failed", err, problems(err))
	case err != nil:
		return fail(f, ExitCommandError, ErrCodeStore, "store unavailable", err, nil)
	}

	result := DiffResult{Source: cat.Source, Project: cfg.Store.Project, Artifacts: make([]DiffEntry, len(diffs))}
	failed := 0
	for i, d := range diffs {
		entry := DiffEntry{ArtifactDiff: d}
		switch d.Outcome {
		case migrate.OutcomeCreated:
			result.Changes++
		case migrate.OutcomeUpdated:
			result.Changes++
			entry.Patch = documentPatch(d)
		case migrate.OutcomeFailed:
			failed++
		}
		result.Artifacts[i] = entry
	}

	if failed > 0 {
		_ = f.Error(ErrCodeStore, fmt.Sprintf("%d artifact(s) could not be read", failed), result)
		return NewExitError(ExitFailure, fmt.Sprintf("%d artifact(s) could not be read", failed))
	}
	return f.Success(result)
}

// documentPatch diffs the stored and desired payloads line by line. The
// rules template is compared as text, everything else as indented JSON.
func documentPatch(d migrate.ArtifactDiff) string {
	if d.Phase == migrate.PhaseRules {
		current, _ := d.Current["rules"].(ir.IRString)
		desired, _ := d.Desired["rules"].(ir.IRString)
		return linePatch(string(current), string(desired))
	}
	return linePatch(indented(d.Current), indented(d.Desired))
}

func indented(obj ir.IRObject) string {
	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return ""
	}
	return string(data) + "\n"
}

// linePatch renders changed lines prefixed with - or +. Runs of
// unchanged lines collapse to a single "...".
func linePatch(from, to string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(from, to)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out strings.Builder
	for _, d := range diffs {
		prefix := ""
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		default:
			out.WriteString("  ...\n")
			continue
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out.WriteString(prefix + line)
			if !strings.HasSuffix(line, "\n") {
				out.WriteByte('\n')
			}
		}
	}
	return out.String()
}
