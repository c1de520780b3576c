package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/provision/internal/ir"
	"github.com/roach88/provision/internal/planner"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Output    string
	Firestore bool
}

// PlanResult is the index plan of a catalog.
type PlanResult struct {
	Source  string            `json:"source"`
	Count   int               `json:"count"`
	Indexes planner.IndexPlan `json:"indexes"`
}

// Text lists each collection that needs indexes, one index per line.
func (r PlanResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d composite index(es) for %s\n", r.Count, r.Source)
	for _, name := range r.Indexes.Collections() {
		specs := r.Indexes[name]
		if len(specs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s\n", name)
		for _, spec := range specs {
			fmt.Fprintf(&b, "  %s\n", describeIndex(spec))
		}
	}
	return b.String()
}

func describeIndex(spec ir.IndexSpec) string {
	parts := make([]string, len(spec.Fields))
	for i, f := range spec.Fields {
		parts[i] = fmt.Sprintf("%s %s", f.Field, f.Direction.Normalize())
	}
	return strings.Join(parts, ", ")
}

// jsonText prints an indented JSON document in text mode.
type jsonText struct {
	v any
}

func (j jsonText) MarshalJSON() ([]byte, error) { return json.Marshal(j.v) }

func (j jsonText) Text() string {
	data, err := json.MarshalIndent(j.v, "", "  ")
	if err != nil {
		return err.Error() + "\n"
	}
	return string(data) + "\n"
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan [catalog]",
		Short: "Show the composite indexes a catalog requires",
		Long: `Compute the minimal set of composite indexes for the catalog's query
patterns, deduplicated per collection.

Example:
  provision plan catalog.yaml
  provision plan --firestore -o firestore.indexes.json catalog.yaml`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, cmd, args)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the plan as JSON to this file")
	cmd.Flags().BoolVar(&opts.Firestore, "firestore", false, "emit firestore.indexes.json format")

	return cmd
}

func runPlan(opts *PlanOptions, cmd *cobra.Command, args []string) error {
	f := newFormatter(opts.RootOptions, cmd)
	cfg, err := loadConfig(opts.RootOptions, cmd, args, nil, nil)
	if err != nil {
		return configFailure(f, err)
	}

	cat, plan, err := loadPlan(f, cfg)
	if err != nil {
		return err
	}

	var doc any = PlanResult{Source: cat.Source, Count: plan.Indexes.Count(), Indexes: plan.Indexes}
	if opts.Firestore {
		doc = jsonText{planner.FirestoreIndexes(plan.Indexes)}
	}

	if opts.Output == "" {
		return f.Success(doc)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fail(f, ExitFailure, ErrCodeGeneric, "encode plan", err, nil)
	}
	return writeOutput(f, opts.Output, append(data, '\n'), "")
}
