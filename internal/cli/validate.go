package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/provision/internal/migrate"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool                   `json:"valid"`
	Source      string                 `json:"source"`
	Collections int                    `json:"collections"`
	Indexes     int                    `json:"indexes"`
	Rules       int                    `json:"rules"`
	Seeds       int                    `json:"seeds"`
	Order       []string               `json:"order,omitempty"`
	Cycles      []migrate.CycleWarning `json:"cycles,omitempty"`
	Errors      []string               `json:"errors,omitempty"`
}

// Text renders the result for terminals.
func (r ValidationResult) Text() string {
	var b strings.Builder
	if !r.Valid {
		fmt.Fprintf(&b, "✗ %s is invalid\n", r.Source)
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
		return b.String()
	}
	fmt.Fprintf(&b, "✓ %s is valid\n", r.Source)
	fmt.Fprintf(&b, "  %d collections, %d indexes, %d rules, %d seeds\n", r.Collections, r.Indexes, r.Rules, r.Seeds)
	fmt.Fprintf(&b, "  order: %s\n", strings.Join(r.Order, ", "))
	for _, c := range r.Cycles {
		fmt.Fprintf(&b, "  warning: %s\n", c.Message)
	}
	return b.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [catalog]",
		Short: "Check a catalog without touching any store",
		Long: `Load a catalog and run every planning check: schema shape, query
pattern fields, access rule references and seed records.

The catalog is a YAML file, a CUE file or a directory of CUE files.
Without an argument the catalog configured in provision.yaml is used,
falling back to the builtin catalog.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd, args)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command, args []string) error {
	f := newFormatter(opts, cmd)
	cfg, err := loadConfig(opts, cmd, args, nil, nil)
	if err != nil {
		return configFailure(f, err)
	}

	cat, plan, err := loadPlan(f, cfg)
	if err != nil {
		return err
	}

	result := ValidationResult{
		Source:      cat.Source,
		Collections: len(cat.Collections),
		Indexes:     plan.Indexes.Count(),
		Rules:       len(cat.Rules),
		Seeds:       len(cat.Seeds),
	}
	if err := migrate.Validate(plan, cat.Compiler()); err != nil {
		result.Errors = problems(err)
		if f.Format == "json" {
			_ = f.Error(ErrCodePlanning, fmt.Sprintf("%d violation(s)", len(result.Errors)), result)
		} else {
			_ = f.Success(result)
		}
		return WrapExitError(ExitFailure, "validation failed", err)
	}

	result.Valid = true
	result.Order, result.Cycles = migrate.DependencyOrder(plan.Registry, plan.Rules)
	return f.Success(result)
}
