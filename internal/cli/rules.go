package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/provision/internal/ir"
	"github.com/roach88/provision/internal/migrate"
)

// RulesOptions holds flags for the rules command.
type RulesOptions struct {
	*RootOptions
	Output string
}

// RulesResult is a compiled rules template.
type RulesResult struct {
	Source string `json:"source"`
	Rules  string `json:"rules"`
	SHA256 string `json:"rules_sha256"`
}

// Text is the template itself, ready to paste into the console.
func (r RulesResult) Text() string {
	return r.Rules
}

// NewRulesCommand creates the rules command.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RulesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rules [catalog]",
		Short: "Compile the catalog's access rules into a security rules template",
		Long: `Compile the catalog's access rules into a security rules template.

The output is the exact text an apply run stores in the rules artifact.
It is never deployed automatically.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRules(opts, cmd, args)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the template to this file")

	return cmd
}

func runRules(opts *RulesOptions, cmd *cobra.Command, args []string) error {
	f := newFormatter(opts.RootOptions, cmd)
	cfg, err := loadConfig(opts.RootOptions, cmd, args, nil, nil)
	if err != nil {
		return configFailure(f, err)
	}

	cat, plan, err := loadPlan(f, cfg)
	if err != nil {
		return err
	}

	text, err := migrate.New(nil, migrate.WithCompiler(cat.Compiler())).CompiledRules(plan)
	if err != nil {
		return fail(f, ExitFailure, ErrCodePlanning, "planning failed", err, problems(err))
	}
	sum := ir.RulesHash(text)

	if opts.Output != "" {
		return writeOutput(f, opts.Output, []byte(text), sum)
	}
	return f.Success(RulesResult{Source: cat.Source, Rules: text, SHA256: sum})
}
