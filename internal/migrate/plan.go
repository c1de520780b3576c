package migrate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/provision/internal/ir"
	"github.com/roach88/provision/internal/planner"
	"github.com/roach88/provision/internal/policy"
	"github.com/roach88/provision/internal/registry"
	"github.com/roach88/provision/internal/seed"
)

// Plan is everything one run applies.
type Plan struct {
	Registry *registry.Registry
	Indexes  planner.IndexPlan
	Rules    []ir.AccessRule
	Seeds    []ir.SeedRecord
}

// PlanError lists every violation found while planning. It unwraps to
// each violation, so errors.Is(err, ir.ErrUnknownCollection) works.
type PlanError struct {
	Violations []error
}

func (e *PlanError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("planning failed with %d violation(s): %s", len(e.Violations), strings.Join(msgs, "; "))
}

func (e *PlanError) Unwrap() []error {
	return e.Violations
}

// compiledPlan is a validated Plan with everything derived from it.
type compiledPlan struct {
	Plan
	rulesText string
	order     []string
	cycles    []CycleWarning
}

// Validate checks a Plan without touching any store. It returns nil or a
// *PlanError.
func Validate(p Plan, compiler *policy.Compiler) error {
	_, err := compile(p, compiler)
	return err
}

func compile(p Plan, compiler *policy.Compiler) (*compiledPlan, error) {
	if p.Registry == nil {
		return nil, &PlanError{Violations: []error{fmt.Errorf("plan has no registry: %w", ir.ErrInvalidSchema)}}
	}
	reg := p.Registry
	var violations []error
	unknown := func(format string, args ...any) {
		violations = append(violations, fmt.Errorf(format+": %w", append(args, ir.ErrUnknownCollection)...))
	}

	for _, s := range reg.All() {
		for _, f := range s.Fields {
			if f.References != "" && !reg.Has(f.References) {
				unknown("schema %s field %s references %q", s.Name, f.Name, f.References)
			}
		}
	}

	for _, coll := range p.Indexes.Collections() {
		if !reg.Has(coll) {
			unknown("index plan for %q", coll)
			continue
		}
		for _, spec := range p.Indexes[coll] {
			if spec.Collection != coll {
				violations = append(violations, fmt.Errorf("index %s filed under %q: %w", spec.Key(), coll, ir.ErrInvalidPattern))
			}
		}
	}

	for i, r := range p.Rules {
		if !reg.Has(r.Collection) {
			unknown("rule %d (%s %s)", i, r.Collection, r.Operation)
		}
		for _, target := range ir.RelationshipTargets(r.Predicate) {
			if !reg.Has(target) {
				unknown("rule %d (%s %s) relationship %q", i, r.Collection, r.Operation, target)
			}
		}
	}

	violations = append(violations, seed.NewLoader(reg, p.Seeds).Violations()...)

	text, err := compiler.Compile(p.Rules)
	if err != nil {
		violations = append(violations, fmt.Errorf("compile rules: %w", err))
	}

	if len(violations) > 0 {
		return nil, &PlanError{Violations: violations}
	}

	order, cycles := dependencyOrder(reg, p.Rules)
	return &compiledPlan{Plan: p, rulesText: text, order: order, cycles: cycles}, nil
}

// IsPlanError reports whether err came from planning.
func IsPlanError(err error) bool {
	var pe *PlanError
	return errors.As(err, &pe)
}
