package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/provision/internal/ir"
	"github.com/roach88/provision/internal/store"
)

// ArtifactDiff is what a run would do to one artifact.
type ArtifactDiff struct {
	Phase      Phase       `json:"phase"`
	Collection string      `json:"collection"`
	Key        string      `json:"key"`
	Outcome    Outcome     `json:"outcome"`
	Reason     string      `json:"reason,omitempty"`
	Current    ir.IRObject `json:"current,omitempty"`
	Desired    ir.IRObject `json:"desired"`
}

// Target returns "collection/key".
func (d ArtifactDiff) Target() string {
	return d.Collection + "/" + d.Key
}

// Diff plans p and reports each artifact's would-be outcome. It issues
// Get calls only and never writes. Store read errors are reported per
// artifact with OutcomeFailed.
func (o *Orchestrator) Diff(ctx context.Context, p Plan) ([]ArtifactDiff, error) {
	cp, err := compile(p, o.compiler)
	if err != nil {
		return nil, err
	}
	artifacts, err := buildArtifacts(cp)
	if err != nil {
		return nil, err
	}
	if err := o.store.EnsureInitialized(ctx); err != nil {
		return nil, fmt.Errorf("ensure initialized: %w", err)
	}

	var diffs []ArtifactDiff
	for _, phase := range Phases {
		for _, a := range artifacts[phase] {
			d := ArtifactDiff{Phase: a.Phase, Collection: a.Collection, Key: a.Key, Desired: a.Payload}
			current, err := o.store.Get(ctx, a.Collection, a.Key)
			switch {
			case errors.Is(err, store.ErrNotFound):
				d.Outcome = OutcomeCreated
			case err != nil:
				d.Outcome = OutcomeFailed
				d.Reason = err.Error()
			default:
				d.Current = current
				d.Outcome = OutcomeUpdated
				if h, err := ir.ContentHash(current); err == nil && h == a.Hash {
					d.Outcome = OutcomeUnchanged
				}
			}
			diffs = append(diffs, d)
		}
	}
	return diffs, nil
}

// CompiledRules validates p and returns the rule text a run would store.
func (o *Orchestrator) CompiledRules(p Plan) (string, error) {
	cp, err := compile(p, o.compiler)
	if err != nil {
		return "", err
	}
	return cp.rulesText, nil
}
