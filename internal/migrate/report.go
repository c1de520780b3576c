package migrate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/provision/internal/ir"
)

// Status is the global state of a run.
type Status string

const (
	StatusPlanning        Status = "planning"
	StatusApplyingSchemas Status = "applying_schemas"
	StatusApplyingIndexes Status = "applying_indexes"
	StatusApplyingRules   Status = "applying_rules"
	StatusApplyingSeeds   Status = "applying_seeds"
	StatusDone            Status = "done"
	StatusAborted         Status = "aborted"
)

var phaseStatus = map[Phase]Status{
	PhaseSchemas: StatusApplyingSchemas,
	PhaseIndexes: StatusApplyingIndexes,
	PhaseRules:   StatusApplyingRules,
	PhaseSeeds:   StatusApplyingSeeds,
}

// State is the terminal state of one artifact.
type State string

const (
	StateApplied State = "applied"
	StateFailed  State = "failed"
)

// Outcome says what happened to an artifact's stored document.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFailed    Outcome = "failed"
)

// ArtifactResult is one line of a run report.
type ArtifactResult struct {
	Phase       Phase   `json:"phase"`
	Collection  string  `json:"collection"`
	Key         string  `json:"key"`
	State       State   `json:"state"`
	Outcome     Outcome `json:"outcome"`
	Reason      string  `json:"reason,omitempty"`
	ContentHash string  `json:"content_hash"`
}

// Target returns "collection/key".
func (r ArtifactResult) Target() string {
	return r.Collection + "/" + r.Key
}

// RunReport records one run. A fresh report is produced for every run.
type RunReport struct {
	RunID      string           `json:"run_id"`
	Project    string           `json:"project,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Status     Status           `json:"status"`
	Artifacts  []ArtifactResult `json:"artifacts"`
	Cycles     []CycleWarning   `json:"cycles,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Counts tallies artifacts by outcome.
func (r *RunReport) Counts() map[Outcome]int {
	counts := make(map[Outcome]int, 4)
	for _, a := range r.Artifacts {
		counts[a.Outcome]++
	}
	return counts
}

// Failed returns the failed artifacts.
func (r *RunReport) Failed() []ArtifactResult {
	var out []ArtifactResult
	for _, a := range r.Artifacts {
		if a.State == StateFailed {
			out = append(out, a)
		}
	}
	return out
}

// Find returns the result for collection/key.
func (r *RunReport) Find(collection, key string) (ArtifactResult, bool) {
	for _, a := range r.Artifacts {
		if a.Collection == collection && a.Key == key {
			return a, true
		}
	}
	return ArtifactResult{}, false
}

// Payload converts the report into a storable document.
func (r *RunReport) Payload() (ir.IRObject, error) {
	cp := *r
	if cp.Artifacts == nil {
		cp.Artifacts = []ArtifactResult{}
	}
	data, err := json.Marshal(&cp)
	if err != nil {
		return nil, fmt.Errorf("encode run report: %w", err)
	}
	v, err := ir.UnmarshalIRValue(data)
	if err != nil {
		return nil, fmt.Errorf("encode run report: %w", err)
	}
	return v.(ir.IRObject), nil
}

// ReportFromPayload decodes a report stored by Payload.
func ReportFromPayload(payload ir.IRObject) (*RunReport, error) {
	data, err := ir.MarshalCanonical(payload)
	if err != nil {
		return nil, fmt.Errorf("decode run report: %w", err)
	}
	var r RunReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode run report: %w", err)
	}
	return &r, nil
}
