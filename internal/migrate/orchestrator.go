package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/provision/internal/ir"
	"github.com/roach88/provision/internal/policy"
	"github.com/roach88/provision/internal/store"
)

// TracerName is the instrumentation scope of orchestrator spans.
const TracerName = "github.com/roach88/provision/internal/migrate"

// Orchestrator applies Plans through a store client.
//
// An Orchestrator holds no per-run state; Run may be called repeatedly,
// but runs against the same store should not overlap.
type Orchestrator struct {
	store    store.Client
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	runIDs   RunIDGenerator
	compiler *policy.Compiler
	project  string

	parallelism   int
	persistReport bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTracer sets the tracer. Default: a no-op tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithClock sets the clock used for report timestamps. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRunIDs sets the run id generator. Default: UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(o *Orchestrator) { o.runIDs = g }
}

// WithCompiler sets the policy compiler. Default: &policy.Compiler{}.
func WithCompiler(c *policy.Compiler) Option {
	return func(o *Orchestrator) { o.compiler = c }
}

// WithProject records the project id in run reports.
func WithProject(project string) Option {
	return func(o *Orchestrator) { o.project = project }
}

// WithParallelism applies up to n artifacts of a phase concurrently.
// Values below 2 mean sequential.
func WithParallelism(n int) Option {
	return func(o *Orchestrator) { o.parallelism = n }
}

// WithReportPersistence stores each run report at _system/last_run_report.
// Default: off.
func WithReportPersistence(enabled bool) Option {
	return func(o *Orchestrator) { o.persistReport = enabled }
}

// New creates an Orchestrator writing through client.
func New(client store.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    client,
		logger:   slog.Default(),
		tracer:   noop.NewTracerProvider().Tracer(TracerName),
		now:      time.Now,
		runIDs:   UUIDv7Generator{},
		compiler: &policy.Compiler{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run validates and applies p.
//
// The returned error is non-nil only when the run could not start:
// a *PlanError from planning, or a store that failed EnsureInitialized.
// In both cases the report has status aborted and lists no artifacts.
// Per-artifact failures are reported in the RunReport, never as an error.
func (o *Orchestrator) Run(ctx context.Context, p Plan) (*RunReport, error) {
	report := &RunReport{
		RunID:     o.runIDs.Generate(),
		Project:   o.project,
		StartedAt: o.now(),
		Status:    StatusPlanning,
		Artifacts: []ArtifactResult{},
	}

	ctx, span := o.tracer.Start(ctx, "provision.run", trace.WithAttributes(
		attribute.String("provision.run_id", report.RunID),
		attribute.String("provision.project", o.project),
	))
	defer span.End()

	log := o.logger.With("run_id", report.RunID)
	log.Info("run starting", "status", report.Status)

	cp, err := compile(p, o.compiler)
	if err != nil {
		return o.abort(span, log, report, err)
	}
	report.Cycles = cp.cycles
	for _, c := range cp.cycles {
		log.Warn("dependency cycle", "collections", c.Collections)
	}

	artifacts, err := buildArtifacts(cp)
	if err != nil {
		return o.abort(span, log, report, err)
	}

	if err := o.store.EnsureInitialized(ctx); err != nil {
		return o.abort(span, log, report, fmt.Errorf("ensure initialized: %w", err))
	}

	for _, phase := range Phases {
		report.Status = phaseStatus[phase]
		log.Info("phase starting", "status", report.Status, "artifacts", len(artifacts[phase]))
		report.Artifacts = append(report.Artifacts, o.applyPhase(ctx, log, phase, artifacts[phase])...)
	}

	report.Status = StatusDone
	if failed := report.Failed(); len(failed) > 0 {
		report.Status = StatusAborted
		report.Error = fmt.Sprintf("%d artifact(s) failed", len(failed))
		span.SetStatus(codes.Error, report.Error)
	}
	report.FinishedAt = o.now()

	if o.persistReport {
		o.persist(ctx, log, report)
	}

	counts := report.Counts()
	span.SetAttributes(attribute.String("provision.status", string(report.Status)))
	log.Info("run finished",
		"status", report.Status,
		"created", counts[OutcomeCreated],
		"updated", counts[OutcomeUpdated],
		"unchanged", counts[OutcomeUnchanged],
		"failed", counts[OutcomeFailed],
	)
	return report, nil
}

func (o *Orchestrator) abort(span trace.Span, log *slog.Logger, report *RunReport, err error) (*RunReport, error) {
	report.Status = StatusAborted
	report.Error = err.Error()
	report.FinishedAt = o.now()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	log.Error("run aborted", "error", err)
	return report, err
}

func (o *Orchestrator) persist(ctx context.Context, log *slog.Logger, report *RunReport) {
	payload, err := report.Payload()
	if err == nil {
		err = o.store.Upsert(ctx, ir.SystemCollection, ir.LastRunReportKey, payload)
	}
	if err != nil {
		// Artifact outcomes stand; only the report copy is lost.
		log.Warn("persist run report failed", "error", err)
		msg := "persist run report: " + err.Error()
		if report.Error != "" {
			msg = report.Error + "; " + msg
		}
		report.Error = msg
	}
}

func (o *Orchestrator) applyPhase(ctx context.Context, log *slog.Logger, phase Phase, artifacts []artifact) []ArtifactResult {
	ctx, span := o.tracer.Start(ctx, "provision.phase", trace.WithAttributes(
		attribute.String("provision.phase", string(phase)),
		attribute.Int("provision.artifacts", len(artifacts)),
	))
	defer span.End()

	results := make([]ArtifactResult, len(artifacts))
	if o.parallelism < 2 {
		for i, a := range artifacts {
			results[i] = o.apply(ctx, log, a)
		}
		return results
	}

	// Each goroutine owns one slot of results, so plan order survives.
	var g errgroup.Group
	g.SetLimit(o.parallelism)
	for i, a := range artifacts {
		g.Go(func() error {
			results[i] = o.apply(ctx, log, a)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// apply runs diff-before-write for one artifact.
func (o *Orchestrator) apply(ctx context.Context, log *slog.Logger, a artifact) ArtifactResult {
	ctx, span := o.tracer.Start(ctx, "provision.artifact", trace.WithAttributes(
		attribute.String("provision.phase", string(a.Phase)),
		attribute.String("provision.collection", a.Collection),
		attribute.String("provision.key", a.Key),
	))
	defer span.End()

	res := ArtifactResult{
		Phase:       a.Phase,
		Collection:  a.Collection,
		Key:         a.Key,
		ContentHash: a.Hash,
	}
	fail := func(err error) ArtifactResult {
		res.State = StateFailed
		res.Outcome = OutcomeFailed
		res.Reason = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("artifact failed", "target", res.Target(), "error", err)
		return res
	}

	outcome, err := o.outcome(ctx, a)
	if err != nil {
		return fail(err)
	}
	if outcome != OutcomeUnchanged {
		if err := o.store.Upsert(ctx, a.Collection, a.Key, a.Payload); err != nil {
			return fail(err)
		}
	}

	res.State = StateApplied
	res.Outcome = outcome
	span.SetAttributes(attribute.String("provision.outcome", string(outcome)))
	log.Debug("artifact applied", "target", res.Target(), "outcome", outcome)
	return res
}

// outcome compares the stored document with the artifact without writing.
func (o *Orchestrator) outcome(ctx context.Context, a artifact) (Outcome, error) {
	current, err := o.store.Get(ctx, a.Collection, a.Key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return OutcomeCreated, nil
	case err != nil:
		return OutcomeFailed, err
	}
	if h, err := ir.ContentHash(current); err == nil && h == a.Hash {
		return OutcomeUnchanged, nil
	}
	return OutcomeUpdated, nil
}
