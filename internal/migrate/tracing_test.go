package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/provision/internal/store"
	"github.com/roach88/provision/internal/testutil"
)

func recordSpans(t *testing.T) (*tracetest.SpanRecorder, Option) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return sr, WithTracer(tp.Tracer(TracerName))
}

func attr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestRunSpans(t *testing.T) {
	sr, withTracer := recordSpans(t)
	_, err := newTestOrchestrator(store.NewMemory(), withTracer).Run(context.Background(), widgetsPlan(t))
	require.NoError(t, err)

	byName := map[string][]sdktrace.ReadOnlySpan{}
	for _, s := range sr.Ended() {
		byName[s.Name()] = append(byName[s.Name()], s)
	}
	require.Len(t, byName["provision.run"], 1)
	assert.Len(t, byName["provision.phase"], len(Phases))
	assert.Len(t, byName["provision.artifact"], 4)

	run := byName["provision.run"][0]
	id, ok := attr(run, "provision.run_id")
	require.True(t, ok)
	assert.Equal(t, "run-1", id.AsString())
	status, ok := attr(run, "provision.status")
	require.True(t, ok)
	assert.Equal(t, string(StatusDone), status.AsString())

	for _, phase := range byName["provision.phase"] {
		assert.Equal(t, run.SpanContext().SpanID(), phase.Parent().SpanID())
	}
	for _, a := range byName["provision.artifact"] {
		outcome, ok := attr(a, "provision.outcome")
		require.True(t, ok)
		assert.Equal(t, string(OutcomeCreated), outcome.AsString())
	}
}

func TestRunSpanRecordsFailures(t *testing.T) {
	sr, withTracer := recordSpans(t)
	rec := testutil.NewRecordingStore()
	rec.FailUpsert("widgets", "sample_widget", store.ErrPermissionDenied)

	report, err := newTestOrchestrator(rec, withTracer).Run(context.Background(), widgetsPlan(t))
	require.NoError(t, err)
	require.Equal(t, StatusAborted, report.Status)

	var failed []sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		if s.Status().Code == codes.Error {
			failed = append(failed, s)
		}
	}
	names := make([]string, len(failed))
	for i, s := range failed {
		names[i] = s.Name()
	}
	assert.ElementsMatch(t, []string{"provision.artifact", "provision.run"}, names)
}
