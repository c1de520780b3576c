// Package migrate is the provisioning orchestrator: it validates a
// catalog, derives the order collections must be applied in, and writes
// every artifact through a store.Client so that a second run with the
// same inputs is a no-op.
//
// # Run lifecycle
//
//	planning -> applying_schemas -> applying_indexes -> applying_rules
//	         -> applying_seeds -> done | aborted
//
// Planning checks referential integrity across the whole Plan and
// compiles the access rules. Any violation aborts the run before the
// store is touched: no EnsureInitialized, no Get, no Upsert.
//
// # Artifacts
//
// Each phase produces documents at fixed addresses:
//
//	<collection>/_schema                 one per registered collection
//	_system/required_indexes             the index plan
//	_system/security_rules_template      compiled rule text, not activated
//	<collection>/<key>                   one per seed record
//	_system/last_run_report              optional, see WithReportPersistence
//
// Every artifact goes through diff-before-write: Get, compare content hash,
// Upsert only when absent or different. The outcome is recorded as
// created, updated, unchanged, or failed. A failed artifact never stops
// the artifacts after it; it only turns the final status into aborted.
//
// Payloads never carry wall-clock time, which is what makes re-runs
// converge on identical stored state.
//
// # Ordering
//
// Collections are applied dependencies first. A collection depends on
// the collections its fields reference and on the collections its rules
// test relationships against. Cycles are legal; they are logged as
// warnings and broken by name order.
//
// # Concurrency
//
// Runs are sequential by default. WithParallelism(n) applies the artifacts
// of one phase on up to n goroutines. Phases stay strictly ordered and the
// report is sorted back into plan order, so parallel and sequential runs
// produce identical reports.
package migrate
