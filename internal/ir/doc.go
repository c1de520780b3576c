// Package ir holds the data model shared by every provisioning component:
// collection schemas, index specs, access rules with their predicate trees,
// seed records, and the constrained value types used for document payloads.
//
// ir imports nothing internal. Every other internal package imports ir,
// which keeps it the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NO float types in payloads, numbers are int64
//   - NO null in payloads, absent fields are omitted
//   - Payloads serialize to RFC 8785 canonical JSON so content hashes are
//     reproducible across runs and hosts
//   - Artifact payloads never carry wall-clock time
//   - All JSON tags use snake_case
package ir
