// Package services defines shared utilities consumed by the workflow stage
// handlers, the reconciliation engine and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp catalog entry IDs, stage names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified with errors.Is instead of by message text.
//   - IsFatal, which separates run-aborting connectivity failures from
//     per-entry and per-row failures that only degrade a run.
package services
