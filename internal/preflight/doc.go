// Package preflight provides readiness checks for the binaries, directories
// and remote services vidharvest depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before starting workers and refuses to start
//     when a check fails.
//   - The CLI "queue health" command prints the same results next to catalog
//     counts.
//
// Checks for optional services are skipped when they are not configured.
package preflight
