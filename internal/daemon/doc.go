// Package daemon coordinates the long-running vidharvest process.
//
// It wires the catalog store, the acquisition workflow, the periodic
// reconciler and the operator metrics listener into a single lifecycle with
// flock-based locking to prevent multiple instances against one data
// directory.
//
// Keep orchestration logic here: individual steps live in their own packages
// while the daemon focuses on startup, shutdown and scheduling.
package daemon
