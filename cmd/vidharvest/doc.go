// Package main hosts the vidharvest CLI entrypoint and command graph.
//
// The Cobra command tree drives crawling, enrichment, acquisition,
// reconciliation, export and catalog maintenance against the local catalog.
// The run command hosts the long-running daemon. Configuration resolution
// and process wiring live in the shared command context so subcommands stay
// declarative; behaviour belongs in the internal packages.
package main
