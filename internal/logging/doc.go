// Package logging assembles the structured slog loggers shared by the CLI,
// the daemon and every pipeline component.
//
// Console output is human oriented and prefixes each line with the component
// and, when present, the catalog entry and stage taken from the context. A JSON
// copy of every record is appended to vidharvest.log so acquisition runs can be
// audited after the fact. Use NewComponentLogger and WithContext instead of
// hand-rolled slog setup so fields keep the same keys everywhere.
package logging
