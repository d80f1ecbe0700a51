// Package ingest turns site listings into catalog stubs and enriches them
// from detail pages.
//
// Ingest dedupes listings by normalized page link, both within a batch and
// against the catalog, and inserts only unseen links as added entries.
// Enrich merges detail fields into an added or parsed entry, attaches
// references that already exist for the site (unknown names are reported,
// never created), and resolves code collisions by discarding the newer
// placeholder in favour of the entry that already owns the code.
package ingest
