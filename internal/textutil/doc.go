// Package textutil holds small string helpers shared by the storage layers.
//
// Object keys and file names are built from entry codes scraped from third
// party pages, so they pass through SanitizeKeySegment before reaching the
// bucket.
package textutil
