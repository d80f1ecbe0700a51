// Package catalog persists catalog entries, their acquired source copies,
// reference metadata and the reconciliation cursor in SQLite.
//
// It owns the entry lifecycle (Transition) and the per-copy acquisition
// lifecycle (TransitionSource), enforces identity rules through unique
// indexes (page_link always, code among entries that are not deleted), and
// exposes the atomic claim/heartbeat/reclaim primitives the workflow manager
// uses so no two workers ever hold the same entry. Entry updates carry an
// optimistic version; a stale write returns ErrConcurrentUpdate.
//
// Lookups that find nothing return (nil, nil). References are never loaded
// implicitly; callers batch-fetch them with ReferencesFor and attach sources
// with LoadSources.
package catalog
