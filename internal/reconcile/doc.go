// Package reconcile garbage-collects acquired media once the distribution
// platform reports it has re-published the same bytes.
//
// Each feed row names a content hash. A copy is only collected when the
// catalog holds it as imported; the object is deleted, then probed, and the
// copy is marked deleted only when the probe confirms the object is gone.
// Everything else is recorded as a skip, a delete failure, or a storage
// inconsistency, and never aborts the run. Loss of the catalog or the object
// store does.
//
// RunIncremental processes one page from a persisted cursor; Sweep walks the
// whole feed.
package reconcile
