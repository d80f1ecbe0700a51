// Package metrics owns the Prometheus collectors reported by ingestion,
// acquisition, thumbnail mirroring and reconciliation, and the operator HTTP
// listener that exposes them.
//
// Collectors live on an explicit registry so tests and multiple App instances
// never collide on the default one. A nil *Collectors is valid and records
// nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vidharvest"

// Collectors groups every metric the process exports.
type Collectors struct {
	Registry *prometheus.Registry

	RefCacheHits          prometheus.Counter
	RefCacheMisses        prometheus.Counter
	EntriesIngested       *prometheus.CounterVec
	Enrichments           *prometheus.CounterVec
	ExtractionStates      *prometheus.CounterVec
	Acquisitions          *prometheus.CounterVec
	AcquiredBytes         prometheus.Counter
	ThumbnailTransfers    *prometheus.CounterVec
	ReconcileDeleted      prometheus.Counter
	ReconcileSkipped      *prometheus.CounterVec
	ReconcileInconsistent prometheus.Counter
	ReconcileDeleteFailed prometheus.Counter
	FeedRowsProcessed     prometheus.Counter
}

// New registers all collectors on a fresh registry, plus the Go runtime and
// process collectors.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collectors{
		Registry: reg,
		RefCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ref_cache_hits_total",
			Help:      "Reference lookups answered from the LRU cache.",
		}),
		RefCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ref_cache_misses_total",
			Help:      "Reference lookups that went to the catalog.",
		}),
		EntriesIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_ingested_total",
			Help:      "Stub entries created from site listings.",
		}, []string{"site"}),
		Enrichments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichments_total",
			Help:      "Detail enrichment attempts by outcome.",
		}, []string{"outcome"}),
		ExtractionStates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_final_state_total",
			Help:      "Stream extractions by the state they ended in.",
		}, []string{"state"}),
		Acquisitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisitions_total",
			Help:      "Acquisition attempts by outcome.",
		}, []string{"outcome"}),
		AcquiredBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquired_bytes_total",
			Help:      "Media bytes transferred into object storage.",
		}),
		ThumbnailTransfers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thumbnail_transfers_total",
			Help:      "Poster mirroring attempts by result.",
		}, []string{"result"}),
		ReconcileDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_deleted_total",
			Help:      "Source copies deleted after confirmed storage absence.",
		}),
		ReconcileSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_skipped_total",
			Help:      "Feed rows skipped by reason.",
		}, []string{"reason"}),
		ReconcileInconsistent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_inconsistent_total",
			Help:      "Objects still present after a successful delete call.",
		}),
		ReconcileDeleteFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_delete_failures_total",
			Help:      "Object deletions rejected by storage.",
		}),
		FeedRowsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_rows_processed_total",
			Help:      "Distribution feed rows examined by reconciliation.",
		}),
	}
}

// RefLookup records a reference cache hit or miss.
func (c *Collectors) RefLookup(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.RefCacheHits.Inc()
		return
	}
	c.RefCacheMisses.Inc()
}

// Ingested records stubs created for site.
func (c *Collectors) Ingested(site string, count int) {
	if c == nil || count <= 0 {
		return
	}
	c.EntriesIngested.WithLabelValues(site).Add(float64(count))
}

// Enriched records one enrichment outcome.
func (c *Collectors) Enriched(outcome string) {
	if c == nil {
		return
	}
	c.Enrichments.WithLabelValues(outcome).Inc()
}

// ExtractionEnded records the state an extraction stopped in.
func (c *Collectors) ExtractionEnded(state string) {
	if c == nil {
		return
	}
	c.ExtractionStates.WithLabelValues(state).Inc()
}

// Acquired records one acquisition outcome and the bytes stored.
func (c *Collectors) Acquired(outcome string, bytes int64) {
	if c == nil {
		return
	}
	c.Acquisitions.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		c.AcquiredBytes.Add(float64(bytes))
	}
}

// ThumbnailTransferred records one poster transfer result.
func (c *Collectors) ThumbnailTransferred(result string) {
	if c == nil {
		return
	}
	c.ThumbnailTransfers.WithLabelValues(result).Inc()
}

// ReconcileRun adds the totals of one reconciliation run.
func (c *Collectors) ReconcileRun(deleted, inconsistent, deleteFailures, feedRows int, skipped map[string]int) {
	if c == nil {
		return
	}
	c.ReconcileDeleted.Add(float64(deleted))
	c.ReconcileInconsistent.Add(float64(inconsistent))
	c.ReconcileDeleteFailed.Add(float64(deleteFailures))
	c.FeedRowsProcessed.Add(float64(feedRows))
	for reason, count := range skipped {
		c.ReconcileSkipped.WithLabelValues(reason).Add(float64(count))
	}
}
