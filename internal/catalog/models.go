package catalog

import (
	"strings"
	"time"
)

// ResolutionTier buckets the vertical resolution of a source copy.
type ResolutionTier string

const (
	Tier4K      ResolutionTier = "4k"
	Tier2K      ResolutionTier = "2k"
	Tier1080p   ResolutionTier = "1080p"
	Tier720p    ResolutionTier = "720p"
	Tier480p    ResolutionTier = "480p"
	TierUnknown ResolutionTier = "unknown"
)

// tierOrder lists tiers best first.
var tierOrder = []ResolutionTier{Tier4K, Tier2K, Tier1080p, Tier720p, Tier480p, TierUnknown}

// Rank returns the position of the tier in best-first order; unknown values sort last.
func (t ResolutionTier) Rank() int {
	for idx, tier := range tierOrder {
		if tier == t {
			return idx
		}
	}
	return len(tierOrder)
}

// ParseResolutionTier maps a stored value to a tier, falling back to unknown.
func ParseResolutionTier(value string) ResolutionTier {
	normalized := ResolutionTier(strings.ToLower(strings.TrimSpace(value)))
	for _, tier := range tierOrder {
		if tier == normalized {
			return tier
		}
	}
	return TierUnknown
}

// TierForHeight buckets a frame height. Boundaries belong to the lower tier.
func TierForHeight(height int) ResolutionTier {
	switch {
	case height <= 0:
		return TierUnknown
	case height <= 480:
		return Tier480p
	case height <= 720:
		return Tier720p
	case height <= 1080:
		return Tier1080p
	case height <= 1440:
		return Tier2K
	default:
		return Tier4K
	}
}

// RuntimeMinutes converts a duration in milliseconds to whole minutes.
// A non-positive duration means the runtime was not detected.
func RuntimeMinutes(durationMS int64) (int, bool) {
	if durationMS <= 0 {
		return 0, false
	}
	return int(durationMS / 60000), true
}

// Entry is one real-world asset in the catalog.
type Entry struct {
	ID              int64
	Site            string
	Code            string
	CodeHint        string
	PageLink        string
	Title           string
	RewrittenTitle  string
	ThumbnailURL    string
	ThumbnailObject string
	ReleaseDate     string
	RuntimeMinutes  *int
	Uncensored      bool
	Status          Status
	ErrorMessage    string
	Attempts        int
	LastHeartbeat   *time.Time
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Sources is only populated by LoadSources.
	Sources []SourceCopy
}

// DisplayCode returns the enriched code, falling back to the listing hint.
func (e *Entry) DisplayCode() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return e.Code
	}
	return e.CodeHint
}

// HasImportedSource reports whether any loaded copy is confirmed downstream.
func (e *Entry) HasImportedSource() bool {
	if e == nil {
		return false
	}
	for _, src := range e.Sources {
		if src.Status == SourceImported {
			return true
		}
	}
	return false
}

// SourceCopy is one acquired instance of an entry's media.
type SourceCopy struct {
	ID          int64
	EntryID     int64
	Origin      string
	Tier        ResolutionTier
	ObjectPath  string
	FileName    string
	ByteSize    int64
	ContentHash string
	Status      SourceStatus
	Current     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Stub is a raw listing ready to be inserted as an added entry.
type Stub struct {
	CodeHint     string
	PageLink     string
	Title        string
	ThumbnailURL string
}

// RefKind names a reference metadata family.
type RefKind string

const (
	RefCategory RefKind = "category"
	RefTag      RefKind = "tag"
	RefPerson   RefKind = "person"
	RefStudio   RefKind = "studio"
)

// RefKinds lists every supported kind.
var RefKinds = []RefKind{RefCategory, RefTag, RefPerson, RefStudio}

// Ref is a category, tag, person or studio owned by one site.
type Ref struct {
	ID   int64
	Kind RefKind
	Site string
	Name string
}

// Cursor is the resumable reconciliation position.
type Cursor struct {
	Name      string
	Skip      int
	Limit     int
	UpdatedAt time.Time
}

// HealthSummary describes aggregated entry counts per lifecycle group.
type HealthSummary struct {
	Total       int
	Pending     int
	Downloading int
	Downloaded  int
	Failed      int
	Imported    int
	Deleted     int
}
