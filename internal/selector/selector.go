// Package selector chooses the authoritative copy among an entry's sources.
package selector

import (
	"strings"

	"vidharvest/internal/catalog"
	"vidharvest/internal/config"
)

// Policy decides when a copy not yet imported may replace an imported one.
type Policy string

const (
	// PolicyStrict requires a strictly better resolution to supersede.
	PolicyStrict Policy = config.SupersessionStrict
	// PolicyAllowEqual also lets an equal resolution supersede.
	PolicyAllowEqual Policy = config.SupersessionAllowEqual
)

// ParsePolicy maps a configured value to a Policy, defaulting to strict.
func ParsePolicy(value string) Policy {
	if Policy(strings.ToLower(strings.TrimSpace(value))) == PolicyAllowEqual {
		return PolicyAllowEqual
	}
	return PolicyStrict
}

// exportRank lists exportable tiers best first.
var exportRank = []catalog.ResolutionTier{
	catalog.Tier4K,
	catalog.Tier2K,
	catalog.Tier1080p,
	catalog.Tier720p,
}

func rank(tier catalog.ResolutionTier) (int, bool) {
	for idx, candidate := range exportRank {
		if candidate == tier {
			return idx, true
		}
	}
	return 0, false
}

// Eligible reports whether src may represent its entry downstream.
func Eligible(src catalog.SourceCopy) bool {
	if src.Status == catalog.SourceDeleted {
		return false
	}
	_, ok := rank(src.Tier)
	return ok
}

// Select returns the copy that should represent the entry, or nil when no
// copy is eligible. Ties go to the earliest acquired copy.
func Select(sources []catalog.SourceCopy, policy Policy) *catalog.SourceCopy {
	var imported, pending *catalog.SourceCopy
	for i := range sources {
		src := &sources[i]
		if !Eligible(*src) {
			continue
		}
		if src.Status == catalog.SourceImported {
			imported = better(imported, src)
		} else {
			pending = better(pending, src)
		}
	}

	switch {
	case imported == nil:
		return pending
	case pending == nil:
		return imported
	}

	importedRank, _ := rank(imported.Tier)
	pendingRank, _ := rank(pending.Tier)
	if pendingRank < importedRank {
		return pending
	}
	if pendingRank == importedRank && policy == PolicyAllowEqual {
		return pending
	}
	return imported
}

func better(current, candidate *catalog.SourceCopy) *catalog.SourceCopy {
	if current == nil {
		return candidate
	}
	currentRank, _ := rank(current.Tier)
	candidateRank, _ := rank(candidate.Tier)
	switch {
	case candidateRank < currentRank:
		return candidate
	case candidateRank > currentRank:
		return current
	}
	if earlier(candidate, current) {
		return candidate
	}
	return current
}

func earlier(a, b *catalog.SourceCopy) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
