package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Status represents the lifecycle of a catalog entry.
type Status string

const (
	StatusAdded       Status = "added"
	StatusParsed      Status = "parsed"
	StatusDownloading Status = "downloading"
	StatusDownloaded  Status = "downloaded"
	StatusFailed      Status = "failed"
	StatusImported    Status = "imported"
	StatusDeleted     Status = "deleted"
)

var allStatuses = []Status{
	StatusAdded,
	StatusParsed,
	StatusDownloading,
	StatusDownloaded,
	StatusFailed,
	StatusImported,
	StatusDeleted,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ParseStatus converts a string into a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[normalized]
	return normalized, ok
}

// AllStatuses returns a copy of every entry status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ErrInvalidTransition is returned when a status change is not permitted.
var ErrInvalidTransition = errors.New("invalid status transition")

type statusTransition struct {
	from Status
	to   Status
}

var allowedTransitions = map[statusTransition]struct{}{
	{StatusAdded, StatusParsed}:           {},
	{StatusParsed, StatusDownloading}:     {},
	{StatusDownloading, StatusDownloaded}: {},
	{StatusDownloading, StatusFailed}:     {},
	{StatusFailed, StatusDownloading}:     {},
	{StatusDownloaded, StatusImported}:    {},
	{StatusImported, StatusDeleted}:       {},
	{StatusAdded, StatusDeleted}:          {},
	{StatusParsed, StatusDeleted}:         {},
}

// Transition validates a status change. It returns false without error when
// the entry is already in the target status.
func Transition(from, to Status) (bool, error) {
	if from == to {
		if _, ok := statusSet[to]; !ok {
			return false, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
		}
		return false, nil
	}
	if _, ok := allowedTransitions[statusTransition{from: from, to: to}]; !ok {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return true, nil
}

// SourceStatus is the per-copy acquisition lifecycle.
type SourceStatus string

const (
	SourceSaved    SourceStatus = "saved"
	SourceImported SourceStatus = "imported"
	SourceDeleted  SourceStatus = "deleted"
)

// TransitionSource validates a copy status change, treating repeats as no-ops.
func TransitionSource(from, to SourceStatus) (bool, error) {
	switch {
	case from == to:
		return false, nil
	case from == SourceSaved && to == SourceImported:
		return true, nil
	case from == SourceImported && to == SourceDeleted:
		return true, nil
	default:
		return false, fmt.Errorf("%w: source %s -> %s", ErrInvalidTransition, from, to)
	}
}
