package services

import (
	"errors"
	"fmt"
	"strings"

	"vidharvest/internal/catalog"
)

var (
	ErrExtraction           = errors.New("extraction failed")
	ErrTransfer             = errors.New("transfer failed")
	ErrProbe                = errors.New("probe failed")
	ErrDuplicateIdentity    = errors.New("duplicate identity")
	ErrFeedValidation       = errors.New("feed validation error")
	ErrStorageInconsistency = errors.New("storage inconsistency")
	ErrConnectivity         = errors.New("connectivity failure")
	ErrExternalTool         = errors.New("external tool error")
	ErrValidation           = errors.New("validation error")
	ErrConfiguration        = errors.New("configuration error")
	ErrNotFound             = errors.New("not found")
	ErrTimeout              = errors.New("timeout")
	ErrTransient            = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureStatus maps a stage error to the entry status the workflow manager
// should persist after the stage fails.
func FailureStatus(err error) catalog.Status {
	return catalog.StatusFailed
}

// Retryable reports whether a failed entry may be claimed again by the
// scheduler. Configuration and validation problems need operator action.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrValidation):
		return false
	default:
		return true
	}
}

// IsFatal reports whether err must abort the whole run rather than a single
// entry or feed row. Only loss of the catalog or object store qualifies.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConnectivity)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
