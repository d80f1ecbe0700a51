package stage

import (
	"errors"
	"fmt"
	"strings"

	"vidharvest/internal/services"
)

const maxFailureMessage = 500

// FailureMessage renders err as the error_message stored on a failed entry.
// Connectivity failures are prefixed so operators can tell them from
// per-entry problems in queue listings.
func FailureMessage(stageName string, err error) string {
	if err == nil {
		return fmt.Sprintf("%s failed without error detail", stageName)
	}
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = fmt.Sprintf("%s failed", stageName)
	}
	if errors.Is(err, services.ErrConnectivity) && !strings.HasPrefix(message, "connectivity") {
		message = "connectivity: " + message
	}
	if len(message) > maxFailureMessage {
		message = message[:maxFailureMessage]
	}
	return message
}
