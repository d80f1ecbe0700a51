// Package stage defines the contract between the workflow manager and the
// work it runs for each claimed catalog entry.
package stage

import (
	"context"

	"vidharvest/internal/catalog"
)

// Handler describes the contract the workflow manager needs from each stage.
// Prepare runs before heartbeats start and may reject the entry outright;
// Execute does the work. Neither changes the entry status; the manager does.
type Handler interface {
	Prepare(context.Context, *catalog.Entry) error
	Execute(context.Context, *catalog.Entry) error
	HealthCheck(context.Context) Health
}
