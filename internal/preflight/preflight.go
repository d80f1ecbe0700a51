package preflight

import (
	"context"

	"vidharvest/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// RunAll executes all applicable preflight checks for the given config.
// A nil bucket skips the object store check.
func RunAll(ctx context.Context, cfg *config.Config, bucket BucketPinger) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}

	for _, status := range CheckSystemDeps(cfg) {
		if status.Optional && !status.Available {
			continue
		}
		detail := status.Detail
		if status.Available {
			detail = status.Command + " (found)"
		}
		results = append(results, Result{Name: status.Name, Passed: status.Available, Detail: detail})
	}

	if bucket != nil {
		results = append(results, CheckObjectStore(ctx, bucket, cfg.Storage.Bucket))
	}
	if cfg.Feed.Endpoint != "" {
		results = append(results, CheckFeed(ctx, cfg.Feed))
	}
	return results
}
