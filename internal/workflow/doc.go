// Package workflow drives catalog entries through acquisition.
//
// The Manager runs a fixed pool of workers. Each worker owns one stage
// handler (and therefore one browser session), atomically claims the next
// parsed or retryable failed entry, and runs the handler while a heartbeat
// loop keeps the claim fresh. Worker 0 also reclaims entries whose heartbeat
// expired, so a crashed process never strands work in downloading.
//
// Entries end each run as downloaded or failed. Failed entries are claimed
// again after the configured retry delay until their attempt budget runs out;
// configuration and validation failures spend the budget immediately.
package workflow
