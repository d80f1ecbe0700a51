// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Runner: command execution seam so probes can be faked in tests
//
// Entry points:
//   - Inspect: probes a file on disk
//   - InspectReader: pipes an in-memory payload to ffprobe over stdin
//
// Helper methods on Result expose the video height and the container duration
// in milliseconds, the two values the downloader needs.
package ffprobe
