// Package download turns a direct media URL into a stored, hashed and probed
// source copy.
//
// The body is streamed in fixed-size chunks into memory while an MD5 digest
// is computed alongside. Container metadata is probed over ffprobe's stdin
// first and from a temporary file when that yields nothing. Probe failures
// never fail the acquisition; they are reported on Result.ProbeErr. The
// object is written under {folder}/{code}_{hash}.mp4 so retries overwrite
// identical bytes, and the copy is appended to the entry as saved.
package download
