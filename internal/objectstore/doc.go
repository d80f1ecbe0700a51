// Package objectstore is the gateway to the content-addressed media bucket.
//
// Gateway exposes put, head, delete and presign against an S3-compatible
// endpoint (S3, backed by minio-go) or an in-process map (Memory) used by
// tests and dry runs. Keys follow {folder}/{code}_{hash}.mp4 for media and
// {thumbnails_folder}/{code}.jpg for posters; ObjectURL and ParseObjectURL
// convert between keys and the public https://{endpoint}/{bucket}/{key} form
// stored in the catalog.
package objectstore
