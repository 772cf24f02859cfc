// Package blobstore provides storage for immutable reference bundles.
//
// A BlobStore holds named, immutable blobs. Blobs are written whole with Put
// and read back through positioned reads, so a large ranks table can be
// streamed without loading it at once. Implementations must be safe for
// concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem with mmap-backed reads
//   - MemoryStore: in-process map, mostly for tests
//   - CachingStore: block-level LRU cache in front of any store
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: S3-compatible object stores via minio-go
package blobstore
