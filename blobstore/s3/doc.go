// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("references/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	ref, err := session.LoadReferenceFromStore(ctx, store, "immgen")
//
// # Features
//
//   - Range reads for partial fetches of large ranks tables
//   - Multipart uploads with CRC32C checksums
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
