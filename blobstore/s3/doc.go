// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("cthyb/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//
//	solver, err := cthyb.New(params, cthyb.WithDiagnostics(store))
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart streaming uploads
//   - Automatic pagination for listing
//   - Configurable prefix to keep runs of several users apart
package s3
