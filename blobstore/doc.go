// Package blobstore provides the storage abstraction for solver
// diagnostics: perturbation-order histograms, subspace summaries and run
// records.
//
// BlobStore is the interface for reading and writing named blobs.
// Implementations must be safe for concurrent use, since parallel chains
// share one store.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests and short runs
//   - LocalStore: local file system with atomic renames
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// # Usage
//
//	store := blobstore.NewLocalStore("./diagnostics")
//	err := store.Put(ctx, "run-1/pert_order.json.zst", data)
//	data, err := blobstore.ReadAll(ctx, store, "run-1/pert_order.json.zst")
package blobstore
