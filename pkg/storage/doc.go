// Package storage keeps derived artifacts (collages, frame grids).
//
// Two backends implement ArtifactStore:
//   - FileStore writes under a local directory with atomic temp-file renames
//   - MinioStore uploads to an S3-compatible bucket, created on first use
//
// Artifact names are flat file names such as "alice_CxYz_collage.jpg"; any
// name containing a path separator or ".." is rejected.
//
// Usage:
//
//	store, err := storage.New(ctx, cfg.Storage)
//	if err != nil {
//	    return err
//	}
//	path, err := store.Put(ctx, "alice_CxYz_collage.jpg", bytes.NewReader(jpg), int64(len(jpg)), "image/jpeg")
package storage
