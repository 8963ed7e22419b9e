// Package minio provides an upload endpoint backend built on the MinIO client.
//
// It serves the same actions as *storage.Client through minio-go, for
// deployments whose S3-compatible store is reached with MinIO credentials.
//
// Example:
//
//	core, err := minio.NewCore(cfg)
//	if err != nil {
//	    return err
//	}
//	handler := server.New(minio.New(core, cfg.Bucket))
package minio
