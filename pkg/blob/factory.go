package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Backend selects the blob storage implementation.
type Backend string

const (
	BackendFS  Backend = "fs"
	BackendS3  Backend = "s3"
	BackendGCS Backend = "gcs"
)

// NewStoreFromEnv creates a blob store from environment configuration.
//
//   - BLOB_BACKEND: "fs" (default), "s3", or "gcs"
//   - DATA_DIR: base directory for the filesystem backend (default "data")
//   - BLOB_S3_BUCKET, BLOB_S3_REGION (or AWS_REGION), BLOB_S3_ENDPOINT,
//     BLOB_S3_PREFIX for S3
//   - BLOB_GCS_BUCKET, BLOB_GCS_PREFIX for GCS
func NewStoreFromEnv(ctx context.Context) (Store, error) {
	backend := Backend(os.Getenv("BLOB_BACKEND"))
	if backend == "" {
		backend = BackendFS
	}

	switch backend {
	case BackendFS:
		dataDir := os.Getenv("DATA_DIR")
		if dataDir == "" {
			dataDir = "data"
		}
		return NewFileStore(filepath.Join(dataDir, "blobs"))
	case BackendS3:
		bucket := os.Getenv("BLOB_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("BLOB_S3_BUCKET is required for the s3 backend")
		}
		region := os.Getenv("BLOB_S3_REGION")
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3Config{
			Bucket:   bucket,
			Region:   region,
			Endpoint: os.Getenv("BLOB_S3_ENDPOINT"),
			Prefix:   os.Getenv("BLOB_S3_PREFIX"),
		})
	case BackendGCS:
		bucket := os.Getenv("BLOB_GCS_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("BLOB_GCS_BUCKET is required for the gcs backend")
		}
		return NewGCSStore(ctx, GCSConfig{
			Bucket: bucket,
			Prefix: os.Getenv("BLOB_GCS_PREFIX"),
		})
	default:
		return nil, fmt.Errorf("unsupported blob backend: %s", backend)
	}
}
