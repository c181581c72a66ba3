package archive

import "context"

// Config controls uploading case outputs to S3-compatible object storage.
type Config struct {
	Enabled   bool
	BucketURL string // s3://bucket/prefix

	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool

	// SnapshotIndex also uploads a snapshot of the run index after each case.
	SnapshotIndex bool
}

// Snapshotter is the run index snapshot contract.
type Snapshotter interface {
	DBPath() string
	SnapshotTo(dstPath string) error
}

// Uploader stores one local file under an object key.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, objectKey string) error
}
