package archive

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Uploader uploads files to one bucket with the minio client.
type S3Uploader struct {
	client    *minio.Client
	bucket    string
	keyPrefix string
}

// NewS3Uploader builds an uploader from cfg. BucketURL has the form
// s3://bucket/prefix, prefix optional.
func NewS3Uploader(cfg Config) (*S3Uploader, error) {
	bucket, prefix, err := parseS3BucketURL(cfg.BucketURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("s3: access key and secret key are required")
	}
	endpoint, secure, err := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	return &S3Uploader{client: client, bucket: bucket, keyPrefix: prefix}, nil
}

// UploadFile uploads localPath as <prefix>/<objectKey>.
func (u *S3Uploader) UploadFile(ctx context.Context, localPath, objectKey string) error {
	key := objectKey
	if u.keyPrefix != "" {
		key = path.Join(u.keyPrefix, objectKey)
	}
	_, err := u.client.FPutObject(ctx, u.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType(localPath),
	})
	if err != nil {
		return fmt.Errorf("s3: upload %s: %w", key, err)
	}
	return nil
}

func contentType(localPath string) string {
	switch strings.ToLower(filepath.Ext(localPath)) {
	case ".jsonl":
		return "application/x-ndjson"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// splitEndpoint returns the host:port minio expects and whether to use TLS.
// A scheme in the endpoint overrides useSSL.
func splitEndpoint(endpoint string, useSSL bool) (string, bool, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "s3.amazonaws.com", true, nil
	}
	if !strings.Contains(endpoint, "://") {
		return strings.TrimRight(endpoint, "/"), useSSL, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("s3: parse endpoint: %w", err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("s3: endpoint %q has no host", endpoint)
	}
	return u.Host, u.Scheme == "https", nil
}

func parseS3BucketURL(raw string) (bucket string, prefix string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("s3: parse bucket-url: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("s3: bucket-url must use s3:// scheme")
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", "", fmt.Errorf("s3: bucket-url missing bucket name")
	}

	prefix = strings.Trim(strings.TrimSpace(u.Path), "/")
	return u.Host, prefix, nil
}
