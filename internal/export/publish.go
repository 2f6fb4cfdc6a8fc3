package export

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// PresignTTL is how long a published archive link stays valid.
const PresignTTL = time.Hour

// Publisher uploads an export and returns a link to fetch it.
type Publisher interface {
	Publish(ctx context.Context, key string, result *Result) (string, error)
}

// MinioConfig locates an S3-compatible bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioPublisher stores exports in object storage and hands out presigned
// download links.
type MinioPublisher struct {
	client *minio.Client
	bucket string
}

// NewMinioPublisher connects to the bucket, creating it when missing.
func NewMinioPublisher(ctx context.Context, cfg MinioConfig) (*MinioPublisher, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &MinioPublisher{client: client, bucket: cfg.Bucket}, nil
}

func (p *MinioPublisher) Publish(ctx context.Context, key string, result *Result) (string, error) {
	_, err := p.client.PutObject(ctx, p.bucket, key, bytes.NewReader(result.Data), int64(len(result.Data)), minio.PutObjectOptions{
		ContentType:        result.MimeType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", result.Filename),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	link, err := p.client.PresignedGetObject(ctx, p.bucket, key, PresignTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return link.String(), nil
}
