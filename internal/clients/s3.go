package clients

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
	Prefix          string
	URLExpiry       time.Duration
}

type S3Client struct {
	raw       *minio.Client
	bucket    string
	prefix    string
	urlExpiry time.Duration
}

func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.Bucket, err)
		}
	}

	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = 30 * time.Minute
	}

	return &S3Client{
		raw:       client,
		bucket:    cfg.Bucket,
		prefix:    cfg.Prefix,
		urlExpiry: expiry,
	}, nil
}

// Store uploads an xlsx export and returns a presigned download URL.
func (c *S3Client) Store(ctx context.Context, fileName string, data []byte) (StoredFile, error) {
	if c.raw == nil {
		return StoredFile{}, fmt.Errorf("s3 client is nil")
	}

	key := c.prefix + uuid.NewString() + "_" + filepath.Base(fileName)

	_, err := c.raw.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:        xlsxContentType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", filepath.Base(fileName)),
	})
	if err != nil {
		return StoredFile{}, fmt.Errorf("put object %q failed: %w", key, err)
	}

	u, err := c.raw.PresignedGetObject(ctx, c.bucket, key, c.urlExpiry, nil)
	if err != nil {
		return StoredFile{}, fmt.Errorf("presign get object %q failed: %w", key, err)
	}

	return StoredFile{Name: key, URL: u.String()}, nil
}
