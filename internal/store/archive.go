package store

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pikomusic/studio/internal/logger"
	"github.com/pikomusic/studio/internal/recorder"
)

// MinioConfig locates the recording archive.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Archive uploads finished recordings to object storage.
type Archive struct {
	client *minio.Client
	bucket string
}

// NewArchive connects and creates the bucket when it is missing.
func NewArchive(ctx context.Context, cfg MinioConfig) (*Archive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info("archive: bucket created", logger.String("bucket", cfg.Bucket))
	}
	return &Archive{client: client, bucket: cfg.Bucket}, nil
}

// ObjectKey places a recording under its kind and day.
func ObjectKey(res *recorder.Result, at time.Time) string {
	return path.Join("recordings", at.UTC().Format("2006/01/02"), res.ID+"-"+res.Filename)
}

// Upload stores res and returns its object key.
func (a *Archive) Upload(ctx context.Context, res *recorder.Result, at time.Time) (string, error) {
	key := ObjectKey(res, at)
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(res.Data), int64(len(res.Data)), minio.PutObjectOptions{
		ContentType:        res.MimeType,
		ContentDisposition: fmt.Sprintf(`attachment; filename="%s"`, res.Filename),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

// DownloadURL returns a time-limited link to key.
func (a *Archive) DownloadURL(ctx context.Context, key, filename string, expiry time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	u, err := a.client.PresignedGetObject(ctx, a.bucket, key, expiry, params)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}
