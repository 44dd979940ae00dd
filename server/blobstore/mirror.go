package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// MirrorConfig names an R2 (S3-compatible) bucket to back up blobs to,
// trimmed to the fields the content-addressed mirror actually needs.
type MirrorConfig struct {
	AccountID string
	AccessKey string
	SecretKey string
	Bucket    string
}

// Mirror uploads disk-store blobs to an S3-compatible bucket under a
// content-addressed key, so two files with identical bytes occupy one
// remote object regardless of how many users or paths reference them.
type Mirror struct {
	bucket string
	client *s3.Client
	upldr  *manager.Uploader
}

// NewMirror connects to the configured R2 bucket. Building one is
// optional — a nil *Mirror is a valid "no mirror configured" state, and
// every method below treats it as such.
func NewMirror(ctx context.Context, cfg MirrorConfig) (*Mirror, error) {
	if cfg.Bucket == "" || cfg.AccountID == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("blobstore: missing required mirror config fields")
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("blobstore: load aws cfg: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &Mirror{
		bucket: cfg.Bucket,
		client: client,
		upldr:  manager.NewUploader(client, func(u *manager.Uploader) { u.PartSize = 8 << 20 }),
	}, nil
}

// BuildKey is the content-addressed object key: hash alone, so identical
// bytes uploaded under different users or paths dedup to one object.
func (m *Mirror) BuildKey(contentHash string) string {
	return path.Join("blobs", contentHash)
}

// UploadIfMissing mirrors the file at diskPath to the content-addressed
// key for hash, skipping the transfer entirely if the object is already
// present — the common case once a content hash has been seen once.
func (m *Mirror) UploadIfMissing(ctx context.Context, diskPath, contentHash string) error {
	if m == nil {
		return nil
	}
	key := m.BuildKey(contentHash)

	_, err := m.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(m.bucket), Key: aws.String(key)})
	if err == nil {
		return nil
	}
	if !notFound(err) {
		return fmt.Errorf("blobstore: head %s: %w", key, err)
	}

	f, err := os.Open(diskPath)
	if err != nil {
		return fmt.Errorf("blobstore: open %s: %w", diskPath, err)
	}
	defer f.Close()

	if _, err := m.upldr.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return fmt.Errorf("blobstore: upload %s: %w", key, err)
	}
	return nil
}

// notFound unwraps the smithy API error code, since aws-sdk-go-v2 doesn't
// expose a typed NotFound for HeadObject directly.
func notFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
