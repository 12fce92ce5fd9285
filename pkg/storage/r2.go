package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// R2Config locates a Cloudflare R2 bucket.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	PublicURL       string // optional public domain for the bucket
	UploadTimeout   time.Duration
}

// R2Storage writes objects to R2 through its S3-compatible API.
type R2Storage struct {
	client        *s3.Client
	bucketName    string
	publicURL     string
	uploadTimeout time.Duration
}

func NewR2Storage(ctx context.Context, rc R2Config) (*R2Storage, error) {
	if rc.AccountID == "" || rc.Bucket == "" {
		return nil, fmt.Errorf("r2 account id and bucket are required")
	}
	if rc.UploadTimeout <= 0 {
		rc.UploadTimeout = 30 * time.Second
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(rc.AccessKeyID, rc.AccessKeySecret, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load r2 credentials: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", rc.AccountID)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &R2Storage{
		client:        client,
		bucketName:    rc.Bucket,
		publicURL:     strings.TrimSuffix(rc.PublicURL, "/"),
		uploadTimeout: rc.UploadTimeout,
	}, nil
}

// PutObject stores data under key and returns its public URL, or the bare key
// when the bucket has no public domain.
func (s *R2Storage) PutObject(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}

	uploadCtx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	// Receipts are written once per order and never change.
	_, err := s.client.PutObject(uploadCtx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucketName),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("private, max-age=31536000, immutable"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to R2: %w", key, err)
	}

	if s.publicURL == "" {
		return key, nil
	}
	return fmt.Sprintf("%s/%s", s.publicURL, key), nil
}
