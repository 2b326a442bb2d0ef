// Package media stores submission evidence on S3-compatible object storage.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/nestlinghq/nestling/internal/badge"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// ErrNotConfigured is returned when object storage credentials are missing.
var ErrNotConfigured = fmt.Errorf("media storage not configured")

var extByType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"video/mp4":  ".mp4",
}

// Storage uploads and serves evidence objects. Uploads are retried with
// backoff; transient object-store failures should not fail a submission
// outright. Endpoint, bucket, and region are admin-tunable at runtime, so
// the client is rebuilt under a lock on Reconfigure.
type Storage struct {
	mu     sync.RWMutex
	client s3Client
	bucket string
}

func NewStorage(cfg S3Config) *Storage {
	s := &Storage{}
	s.Reconfigure(cfg)
	return s
}

// Reconfigure replaces the storage target. Incomplete configuration leaves
// the storage unconfigured rather than half-wired.
func (s *Storage) Reconfigure(cfg S3Config) {
	var client s3Client
	if cfg.Bucket != "" && cfg.AccessKey != "" && cfg.SecretKey != "" {
		client = newS3Client(cfg)
	}
	s.mu.Lock()
	s.client = client
	s.bucket = cfg.Bucket
	s.mu.Unlock()
}

func (s *Storage) target() (s3Client, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client, s.bucket
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Configured reports whether uploads can be accepted.
func (s *Storage) Configured() bool {
	client, _ := s.target()
	return client != nil
}

// Upload validates and stores one evidence object, returning its object key.
// Keys are namespaced per baby and never derived from the client filename.
func (s *Storage) Upload(ctx context.Context, babyID int64, contentType string, size int64, body io.Reader) (string, error) {
	client, bucket := s.target()
	if client == nil {
		return "", ErrNotConfigured
	}
	if !badge.AllowedMediaTypes[contentType] {
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}
	if size <= 0 || size > badge.MaxMediaBytes {
		return "", fmt.Errorf("object size %d out of range", size)
	}

	// The body must be re-readable across retry attempts.
	data, err := io.ReadAll(io.LimitReader(body, badge.MaxMediaBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload body: %w", err)
	}
	if int64(len(data)) > badge.MaxMediaBytes {
		return "", fmt.Errorf("object exceeds size limit")
	}

	key := objectKey(babyID, contentType)

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentType:   aws.String(contentType),
			ContentLength: aws.Int64(int64(len(data))),
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}
	return key, nil
}

func objectKey(babyID int64, contentType string) string {
	ext := extByType[contentType]
	return path.Join("media", fmt.Sprintf("%d", babyID), uuid.NewString()+ext)
}

// Download streams an evidence object.
func (s *Storage) Download(ctx context.Context, key string) (io.ReadCloser, string, error) {
	client, bucket := s.target()
	if client == nil {
		return nil, "", ErrNotConfigured
	}
	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("download from s3: %w", err)
	}
	contentType := ""
	if result.ContentType != nil {
		contentType = *result.ContentType
	}
	return result.Body, contentType, nil
}

// Delete removes an evidence object. Missing objects are not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	client, bucket := s.target()
	if client == nil {
		return ErrNotConfigured
	}
	if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete s3 object: %w", err)
	}
	return nil
}
