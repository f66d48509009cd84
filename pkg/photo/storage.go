package photo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// ObjectStore persists photo bytes for non-sensitive categories.
// Sensitive photos never reach it.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
}

// S3Config locates the photo bucket.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string
}

// S3Store is the ObjectStore backed by S3-compatible storage.
type S3Store struct {
	api    s3iface.S3API
	bucket string
}

// NewS3Store opens a session against the configured bucket. A non-empty
// Endpoint switches to path-style addressing for S3-compatible stores.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("opening object store session: %w", err)
	}
	return &S3Store{api: s3.New(sess), bucket: cfg.Bucket}, nil
}

// Upload writes the object and returns its key.
func (s *S3Store) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := s.api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	return key, nil
}

// Download reads the object back.
func (s *S3Store) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// objectKey builds the per-session storage key.
func objectKey(sessionID, photoID, ext string) string {
	if ext == "" {
		ext = ".jpg"
	}
	return path.Join("photos", sessionID, photoID+ext)
}
