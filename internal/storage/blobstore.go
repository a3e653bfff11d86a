package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BlobStore persists attachment bytes. Keys are path-prefixed
// YYYY/MM/DD/ and suffixed by event id, so the Notification Worker
// and Timer Poller can compute a deterministic key before the RawMail even
// exists.
type BlobStore interface {
	Put(ctx context.Context, key string, contentType string, data []byte) (url string, err error)
	Get(ctx context.Context, key string) ([]byte, error)
}

type S3BlobStore struct {
	client s3API
	bucket string
}

func NewS3BlobStore(client s3API, bucket string) *S3BlobStore {
	return &S3BlobStore{client: client, bucket: bucket}
}

// AttachmentKey builds the key format for an attachment observed at t
// and carrying eventID.
func AttachmentKey(t time.Time, eventID, filename string) string {
	if filename == "" {
		filename = "attachment.pdf"
	}
	return fmt.Sprintf("%s/%s-%s", t.UTC().Format("2006/01/02"), eventID, filename)
}

func (s *S3BlobStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("blobstore: put %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func (s *S3BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read %s: %w", key, err)
	}
	return data, nil
}
