// Package s3util archives uploaded videos in S3 so a node that lost its
// local copy can fetch it again.
package s3util

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// ErrObjectNotFound is returned when the archive has no object for a key.
var ErrObjectNotFound = errors.New("archived object not found")

// S3API is the subset of the S3 client used by Archive.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Archive stores video files in one bucket under a key prefix.
type Archive struct {
	client S3API
	bucket string
	prefix string
}

// NewArchive returns an Archive writing to bucket/prefix.
func NewArchive(client S3API, bucket, prefix string) *Archive {
	return &Archive{client: client, bucket: bucket, prefix: prefix}
}

// Key returns the object key for a video name.
func (a *Archive) Key(name string) string {
	if a.prefix == "" {
		return name
	}
	return a.prefix + "/" + name
}

// DownloadToFile copies the archived video to localPath. A partial file is
// removed on failure.
func (a *Archive) DownloadToFile(ctx context.Context, name, localPath string) error {
	key := a.Key(name)
	log.Debug().Str("bucket", a.bucket).Str("key", key).Str("localPath", localPath).Msg("Downloading from S3")

	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &a.bucket,
		Key:    &key,
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return fmt.Errorf("S3 GetObject: %w", err)
	}
	defer result.Body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, result.Body); err != nil {
		f.Close()
		os.Remove(localPath)
		return fmt.Errorf("download: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(localPath)
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}
