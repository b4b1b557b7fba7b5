package s3util

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// projectTag is the URL-encoded object tagging string for cost allocation.
const projectTag = "Project=video-summarizer"

// UploadFile archives the local file at path under the video name.
func (a *Archive) UploadFile(ctx context.Context, name, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	key := a.Key(name)
	tagging := projectTag
	if _, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &a.bucket,
		Key:         &key,
		Body:        f,
		ContentType: &contentType,
		Tagging:     &tagging,
	}); err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", key, err)
	}

	log.Info().Str("bucket", a.bucket).Str("key", key).Msg("Video archived to S3")
	return nil
}

// Delete removes the archived copy of a video.
func (a *Archive) Delete(ctx context.Context, name string) error {
	key := a.Key(name)
	if _, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &a.bucket,
		Key:    &key,
	}); err != nil {
		return fmt.Errorf("S3 DeleteObject %s: %w", key, err)
	}
	return nil
}
