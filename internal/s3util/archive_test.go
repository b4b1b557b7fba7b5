package s3util

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	tags    map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, tags: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = data
	f.tags[key] = aws.ToString(in.Tagging)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	a := NewArchive(client, "bucket", "videos")
	assert.Equal(t, "videos/clip.mp4", a.Key("clip.mp4"))

	src := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(src, []byte("frames"), 0o644))
	require.NoError(t, a.UploadFile(ctx, "clip.mp4", src, "video/mp4"))
	assert.Equal(t, "Project=video-summarizer", client.tags["bucket/videos/clip.mp4"])

	dst := filepath.Join(t.TempDir(), "restored", "clip.mp4")
	require.NoError(t, a.DownloadToFile(ctx, "clip.mp4", dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "frames", string(data))

	require.NoError(t, a.Delete(ctx, "clip.mp4"))
	err = a.DownloadToFile(ctx, "clip.mp4", dst+".again")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.NoFileExists(t, dst+".again")
}

func TestArchiveKeyWithoutPrefix(t *testing.T) {
	assert.Equal(t, "clip.mp4", NewArchive(nil, "b", "").Key("clip.mp4"))
}

func TestUploadMissingFile(t *testing.T) {
	a := NewArchive(newFakeS3(), "b", "")
	assert.Error(t, a.UploadFile(context.Background(), "x.mp4", filepath.Join(t.TempDir(), "x.mp4"), "video/mp4"))
}
