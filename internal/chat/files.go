package chat

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fpang/video-summarizer/internal/metrics"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// Files API polling while Gemini processes an uploaded video.
const (
	filePollInterval   = 5 * time.Second
	fileProcessTimeout = 10 * time.Minute
)

// fileService is the subset of the Gemini Files API used for videos too
// large to send inline.
type fileService interface {
	Upload(ctx context.Context, r io.Reader, config *genai.UploadFileConfig) (*genai.File, error)
	Get(ctx context.Context, name string, config *genai.GetFileConfig) (*genai.File, error)
	Delete(ctx context.Context, name string, config *genai.DeleteFileConfig) (*genai.DeleteFileResponse, error)
}

// mediaParts turns request media into parts. Inline data is sent as a blob;
// media given only by path goes through the Files API. cleanup deletes the
// uploaded files and must be called once the request is done.
func (g *Gemini) mediaParts(ctx context.Context, op string, media []Media) (parts []*genai.Part, cleanup func(), err error) {
	var uploaded []string
	cleanup = func() {
		for _, name := range uploaded {
			g.deleteFile(name)
		}
	}

	for _, m := range media {
		if m.Data != nil || m.Path == "" {
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{MIMEType: m.MIMEType, Data: m.Data},
			})
			continue
		}
		if g.files == nil {
			cleanup()
			return nil, nil, &ModelError{Kind: KindUnsupported, Provider: providerGoogle, Operation: op, Message: "file uploads are not available"}
		}
		file, err := g.uploadVideo(ctx, op, m.Path, m.MIMEType)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		uploaded = append(uploaded, file.Name)
		parts = append(parts, &genai.Part{
			FileData: &genai.FileData{FileURI: file.URI, MIMEType: m.MIMEType},
		})
	}
	return parts, cleanup, nil
}

// uploadVideo sends the file at path to the Files API and waits until
// Gemini has finished processing it.
func (g *Gemini) uploadVideo(ctx context.Context, op, path, mimeType string) (*genai.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open video for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat video for upload: %w", err)
	}

	log.Debug().
		Str("path", path).
		Int64("size_bytes", info.Size()).
		Str("mime_type", mimeType).
		Msg("Uploading video to Gemini Files API")

	uploadStart := time.Now()
	file, err := g.files.Upload(ctx, f, &genai.UploadFileConfig{MIMEType: mimeType})
	if err != nil {
		return nil, classifyError(providerGoogle, op, err)
	}

	deadline := time.Now().Add(fileProcessTimeout)
	polls := 0
	for file.State == genai.FileStateProcessing {
		if time.Now().After(deadline) {
			g.deleteFile(file.Name)
			return nil, &ModelError{
				Kind:      KindNetwork,
				Provider:  providerGoogle,
				Operation: op,
				Message:   fmt.Sprintf("timeout waiting for video processing after %v", fileProcessTimeout),
			}
		}
		polls++
		select {
		case <-ctx.Done():
			g.deleteFile(file.Name)
			return nil, ctx.Err()
		case <-time.After(g.pollInterval):
		}

		name := file.Name
		if file, err = g.files.Get(ctx, name, nil); err != nil {
			g.deleteFile(name)
			return nil, classifyError(providerGoogle, op, err)
		}
	}
	if file.State == genai.FileStateFailed {
		g.deleteFile(file.Name)
		return nil, &ModelError{Kind: KindBadRequest, Provider: providerGoogle, Operation: op, Message: "video processing failed"}
	}

	elapsed := time.Since(uploadStart)
	log.Info().
		Str("name", file.Name).
		Str("state", string(file.State)).
		Dur("total_time", elapsed).
		Int("poll_iterations", polls).
		Msg("Video ready for inference")

	metrics.New(metrics.Namespace).
		Dimension("Operation", "filesApiUpload").
		Metric("FilesApiUploadMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Metric("FilesApiUploadBytes", float64(info.Size()), metrics.UnitBytes).
		Flush()
	return file, nil
}

// deleteFile removes an uploaded file. Gemini expires files on its own, so
// failures are only logged.
func (g *Gemini) deleteFile(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := g.files.Delete(ctx, name, nil); err != nil {
		log.Warn().Err(err).Str("file", name).Msg("Failed to delete uploaded video")
		return
	}
	log.Debug().Str("file", name).Msg("Deleted uploaded video")
}
