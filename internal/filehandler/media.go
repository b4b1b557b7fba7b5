// Package filehandler loads video files from disk and wraps the FFmpeg tools
// (ffprobe, ffmpeg) used to inspect and cut them.
package filehandler

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultVideoMIME is used when the extension does not identify a type.
const DefaultVideoMIME = "video/mp4"

// ErrNotFound is returned when a video path does not exist or is not a readable file.
var ErrNotFound = errors.New("video file not found")

// ErrInvalidName is returned for upload names that cannot be stored.
var ErrInvalidName = errors.New("invalid video name")

// SupportedVideoExtensions defines the file extensions accepted for upload.
var SupportedVideoExtensions = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
}

// MaxInlineBytes is the largest video sent inline with a model request.
// Gemini caps a whole request at 20 MB, base64 included.
const MaxInlineBytes int64 = 14 << 20

// UploadedFile is a video ready to be sent to a model. Data is only loaded
// when the file is small enough to go inline; larger files are uploaded
// from Path.
type UploadedFile struct {
	MIMEType string
	Path     string
	Size     int64
	Data     []byte
}

// Inline reports whether the video was read into memory.
func (f *UploadedFile) Inline() bool {
	return f.Data != nil
}

// LoadVideo checks the file at path and reads it into memory when it is at
// most MaxInlineBytes. Missing paths, directories and unreadable files fail
// with an error wrapping ErrNotFound.
func LoadVideo(path string) (*UploadedFile, error) {
	return LoadVideoInline(path, MaxInlineBytes)
}

// LoadVideoInline is LoadVideo with an explicit inline limit.
func LoadVideoInline(path string, inlineLimit int64) (*UploadedFile, error) {
	log.Debug().Str("path", path).Msg("Loading video file")

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: path is a directory: %s", ErrNotFound, path)
	}

	file := &UploadedFile{MIMEType: MIMEType(path), Path: path, Size: info.Size()}
	if info.Size() <= inlineLimit {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
		}
		if data == nil {
			data = []byte{}
		}
		file.Data = data
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
		}
		f.Close()
	}

	log.Info().
		Str("path", path).
		Str("mime_type", file.MIMEType).
		Int64("size_bytes", file.Size).
		Bool("inline", file.Inline()).
		Msg("Video file loaded")
	return file, nil
}

// MIMEType guesses the media type from the file extension. Unknown or
// non-video extensions fall back to DefaultVideoMIME.
func MIMEType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mimeType, ok := SupportedVideoExtensions[ext]; ok {
		return mimeType
	}
	if mimeType := mime.TypeByExtension(ext); strings.HasPrefix(mimeType, "video/") {
		return mimeType
	}
	return DefaultVideoMIME
}

// IsVideo returns true if the file extension is an accepted video type.
func IsVideo(ext string) bool {
	_, ok := SupportedVideoExtensions[strings.ToLower(ext)]
	return ok
}

// SanitizeName reduces an uploaded file name to its base name and rejects
// names that cannot be stored safely.
func SanitizeName(name string) (string, error) {
	base := filepath.Base(filepath.Clean(strings.ReplaceAll(name, "\\", "/")))
	if base == "." || base == "/" || base == ".." || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !IsVideo(filepath.Ext(base)) {
		return "", fmt.Errorf("%w: unsupported extension %q", ErrInvalidName, filepath.Ext(base))
	}
	return base, nil
}
