// Package library manages the video files behind the catalog: uploads into
// the organized directory, trimmed copies in the temp directory, the S3
// archive, and removal of everything a video owns.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fpang/video-summarizer/internal/catalog"
	"github.com/fpang/video-summarizer/internal/events"
	"github.com/fpang/video-summarizer/internal/filehandler"
	"github.com/fpang/video-summarizer/internal/vectorstore"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrTooLarge is returned when an upload exceeds the configured size limit.
var ErrTooLarge = errors.New("upload exceeds size limit")

// Archive keeps a remote copy of each uploaded video.
type Archive interface {
	UploadFile(ctx context.Context, name, path, contentType string) error
	DownloadToFile(ctx context.Context, name, localPath string) error
	Delete(ctx context.Context, name string) error
}

// TrimFunc cuts [start, end) of in into out.
type TrimFunc func(ctx context.Context, in, out string, start, end time.Duration) error

// InspectFunc reads stream properties of a video file.
type InspectFunc func(ctx context.Context, path string) (*filehandler.VideoInfo, error)

// Options configure a Library. Archive and Events are optional.
type Options struct {
	OrgDir         string
	TempDir        string
	MaxUploadBytes int64

	Catalog catalog.Store
	Vectors vectorstore.Store
	Archive Archive
	Events  events.Publisher

	Trim    TrimFunc
	Inspect InspectFunc
}

// Library is safe for concurrent use; consistency of a single video's
// records is delegated to the underlying stores.
type Library struct {
	orgDir   string
	tempDir  string
	maxBytes int64
	catalog  catalog.Store
	vectors  vectorstore.Store
	archive  Archive
	events   events.Publisher
	trim     TrimFunc
	inspect  InspectFunc
	now      func() time.Time
}

// New returns a Library. Trim and Inspect default to the ffmpeg tools.
func New(o Options) *Library {
	l := &Library{
		orgDir:   o.OrgDir,
		tempDir:  o.TempDir,
		maxBytes: o.MaxUploadBytes,
		catalog:  o.Catalog,
		vectors:  o.Vectors,
		archive:  o.Archive,
		events:   o.Events,
		trim:     o.Trim,
		inspect:  o.Inspect,
		now:      time.Now,
	}
	if l.events == nil {
		l.events = events.Nop{}
	}
	if l.trim == nil {
		l.trim = filehandler.TrimVideo
	}
	if l.inspect == nil {
		l.inspect = filehandler.Inspect
	}
	return l
}

// OrgDir returns the directory holding uploaded videos.
func (l *Library) OrgDir() string { return l.orgDir }

// TempDir returns the directory holding trimmed copies.
func (l *Library) TempDir() string { return l.tempDir }

// Catalog returns the metadata store.
func (l *Library) Catalog() catalog.Store { return l.catalog }

// SaveUpload stores r as the video name and records it in the catalog.
// isNew is false when the catalog already knew the name; the file is
// replaced either way. The record exists before the file appears in the
// org directory, so the orphan sweep never sees a fresh upload unrecorded.
func (l *Library) SaveUpload(ctx context.Context, name string, r io.Reader) (video catalog.Video, isNew bool, err error) {
	name, err = filehandler.SanitizeName(name)
	if err != nil {
		return catalog.Video{}, false, err
	}
	if err := os.MkdirAll(l.orgDir, 0o755); err != nil {
		return catalog.Video{}, false, fmt.Errorf("create video directory: %w", err)
	}

	tmp, size, err := l.writeTemp(r)
	if err != nil {
		return catalog.Video{}, false, err
	}
	defer os.Remove(tmp)

	path := filepath.Join(l.orgDir, name)
	video = catalog.Video{Name: name, Path: path, MIMEType: filehandler.MIMEType(path)}
	isNew, err = l.catalog.Add(ctx, video)
	if err != nil {
		return catalog.Video{}, false, fmt.Errorf("record video: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		if isNew {
			if _, derr := l.catalog.Delete(ctx, name); derr != nil {
				log.Warn().Err(derr).Str("video", name).Msg("Failed to drop record of unsaved upload")
			}
		}
		return catalog.Video{}, false, fmt.Errorf("store upload: %w", err)
	}
	if stored, err := l.catalog.GetByName(ctx, name); err == nil && stored != nil {
		video = *stored
	}

	if isNew && l.archive != nil {
		if err := l.archive.UploadFile(ctx, name, path, video.MIMEType); err != nil {
			log.Warn().Err(err).Str("video", name).Msg("Failed to archive video, local copy kept")
		}
	}
	if isNew {
		l.publish(ctx, events.VideoEvent{Type: events.TypeVideoUploaded, VideoName: name})
	}

	log.Info().Str("video", name).Int64("bytes", size).Bool("new", isNew).Msg("Video uploaded")
	return video, isNew, nil
}

// writeTemp streams r into a hidden file in the org directory so readers
// never see a partial video. The caller renames or removes it.
func (l *Library) writeTemp(r io.Reader) (string, int64, error) {
	tmp, err := os.CreateTemp(l.orgDir, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}

	src := r
	if l.maxBytes > 0 {
		src = io.LimitReader(r, l.maxBytes+1)
	}
	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("write upload: %w", err)
	}
	if l.maxBytes > 0 && n > l.maxBytes {
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("%w (%d bytes)", ErrTooLarge, l.maxBytes)
	}
	return tmp.Name(), n, nil
}

// ClaimIndexing reports whether the caller should index the next full
// summary of name. At most one caller wins per video; a winner whose
// summary was not persisted must call ReleaseIndexing.
func (l *Library) ClaimIndexing(ctx context.Context, name string) (bool, error) {
	ok, err := l.catalog.ClaimSummarized(ctx, name)
	if err != nil {
		return false, fmt.Errorf("claim indexing of %s: %w", name, err)
	}
	return ok, nil
}

// ReleaseIndexing gives up a claim so a later summary indexes the video.
func (l *Library) ReleaseIndexing(ctx context.Context, name string) {
	summarized := false
	if _, err := l.catalog.Update(context.WithoutCancel(ctx), name, catalog.Update{Summarized: &summarized}); err != nil {
		log.Warn().Err(err).Str("video", name).Msg("Failed to release indexing claim")
	}
}

// Get returns the catalog record or an error wrapping catalog.ErrNotFound.
func (l *Library) Get(ctx context.Context, name string) (*catalog.Video, error) {
	v, err := l.catalog.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: %s", catalog.ErrNotFound, name)
	}
	return v, nil
}

// List passes through to the catalog.
func (l *Library) List(ctx context.Context, f catalog.Filter) ([]catalog.Video, error) {
	return l.catalog.List(ctx, f)
}

// Resolve returns a local path for the video, restoring it from the archive
// when the local file is gone.
func (l *Library) Resolve(ctx context.Context, name string) (*catalog.Video, error) {
	v, err := l.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(v.Path); err == nil {
		return v, nil
	}
	if l.archive == nil {
		return nil, fmt.Errorf("%w: %s", filehandler.ErrNotFound, v.Path)
	}

	log.Info().Str("video", name).Msg("Local copy missing, restoring from archive")
	if err := l.archive.DownloadToFile(ctx, name, v.Path); err != nil {
		return nil, fmt.Errorf("%w: restore %s: %v", filehandler.ErrNotFound, name, err)
	}
	return v, nil
}

// Trim writes [start, end) of the video to a new file in the temp
// directory and returns its path. The file name starts with the Unix time
// so the cleanup job can age it out.
func (l *Library) Trim(ctx context.Context, name string, start, end time.Duration) (string, error) {
	v, err := l.Resolve(ctx, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(l.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp directory: %w", err)
	}
	out := filepath.Join(l.tempDir, TempName(l.now()))
	if err := l.trim(ctx, v.Path, out, start, end); err != nil {
		return "", err
	}
	return out, nil
}

// Duration returns the length of the video file at path.
func (l *Library) Duration(ctx context.Context, path string) (time.Duration, error) {
	info, err := l.inspect(ctx, path)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

// Delete removes the video file, its indexed chunks, its catalog record and
// its archived copy. It reports false when the catalog had no record.
func (l *Library) Delete(ctx context.Context, name string) (bool, error) {
	v, err := l.catalog.GetByName(ctx, name)
	if err != nil {
		return false, err
	}
	if v == nil {
		return false, nil
	}

	if err := os.Remove(v.Path); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("remove %s: %w", v.Path, err)
	}
	if l.vectors != nil {
		if err := l.vectors.DeleteByVideo(ctx, name); err != nil {
			return false, fmt.Errorf("delete chunks: %w", err)
		}
	}
	if _, err := l.catalog.Delete(ctx, name); err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	if l.archive != nil {
		if err := l.archive.Delete(ctx, name); err != nil {
			log.Warn().Err(err).Str("video", name).Msg("Failed to delete archived copy")
		}
	}

	l.publish(ctx, events.VideoEvent{Type: events.TypeVideoDeleted, VideoName: name})
	log.Info().Str("video", name).Msg("Video deleted")
	return true, nil
}

// PublishSummarized announces a finished summary.
func (l *Library) PublishSummarized(ctx context.Context, e events.VideoEvent) {
	e.Type = events.TypeVideoSummarized
	l.publish(ctx, e)
}

func (l *Library) publish(ctx context.Context, e events.VideoEvent) {
	if err := l.events.Publish(ctx, e); err != nil {
		log.Warn().Err(err).Str("video", e.VideoName).Str("eventType", e.Type).Msg("Failed to publish event")
	}
}

// TempName returns a trimmed-video file name carrying the creation time.
func TempName(now time.Time) string {
	return fmt.Sprintf("%d_%s.mp4", now.Unix(), strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// TempCreatedAt parses the creation time from a TempName. Names without a
// numeric prefix report false.
func TempCreatedAt(name string) (time.Time, bool) {
	prefix, _, ok := strings.Cut(filepath.Base(name), "_")
	if !ok {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}
