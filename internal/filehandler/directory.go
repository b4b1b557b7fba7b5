package filehandler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// VideoEntry is a video file found in a directory listing.
type VideoEntry struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// ScanVideos lists the video files directly inside dirPath, sorted by name.
// Subdirectories are not descended into and symlinks to directories are skipped.
// A missing directory yields an empty list.
func ScanVideos(dirPath string) ([]VideoEntry, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var videos []VideoEntry
	for _, d := range entries {
		if d.IsDir() || !IsVideo(strings.ToLower(filepath.Ext(d.Name()))) {
			continue
		}

		path := filepath.Join(dirPath, d.Name())
		info, err := os.Stat(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to stat file, skipping")
			continue
		}
		if info.IsDir() {
			log.Debug().Str("path", path).Msg("Skipping symlink to directory")
			continue
		}

		videos = append(videos, VideoEntry{
			Name:    d.Name(),
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(videos, func(i, j int) bool {
		return videos[i].Name < videos[j].Name
	})

	log.Debug().
		Int("total_videos", len(videos)).
		Str("directory", dirPath).
		Msg("Directory scan complete")

	return videos, nil
}
