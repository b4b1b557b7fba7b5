// Package cleanup removes expired trimmed clips and video files the catalog
// no longer knows about.
package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fpang/video-summarizer/internal/catalog"
	"github.com/fpang/video-summarizer/internal/filehandler"
	"github.com/fpang/video-summarizer/internal/library"
	"github.com/fpang/video-summarizer/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Default job settings.
const (
	DefaultTempMaxAge     = 180 * time.Second
	DefaultTempInterval   = 10 * time.Second
	DefaultOrphanInterval = 20 * time.Second
)

// RemoveTempVideos deletes files in dir whose timestamp prefix is older than
// maxAge. Files without a timestamp prefix are left alone.
func RemoveTempVideos(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read temp directory: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		created, ok := library.TempCreatedAt(e.Name())
		if !ok {
			log.Debug().Str("file", e.Name()).Msg("Skipping file without timestamp prefix")
			continue
		}
		age := now.Sub(created)
		if age <= maxAge {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("Failed to remove temp video")
			continue
		}
		log.Info().Str("path", path).Dur("age", age).Msg("Removed expired temp video")
		removed++
	}
	return removed, nil
}

// RemoveOrphanVideos deletes video files in orgDir that have no catalog record.
func RemoveOrphanVideos(ctx context.Context, orgDir string, store catalog.Store) (int, error) {
	files, err := filehandler.ScanVideos(orgDir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, nil
	}

	names, err := store.Names(ctx)
	if err != nil {
		return 0, fmt.Errorf("list catalog names: %w", err)
	}
	known := make(map[string]struct{}, len(names))
	for _, n := range names {
		known[n] = struct{}{}
	}

	removed := 0
	for _, f := range files {
		if _, ok := known[f.Name]; ok {
			continue
		}
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", f.Path).Msg("Failed to remove orphan video")
			continue
		}
		log.Info().Str("path", f.Path).Int64("bytes", f.Size).Msg("Removed orphan video")
		removed++
	}
	return removed, nil
}

// Scheduler runs both jobs on their own intervals.
type Scheduler struct {
	OrgDir         string
	TempDir        string
	Catalog        catalog.Store
	TempMaxAge     time.Duration
	TempInterval   time.Duration
	OrphanInterval time.Duration

	now func() time.Time
}

// Run blocks until ctx is cancelled. Job failures are logged and the next
// tick runs normally.
func (s *Scheduler) Run(ctx context.Context) {
	maxAge := orDefault(s.TempMaxAge, DefaultTempMaxAge)
	tempTick := time.NewTicker(orDefault(s.TempInterval, DefaultTempInterval))
	defer tempTick.Stop()
	orphanTick := time.NewTicker(orDefault(s.OrphanInterval, DefaultOrphanInterval))
	defer orphanTick.Stop()

	log.Info().
		Str("tempDir", s.TempDir).
		Str("orgDir", s.OrgDir).
		Dur("tempMaxAge", maxAge).
		Msg("Cleanup scheduler started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Cleanup scheduler stopped")
			return
		case <-tempTick.C:
			s.RunTemp(maxAge)
		case <-orphanTick.C:
			s.RunOrphans(ctx)
		}
	}
}

// RunTemp performs one temp-directory sweep.
func (s *Scheduler) RunTemp(maxAge time.Duration) int {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	n, err := RemoveTempVideos(s.TempDir, maxAge, now())
	if err != nil {
		log.Error().Err(err).Msg("Temp video cleanup failed")
		return 0
	}
	record("temp", n)
	return n
}

// RunOrphans performs one orphan sweep. Without a catalog it does nothing.
func (s *Scheduler) RunOrphans(ctx context.Context) int {
	if s.Catalog == nil {
		return 0
	}
	n, err := RemoveOrphanVideos(ctx, s.OrgDir, s.Catalog)
	if err != nil {
		log.Error().Err(err).Msg("Orphan video cleanup failed")
		return 0
	}
	record("orphan", n)
	return n
}

func record(job string, removed int) {
	if removed == 0 {
		return
	}
	metrics.New(metrics.Namespace).
		Dimension("Job", job).
		Metric("FilesRemoved", float64(removed), metrics.UnitCount).
		Flush()
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
