package filehandler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/fpang/video-summarizer/internal/metrics"
	"github.com/rs/zerolog/log"
)

// CheckFFmpegAvailable returns nil if ffmpeg is on the PATH.
func CheckFFmpegAvailable() error {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: install FFmpeg with: brew install ffmpeg (macOS) or apt install ffmpeg (Linux)")
	}
	log.Debug().Str("path", path).Msg("ffmpeg found")
	return nil
}

// TrimVideo re-encodes the [start, end) range of inputPath into outputPath
// as H.264/AAC. The output is removed if ffmpeg fails.
func TrimVideo(ctx context.Context, inputPath, outputPath string, start, end time.Duration) error {
	if start < 0 || end <= start {
		return fmt.Errorf("invalid trim range %s-%s", start, end)
	}

	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	args := buildTrimArgs(inputPath, outputPath, start, end)
	log.Debug().Strs("args", args).Msg("Running FFmpeg trim")

	trimStart := time.Now()
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	elapsed := time.Since(trimStart)

	metrics.New(metrics.Namespace).
		Dimension("Operation", "trim").
		Metric("FFmpegDurationMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Flush()

	if err != nil {
		if rmErr := os.Remove(outputPath); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn().Err(rmErr).Str("path", outputPath).Msg("Failed to remove partial trim output")
		}
		log.Error().Err(err).Str("output", string(output)).Msg("FFmpeg trim failed")
		return fmt.Errorf("ffmpeg trim failed: %w", err)
	}

	log.Info().
		Str("input", inputPath).
		Str("output", outputPath).
		Str("range", FormatClock(int(start.Seconds()))+"-"+FormatClock(int(end.Seconds()))).
		Dur("duration", elapsed).
		Msg("Video range trimmed")
	return nil
}

func buildTrimArgs(inputPath, outputPath string, start, end time.Duration) []string {
	return []string{
		"-y",
		"-ss", formatSeconds(start),
		"-i", inputPath,
		"-t", formatSeconds(end-start),
		"-c:v", "libx264",
		"-c:a", "aac",
		"-movflags", "+faststart",
		outputPath,
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// FormatClock renders a second count as minutes and zero-padded seconds ("m:ss").
// Minutes are not wrapped into hours, so 3725 renders as "62:05".
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
