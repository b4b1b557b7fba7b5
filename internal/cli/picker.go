package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fpang/video-summarizer/internal/filehandler"
	"github.com/ncruces/zenity"
)

// ErrPickerCanceled is returned when the user closes the file dialog.
var ErrPickerCanceled = errors.New("no video selected")

// PickVideoFile opens the native file dialog filtered to supported videos.
func PickVideoFile() (string, error) {
	path, err := zenity.SelectFile(
		zenity.Title("Select a video to summarize"),
		zenity.FileFilters{
			{Name: "Video files", Patterns: videoPatterns()},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return "", ErrPickerCanceled
		}
		return "", fmt.Errorf("file picker failed: %w", err)
	}
	return path, nil
}

func videoPatterns() []string {
	patterns := make([]string, 0, len(filehandler.SupportedVideoExtensions))
	for ext := range filehandler.SupportedVideoExtensions {
		patterns = append(patterns, "*"+strings.ToLower(ext))
	}
	sort.Strings(patterns)
	return patterns
}
