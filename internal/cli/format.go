package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fpang/video-summarizer/internal/catalog"
	"github.com/fpang/video-summarizer/internal/service"
)

// FormatDurationShort formats a duration in a short format (M:SS or H:MM:SS).
func FormatDurationShort(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// WriteVideoTable prints one row per video.
func WriteVideoTable(w io.Writer, videos []catalog.Video) error {
	if len(videos) == 0 {
		_, err := fmt.Fprintln(w, "No videos found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCATEGORY\tSUITABILITY\tINDEXED\tADDED")
	for _, v := range videos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			v.Name,
			orDash(v.Category),
			orDash(string(v.Suitability)),
			yesNo(v.Summarized),
			v.CreatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	return tw.Flush()
}

// WriteSummary prints a summary result with its indexing status.
func WriteSummary(w io.Writer, res service.SummaryResult) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, res.Summary)
	fmt.Fprintln(w)
	if res.Classification != nil {
		fmt.Fprintf(w, "Category: %s, suitable for: %s\n", res.Classification.Category, res.Classification.Suitability)
	}
	switch {
	case res.Warning != "":
		fmt.Fprintf(w, "Warning: %s\n", res.Warning)
	case res.Persisted:
		fmt.Fprintf(w, "Indexed %d chunk(s) for questions.\n", res.Chunks)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
