package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fpang/video-summarizer/internal/boot"
	"github.com/fpang/video-summarizer/internal/catalog"
	"github.com/fpang/video-summarizer/internal/chat"
	"github.com/fpang/video-summarizer/internal/cli"
	"github.com/fpang/video-summarizer/internal/events"
	"github.com/fpang/video-summarizer/internal/service"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	summarizeVideoFlag string
	summarizePrompt    string
	summarizeStart     time.Duration
	summarizeEnd       time.Duration
	summarizeOpts      chat.PromptOptions
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize a video and index the summary for questions",
	Long: `Summarize a video from the library or from disk. A file path that is not
in the library is imported first. Without --video a file dialog opens.

With --start/--end only that range is summarized and nothing is indexed.`,
	RunE: runSummarize,
}

func init() {
	f := summarizeCmd.Flags()
	f.StringVarP(&summarizeVideoFlag, "video", "v", "", "Video name in the library, or a path to a video file")
	f.StringVarP(&summarizePrompt, "prompt", "p", "", "Custom instructions for the summary")
	f.DurationVar(&summarizeStart, "start", 0, "Start of the range to summarize (e.g. 30s)")
	f.DurationVar(&summarizeEnd, "end", 0, "End of the range to summarize (e.g. 1m15s)")
	f.StringVar(&summarizeOpts.Type, "type", "", "Summary type: short or full")
	f.IntVar(&summarizeOpts.DurationMinutes, "minutes", 0, "Target reading length in minutes")
	f.StringVar(&summarizeOpts.Language, "language", "", "Language of the summary")
	f.IntVar(&summarizeOpts.Age, "age", 0, "Check suitability for viewers under this age (over 18 means adults)")
	f.BoolVar(&summarizeOpts.BulletPoints, "bullets", false, "Present the summary as bullet points")
	f.BoolVar(&summarizeOpts.HarmfulWords, "harmful-words", false, "Highlight harmful words")
	f.BoolVar(&summarizeOpts.HarmfulVisuals, "harmful-visuals", false, "Report harmful visuals")
}

func runSummarize(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	app := cli.InitApp(ctx, "video-cli", boot.Options{ValidateKey: true})
	defer app.Close()

	target := summarizeVideoFlag
	if target == "" {
		picked, err := cli.PickVideoFile()
		if err != nil {
			return err
		}
		target = picked
	}

	video, err := importVideo(ctx, app, target)
	if err != nil {
		return err
	}

	prompt := summarizePrompt
	if prompt == "" {
		prompt = chat.BuildCustomPrompt(summarizeOpts)
	}

	req := service.SummaryRequest{Path: video.Path, VideoName: video.Name, Prompt: prompt}
	if summarizeStart > 0 || summarizeEnd > 0 {
		clip, err := app.Library.Trim(ctx, video.Name, summarizeStart, summarizeEnd)
		if err != nil {
			return err
		}
		defer os.Remove(clip)
		req.Path = clip
	} else if !video.Summarized {
		if req.IsNewVideo, err = app.Library.ClaimIndexing(ctx, video.Name); err != nil {
			return err
		}
	}

	log.Info().Str("video", video.Name).Bool("index", req.IsNewVideo).Msg("Summarizing video")
	res, err := app.Service.GenerateSummary(ctx, req)
	if req.IsNewVideo && (err != nil || !res.Persisted) {
		app.Library.ReleaseIndexing(ctx, video.Name)
	}
	if err != nil {
		return err
	}
	if res.Persisted {
		e := events.VideoEvent{VideoName: video.Name, Persisted: true, Chunks: res.Chunks}
		if res.Classification != nil {
			e.Category = res.Classification.Category
			e.Suitability = string(res.Classification.Suitability)
		}
		app.Library.PublishSummarized(ctx, e)
	}

	cli.WriteSummary(cmd.OutOrStdout(), res)
	return nil
}

// importVideo returns the library record for target. Paths to files outside
// the library are copied in first.
func importVideo(ctx context.Context, app *boot.App, target string) (*catalog.Video, error) {
	if v, err := app.Library.Resolve(ctx, filepath.Base(target)); err == nil {
		if filepath.Base(target) == target || sameFile(v.Path, target) {
			return v, nil
		}
	} else if !errors.Is(err, catalog.ErrNotFound) {
		return nil, err
	}

	path, err := cli.ResolveVideoFile(target)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	video, isNew, err := app.Library.SaveUpload(ctx, filepath.Base(path), f)
	if err != nil {
		return nil, err
	}
	log.Info().Str("video", video.Name).Bool("new", isNew).Msg("Video imported into library")
	return &video, nil
}

func sameFile(a, b string) bool {
	ia, err := os.Stat(a)
	if err != nil {
		return false
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ia, ib)
}
