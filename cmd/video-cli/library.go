package main

import (
	"fmt"
	"time"

	"github.com/fpang/video-summarizer/internal/boot"
	"github.com/fpang/video-summarizer/internal/catalog"
	"github.com/fpang/video-summarizer/internal/cli"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	trimVideoFlag string
	trimStart     time.Duration
	trimEnd       time.Duration

	listSearch      string
	listSuitability string

	deleteVideoFlag string

	cleanupOnce bool
)

var trimCmd = &cobra.Command{
	Use:   "trim",
	Short: "Cut a range of a video into the temp directory",
	Long: `Cut [start, end) of a library video into a new file in the temp directory.
Temp files are removed by the cleanup job once they are older than
VIDEO_TEMP_MAX_AGE.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		app := cli.InitApp(ctx, "video-cli", boot.Options{SkipModels: true})
		defer app.Close()

		path, err := app.Library.Trim(ctx, trimVideoFlag, trimStart, trimEnd)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s-%s)\n", path, cli.FormatDurationShort(trimStart), cli.FormatDurationShort(trimEnd))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List videos in the library",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		f := catalog.Filter{Search: listSearch}
		if listSuitability != "" {
			level, err := catalog.ParseSuitability(listSuitability)
			if err != nil {
				return err
			}
			f.Suitability = level
		}

		app := cli.InitApp(ctx, "video-cli", boot.Options{SkipModels: true})
		defer app.Close()

		videos, err := app.Catalog.List(ctx, f)
		if err != nil {
			return err
		}
		return cli.WriteVideoTable(cmd.OutOrStdout(), videos)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a video, its summary chunks and its archived copy",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		app := cli.InitApp(ctx, "video-cli", boot.Options{})
		defer app.Close()

		ok, err := app.Library.Delete(ctx, deleteVideoFlag)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", catalog.ErrNotFound, deleteVideoFlag)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", deleteVideoFlag)
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired temp clips and videos missing from the catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		app := cli.InitApp(ctx, "video-cli", boot.Options{SkipModels: true})
		defer app.Close()

		s := app.Cleanup()
		if cleanupOnce {
			temp := s.RunTemp(app.Config.TempMaxAge)
			orphans := s.RunOrphans(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d temp file(s) and %d orphan video(s)\n", temp, orphans)
			return nil
		}
		log.Info().Msg("Running cleanup until interrupted")
		s.Run(ctx)
		return nil
	},
}

func init() {
	trimCmd.Flags().StringVarP(&trimVideoFlag, "video", "v", "", "Video name in the library")
	trimCmd.Flags().DurationVar(&trimStart, "start", 0, "Start of the range (e.g. 30s)")
	trimCmd.Flags().DurationVar(&trimEnd, "end", 0, "End of the range (e.g. 1m15s)")
	_ = trimCmd.MarkFlagRequired("video")
	_ = trimCmd.MarkFlagRequired("end")

	listCmd.Flags().StringVarP(&listSearch, "search", "s", "", "Case-insensitive substring of the name")
	listCmd.Flags().StringVar(&listSuitability, "suitability", "", "Only videos suitable for this audience (under_5 ... adult)")

	deleteCmd.Flags().StringVarP(&deleteVideoFlag, "video", "v", "", "Video name in the library")
	_ = deleteCmd.MarkFlagRequired("video")

	cleanupCmd.Flags().BoolVar(&cleanupOnce, "once", false, "Run each job once and exit")
}
