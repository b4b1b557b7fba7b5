package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fpang/video-summarizer/internal/logging"
	"github.com/fpang/video-summarizer/internal/metrics"
	"github.com/spf13/cobra"
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "video-cli",
	Short: "Summarize videos and ask questions about them",
	Long: `Video CLI summarizes video files with a multimodal model, indexes the
summaries, and answers follow-up questions grounded in them.

Storage backends, the model provider and directories come from the
environment (or a .env file); see VIDEO_* variables.

Examples:
  video-cli summarize --video ./clips/dog.mp4
  video-cli summarize --video dog.mp4 --start 30s --end 1m15s
  video-cli ask --video dog.mp4 --question "What breed is the dog?"
  video-cli ask --video dog.mp4            # interactive conversation
  video-cli list --suitability under_10
  video-cli summarize                      # pick a file in a dialog`,
	SilenceUsage: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		logging.Init()
		metrics.SetOutput(io.Discard)
	},
}

func init() {
	rootCmd.AddCommand(summarizeCmd, askCmd, trimCmd, listCmd, deleteCmd, cleanupCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
