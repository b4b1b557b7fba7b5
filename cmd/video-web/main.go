package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fpang/video-summarizer/internal/api"
	"github.com/fpang/video-summarizer/internal/boot"
	"github.com/fpang/video-summarizer/internal/cli"
	"github.com/fpang/video-summarizer/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// CLI flags
var (
	portFlag      int
	noCleanupFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "video-web",
	Short: "HTTP API for video summaries and questions",
	Long: `Video Web starts a local HTTP server exposing the video library,
summaries and questions as a JSON API under /api. A background job
removes expired temp clips and orphaned uploads.

Examples:
  video-web
  video-web --port 9090`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (default VIDEO_HTTP_PORT or 8080)")
	rootCmd.Flags().BoolVar(&noCleanupFlag, "no-cleanup", false, "Disable the background cleanup job")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	logging.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := cli.InitApp(ctx, "video-web", boot.Options{ValidateKey: true})
	defer app.Close()

	if !noCleanupFlag {
		go app.Cleanup().Run(ctx)
	}

	port := portFlag
	if port == 0 {
		port = app.Config.HTTPPort
	}
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      api.NewRouter(app.Library, app.Service, api.Options{LocalCORS: true}),
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	log.Info().Int("port", port).Msg("Starting web server")
	fmt.Printf("\n  Video API: http://localhost:%d/api/health\n\n", port)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
