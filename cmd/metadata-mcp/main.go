// Package main serves the video catalog as MCP tools. The default
// transport is stdio; --http serves the streamable HTTP transport instead.
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/video-summarizer/internal/boot"
	"github.com/fpang/video-summarizer/internal/config"
	"github.com/fpang/video-summarizer/internal/logging"
	"github.com/fpang/video-summarizer/internal/mcpserver"
	"github.com/fpang/video-summarizer/internal/metrics"
)

const version = "1.0.0"

var httpAddrFlag string

var rootCmd = &cobra.Command{
	Use:   "metadata-mcp",
	Short: "MCP server for video catalog metadata",
	Long: `Metadata MCP exposes two tools over the Model Context Protocol:
update_video_metadata sets a video's category and suitability, and
get_video returns its catalog record.

Examples:
  metadata-mcp
  metadata-mcp --http :8000`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&httpAddrFlag, "http", "", "Serve streamable HTTP on this address instead of stdio")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	initStart := time.Now()
	logging.Init()
	// stdout carries the protocol
	metrics.SetOutput(io.Discard)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := boot.New(ctx, config.Load(), boot.Options{SkipModels: true})
	if err != nil {
		return err
	}
	defer app.Close()
	app.StartupLog("metadata-mcp", initStart).
		Version(version).
		Config("transport", transportName()).
		Log()

	server := mcpserver.New(app.Catalog, version)

	if httpAddrFlag == "" {
		if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
	srv := &http.Server{Addr: httpAddrFlag, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	log.Info().Str("addr", httpAddrFlag).Msg("Serving MCP over streamable HTTP")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func transportName() string {
	if httpAddrFlag != "" {
		return "streamable-http"
	}
	return "stdio"
}
