// Package main runs the video API on AWS Lambda behind API Gateway (HTTP
// API, payload v2). Uploads and clips live under /tmp; the S3 archive
// restores videos on fresh instances.
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/video-summarizer/internal/api"
	"github.com/fpang/video-summarizer/internal/boot"
	"github.com/fpang/video-summarizer/internal/cleanup"
	"github.com/fpang/video-summarizer/internal/config"
	"github.com/fpang/video-summarizer/internal/logging"
)

var (
	app     *boot.App
	sweeper *cleanup.Scheduler
)

func init() {
	initStart := time.Now()
	logging.Init()

	cfg := config.Load()
	if os.Getenv("VIDEO_ORG_DIR") == "" {
		cfg.OrgDir = "/tmp/videos"
	}
	if os.Getenv("VIDEO_TEMP_DIR") == "" {
		cfg.TempDir = "/tmp/clips"
	}

	var err error
	app, err = boot.New(context.Background(), cfg, boot.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	sweeper = app.Cleanup()

	app.StartupLog("video-lambda", initStart).
		Feature("originVerify", os.Getenv("ORIGIN_VERIFY_SECRET") != "").
		Log()
}

// sweepTemp removes expired clips before each request. A Lambda instance
// is frozen between invocations, so there is no background ticker.
func sweepTemp(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sweeper.RunTemp(app.Config.TempMaxAge)
		next.ServeHTTP(w, r)
	})
}

func main() {
	handler := api.NewRouter(app.Library, app.Service, api.Options{
		OriginVerifySecret: os.Getenv("ORIGIN_VERIFY_SECRET"),
	})
	adapter := httpadapter.NewV2(sweepTemp(handler))
	lambda.Start(adapter.ProxyWithContext)
}
