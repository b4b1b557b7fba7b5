// Package cli holds the interactive helpers shared by the command-line tools.
package cli

import (
	"context"
	"time"

	"github.com/fpang/video-summarizer/internal/boot"
	"github.com/fpang/video-summarizer/internal/config"
	"github.com/rs/zerolog/log"
)

// InitApp loads configuration and wires the App, exiting with a readable
// message when the API key is missing or rejected.
func InitApp(ctx context.Context, name string, opts boot.Options) *boot.App {
	start := time.Now()
	cfg := config.Load()

	app, err := boot.New(ctx, cfg, opts)
	if err != nil {
		HandleValidationError(err)
	}
	app.StartupLog(name, start).Log()

	if opts.ValidateKey {
		log.Info().Msg("API key validation complete - ready for operations")
	}
	return app
}
