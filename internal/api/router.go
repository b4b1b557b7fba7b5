// Package api serves the video library, summaries and questions as a JSON
// HTTP API. The same handler runs behind net/http and API Gateway.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fpang/video-summarizer/internal/library"
	"github.com/fpang/video-summarizer/internal/service"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog/log"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "video-summarizer"

// Summarizer is the orchestration facade used by the handlers.
type Summarizer interface {
	GenerateSummary(ctx context.Context, req service.SummaryRequest) (service.SummaryResult, error)
	GenerateAnswer(ctx context.Context, req service.AnswerRequest) (string, error)
	ResetThread(ctx context.Context, threadID string) error
}

// Options configure the middleware chain.
type Options struct {
	// OriginVerifySecret, when set, must match the x-origin-verify header.
	OriginVerifySecret string
	// LocalCORS allows browser calls from localhost origins.
	LocalCORS bool
}

type handlers struct {
	lib *library.Library
	svc Summarizer
}

// NewRouter returns the API handler with logging and gzip applied.
func NewRouter(lib *library.Library, svc Summarizer, opts Options) http.Handler {
	h := &handlers{lib: lib, svc: svc}

	r := mux.NewRouter()
	r.HandleFunc("/api/health", handleHealth).Methods(http.MethodGet)

	videos := r.PathPrefix("/api/videos").Subrouter()
	videos.HandleFunc("", h.listVideos).Methods(http.MethodGet)
	videos.HandleFunc("", h.uploadVideo).Methods(http.MethodPost)
	videos.HandleFunc("/{name}", h.getVideo).Methods(http.MethodGet)
	videos.HandleFunc("/{name}", h.deleteVideo).Methods(http.MethodDelete)
	videos.HandleFunc("/{name}/summary", h.summarize).Methods(http.MethodPost)
	videos.HandleFunc("/{name}/questions", h.ask).Methods(http.MethodPost)
	r.HandleFunc("/api/threads/{id}", h.resetThread).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	var handler http.Handler = r
	if opts.LocalCORS {
		handler = withCORS(handler)
	}
	if opts.OriginVerifySecret != "" {
		handler = withOriginVerify(opts.OriginVerifySecret, handler)
	}
	return withLogging(gzhttp.GzipHandler(handler))
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": ServiceName,
	})
}

// --- Middleware ---

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if strings.HasPrefix(r.URL.Path, "/api/") {
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("duration", time.Since(start)).
				Msg("API request")
		}
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withOriginVerify rejects requests that did not come through the CDN,
// which injects the shared secret as a custom origin header.
func withOriginVerify(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-origin-verify") != secret {
			log.Warn().Str("path", r.URL.Path).Msg("Blocked request: missing or invalid x-origin-verify header")
			httpError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
