package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/fpang/video-summarizer/internal/catalog"
	"github.com/fpang/video-summarizer/internal/chat"
	"github.com/fpang/video-summarizer/internal/filehandler"
	"github.com/fpang/video-summarizer/internal/library"
	"github.com/fpang/video-summarizer/internal/service"
	"github.com/rs/zerolog/log"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func httpError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	httpError(w, status, msg)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, filehandler.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, filehandler.ErrInvalidName), errors.Is(err, service.ErrEmptyQuestion):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, library.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	}
	if me, ok := chat.AsModelError(err); ok {
		return http.StatusBadGateway, "model error: " + me.Message
	}
	return http.StatusInternalServerError, "internal error"
}

// decodeJSON reads an optional JSON body; an empty body leaves v unchanged.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
