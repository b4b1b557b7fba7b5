package api

import (
	"errors"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fpang/video-summarizer/internal/catalog"
	"github.com/fpang/video-summarizer/internal/chat"
	"github.com/fpang/video-summarizer/internal/events"
	"github.com/fpang/video-summarizer/internal/filehandler"
	"github.com/fpang/video-summarizer/internal/service"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

type uploadResponse struct {
	Video catalog.Video `json:"video"`
	IsNew bool          `json:"isNew"`
}

type videoResponse struct {
	Video           *catalog.Video `json:"video"`
	DurationSeconds float64        `json:"durationSeconds,omitempty"`
	Duration        string         `json:"duration,omitempty"`
}

type summaryRequest struct {
	Prompt  string              `json:"prompt,omitempty"`
	Options *chat.PromptOptions `json:"options,omitempty"`
	// Start and End select a sub-clip in seconds.
	Start *float64 `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`
}

type questionRequest struct {
	Question string `json:"question"`
	ThreadID string `json:"threadId,omitempty"`
}

// POST /api/videos (multipart form, field "file")
func (h *handlers) uploadVideo(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		httpError(w, http.StatusBadRequest, "expected multipart form with a file field")
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "file field is required")
			return
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "malformed multipart body")
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			part.Close()
			continue
		}

		video, isNew, err := h.lib.SaveUpload(r.Context(), part.FileName(), part)
		part.Close()
		if err != nil {
			writeError(w, err)
			return
		}
		status := http.StatusOK
		if isNew {
			status = http.StatusCreated
		}
		respondJSON(w, status, uploadResponse{Video: video, IsNew: isNew})
		return
	}
}

// GET /api/videos?search=&suitability=
func (h *handlers) listVideos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := catalog.Filter{Search: strings.TrimSpace(q.Get("search"))}
	if s := q.Get("suitability"); s != "" {
		level, err := catalog.ParseSuitability(s)
		if err != nil {
			httpError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Suitability = level
	}

	videos, err := h.lib.List(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if videos == nil {
		videos = []catalog.Video{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"videos": videos})
}

// GET /api/videos/{name}
func (h *handlers) getVideo(w http.ResponseWriter, r *http.Request) {
	v, err := h.lib.Resolve(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	resp := videoResponse{Video: v}
	if d, err := h.lib.Duration(r.Context(), v.Path); err == nil {
		resp.DurationSeconds = d.Seconds()
		resp.Duration = filehandler.FormatClock(int(d.Seconds()))
	} else {
		log.Debug().Err(err).Str("video", v.Name).Msg("Duration unavailable")
	}
	respondJSON(w, http.StatusOK, resp)
}

// DELETE /api/videos/{name}
func (h *handlers) deleteVideo(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	ok, err := h.lib.Delete(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		httpError(w, http.StatusNotFound, catalog.ErrNotFound.Error()+": "+name)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// POST /api/videos/{name}/summary
//
// With a range the sub-clip is summarized and not indexed. Otherwise the
// summary is indexed by the one request that claims the video first.
func (h *handlers) summarize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := mux.Vars(r)["name"]

	var req summaryRequest
	if err := decodeJSON(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" && req.Options != nil {
		prompt = chat.BuildCustomPrompt(*req.Options)
	}

	v, err := h.lib.Resolve(ctx, name)
	if err != nil {
		writeError(w, err)
		return
	}

	sreq := service.SummaryRequest{Path: v.Path, VideoName: v.Name, Prompt: prompt}
	if req.Start != nil || req.End != nil {
		start, end, err := clipRange(req.Start, req.End)
		if err != nil {
			httpError(w, http.StatusBadRequest, err.Error())
			return
		}
		clip, err := h.lib.Trim(ctx, v.Name, start, end)
		if err != nil {
			writeError(w, err)
			return
		}
		defer func() {
			if err := os.Remove(clip); err != nil && !os.IsNotExist(err) {
				log.Warn().Err(err).Str("path", clip).Msg("Failed to remove trimmed clip")
			}
		}()
		sreq.Path = clip
	} else if !v.Summarized {
		if sreq.IsNewVideo, err = h.lib.ClaimIndexing(ctx, v.Name); err != nil {
			writeError(w, err)
			return
		}
	}

	res, err := h.svc.GenerateSummary(ctx, sreq)
	if sreq.IsNewVideo && (err != nil || !res.Persisted) {
		h.lib.ReleaseIndexing(ctx, v.Name)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if res.Persisted {
		e := events.VideoEvent{VideoName: v.Name, Persisted: true, Chunks: res.Chunks}
		if res.Classification != nil {
			e.Category = res.Classification.Category
			e.Suitability = string(res.Classification.Suitability)
		}
		h.lib.PublishSummarized(ctx, e)
	}
	respondJSON(w, http.StatusOK, res)
}

// POST /api/videos/{name}/questions
func (h *handlers) ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := mux.Vars(r)["name"]

	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		httpError(w, http.StatusBadRequest, service.ErrEmptyQuestion.Error())
		return
	}

	v, err := h.lib.Get(ctx, name)
	if err != nil {
		writeError(w, err)
		return
	}
	answer, err := h.svc.GenerateAnswer(ctx, service.AnswerRequest{
		Path:      v.Path,
		VideoName: v.Name,
		Question:  req.Question,
		ThreadID:  req.ThreadID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	threadID := req.ThreadID
	if threadID == "" {
		threadID = v.Name
	}
	respondJSON(w, http.StatusOK, map[string]string{"answer": answer, "threadId": threadID})
}

// DELETE /api/threads/{id}
func (h *handlers) resetThread(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ResetThread(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// clipRange validates a [start, end) range given in seconds.
func clipRange(start, end *float64) (time.Duration, time.Duration, error) {
	if start == nil || end == nil {
		return 0, 0, errors.New("both start and end are required for a clip")
	}
	s, e := *start, *end
	if math.IsNaN(s) || math.IsNaN(e) || s < 0 || e <= s {
		return 0, 0, errors.New("clip range must satisfy 0 <= start < end")
	}
	return time.Duration(s * float64(time.Second)), time.Duration(e * float64(time.Second)), nil
}
