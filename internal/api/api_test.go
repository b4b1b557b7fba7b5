package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fpang/video-summarizer/internal/catalog"
	"github.com/fpang/video-summarizer/internal/chat"
	"github.com/fpang/video-summarizer/internal/events"
	"github.com/fpang/video-summarizer/internal/filehandler"
	"github.com/fpang/video-summarizer/internal/library"
	"github.com/fpang/video-summarizer/internal/metrics"
	"github.com/fpang/video-summarizer/internal/service"
	"github.com/fpang/video-summarizer/internal/textsplit"
	"github.com/fpang/video-summarizer/internal/vectorstore"
	"github.com/fpang/video-summarizer/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	metrics.SetOutput(io.Discard)
}

type fakeSummarizer struct {
	mu        sync.Mutex
	summaries []service.SummaryRequest
	answers   []service.AnswerRequest
	resets    []string
	result    service.SummaryResult
	answer    string
	err       error
	clipSeen  bool
}

func (f *fakeSummarizer) GenerateSummary(_ context.Context, req service.SummaryRequest) (service.SummaryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, req)
	if _, err := os.Stat(req.Path); err == nil && strings.HasSuffix(filepath.Dir(req.Path), "temp") {
		f.clipSeen = true
	}
	return f.result, f.err
}

func (f *fakeSummarizer) GenerateAnswer(_ context.Context, req service.AnswerRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, req)
	return f.answer, f.err
}

func (f *fakeSummarizer) ResetThread(_ context.Context, id string) error {
	f.resets = append(f.resets, id)
	return nil
}

type recordingPublisher struct {
	events []events.VideoEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e events.VideoEvent) error {
	p.events = append(p.events, e)
	return nil
}

type testEnv struct {
	handler http.Handler
	lib     *library.Library
	catalog *catalog.MemoryStore
	svc     *fakeSummarizer
	pub     *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	env := &testEnv{
		catalog: catalog.NewMemoryStore(),
		svc:     &fakeSummarizer{},
		pub:     &recordingPublisher{},
	}
	env.lib = library.New(library.Options{
		OrgDir:  filepath.Join(root, "videos"),
		TempDir: filepath.Join(root, "temp"),
		Catalog: env.catalog,
		Events:  env.pub,
		Trim: func(_ context.Context, _, out string, _, _ time.Duration) error {
			return os.WriteFile(out, []byte("clip"), 0o644)
		},
		Inspect: func(context.Context, string) (*filehandler.VideoInfo, error) {
			return &filehandler.VideoInfo{Duration: 75 * time.Second}, nil
		},
	})
	env.handler = NewRouter(env.lib, env.svc, Options{})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) upload(t *testing.T, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/videos", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	rec := newTestEnv(t).do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestUploadAndList(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, "clip.mp4", "frames")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["isNew"])

	rec = env.upload(t, "clip.mp4", "frames")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["isNew"])

	rec = env.upload(t, "notes.txt", "text")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/videos?search=CLI", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["videos"], 1)

	rec = env.do(t, http.MethodGet, "/api/videos?suitability=under_5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["videos"], "unrated videos are filtered out")

	rec = env.do(t, http.MethodGet, "/api/videos?suitability=toddler", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetVideo(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, "clip.mp4", "frames")

	rec := env.do(t, http.MethodGet, "/api/videos/clip.mp4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "1:15", out["duration"])
	assert.EqualValues(t, 75, out["durationSeconds"])

	rec = env.do(t, http.MethodGet, "/api/videos/missing.mp4", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "not found")
}

func TestSummarizeIndexesOnlyFirstTime(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, "clip.mp4", "frames")
	env.svc.result = service.SummaryResult{Summary: "A cat naps.", Persisted: true, Chunks: 1}

	rec := env.do(t, http.MethodPost, "/api/videos/clip.mp4/summary", `{"options":{"type":"short","language":"French"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "A cat naps.", decode(t, rec)["summary"])

	require.Len(t, env.svc.summaries, 1)
	first := env.svc.summaries[0]
	assert.True(t, first.IsNewVideo)
	assert.Contains(t, first.Prompt, "short summary")
	assert.Contains(t, first.Prompt, "French")
	assert.Equal(t, events.TypeVideoSummarized, env.pub.events[len(env.pub.events)-1].Type)

	summarized := true
	_, err := env.catalog.Update(context.Background(), "clip.mp4", catalog.Update{Summarized: &summarized})
	require.NoError(t, err)

	rec = env.do(t, http.MethodPost, "/api/videos/clip.mp4/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, env.svc.summaries[1].IsNewVideo)
}

// gatedGenerator holds every summary call until want calls are in flight,
// so concurrent requests overlap inside the workflow.
type gatedGenerator struct {
	wg      sync.WaitGroup
	summary string
}

func newGatedGenerator(want int, summary string) *gatedGenerator {
	g := &gatedGenerator{summary: summary}
	g.wg.Add(want)
	return g
}

func (g *gatedGenerator) Generate(context.Context, chat.Request) (string, error) {
	g.wg.Done()
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	return g.summary, nil
}

type lengthEmbedder struct{}

func (lengthEmbedder) Embed(_ context.Context, texts []string, _ chat.EmbedTask) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (lengthEmbedder) Dimensions() int { return 2 }

func TestConcurrentFirstSummariesIndexOnce(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, "clip.mp4", "frames")

	summary := strings.Repeat("The cat walks across the garden and sits by the pond. ", 12)
	splitter := textsplit.New(200, 50)
	chunks, err := splitter.Split(summary)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	vectors := vectorstore.NewMemoryStore(lengthEmbedder{})
	wf, err := workflow.New(workflow.Deps{
		Generator: newGatedGenerator(2, summary),
		Vectors:   vectors,
		Splitter:  splitter,
		Catalog:   env.catalog,
	})
	require.NoError(t, err)
	handler := NewRouter(env.lib, service.New(wf, nil), Options{})

	codes := make([]int, 2)
	var wg sync.WaitGroup
	for i := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/videos/clip.mp4/summary", nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}()
	}
	wg.Wait()

	assert.Equal(t, []int{http.StatusOK, http.StatusOK}, codes)
	assert.Equal(t, len(chunks), vectors.Len(), "one chunk set for one video")
	v, _ := env.catalog.GetByName(context.Background(), "clip.mp4")
	assert.True(t, v.Summarized)
}

func TestSummarizeReleasesClaimWhenNotPersisted(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, "clip.mp4", "frames")

	env.svc.err = errors.New("disk on fire")
	rec := env.do(t, http.MethodPost, "/api/videos/clip.mp4/summary", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	env.svc.err = nil
	env.svc.result = service.SummaryResult{Summary: "A cat naps."}
	rec = env.do(t, http.MethodPost, "/api/videos/clip.mp4/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, env.svc.summaries, 2)
	assert.True(t, env.svc.summaries[0].IsNewVideo)
	assert.True(t, env.svc.summaries[1].IsNewVideo, "a failed first summary leaves the video unindexed")
	v, _ := env.catalog.GetByName(context.Background(), "clip.mp4")
	assert.False(t, v.Summarized)
}

func TestSummarizeClip(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, "clip.mp4", "frames")
	env.svc.result = service.SummaryResult{Summary: "part"}

	rec := env.do(t, http.MethodPost, "/api/videos/clip.mp4/summary", `{"start": 5, "end": 12.5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req := env.svc.summaries[0]
	assert.False(t, req.IsNewVideo, "clips are never indexed")
	assert.True(t, env.svc.clipSeen)
	assert.NoFileExists(t, req.Path, "the clip is removed after summarizing")

	rec = env.do(t, http.MethodPost, "/api/videos/clip.mp4/summary", `{"start": 9, "end": 3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/videos/clip.mp4/summary", `{"start": 9}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummarizeErrors(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, "clip.mp4", "frames")

	rec := env.do(t, http.MethodPost, "/api/videos/clip.mp4/summary", `{"bogus": 1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.svc.err = fmt.Errorf("summarize: %w", &chat.ModelError{Kind: chat.KindQuota, Message: "quota exceeded"})
	rec = env.do(t, http.MethodPost, "/api/videos/clip.mp4/summary", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "quota exceeded")

	env.svc.err = errors.New("disk on fire")
	rec = env.do(t, http.MethodPost, "/api/videos/clip.mp4/summary", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode(t, rec)["error"])
}

func TestAsk(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, "clip.mp4", "frames")
	env.svc.answer = "Yes, a cat."

	rec := env.do(t, http.MethodPost, "/api/videos/clip.mp4/questions", `{"question":"Is there a cat?","threadId":"t1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, "Yes, a cat.", out["answer"])
	assert.Equal(t, "t1", out["threadId"])
	assert.Equal(t, "clip.mp4", env.svc.answers[0].VideoName)

	rec = env.do(t, http.MethodPost, "/api/videos/clip.mp4/questions", `{"question":"again"}`)
	assert.Equal(t, "clip.mp4", decode(t, rec)["threadId"])

	rec = env.do(t, http.MethodPost, "/api/videos/clip.mp4/questions", `{"question":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/videos/ghost.mp4/questions", `{"question":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/threads/t1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"t1"}, env.svc.resets)
}

func TestDeleteVideo(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, "clip.mp4", "frames")

	rec := env.do(t, http.MethodDelete, "/api/videos/clip.mp4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/videos/clip.mp4", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutingErrors(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/nope", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, env.do(t, http.MethodPut, "/api/videos", "").Code)
}

func TestOriginVerify(t *testing.T) {
	env := newTestEnv(t)
	h := NewRouter(env.lib, env.svc, Options{OriginVerifySecret: "s3cret"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("x-origin-verify", "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClipRange(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	start, end, err := clipRange(f(1.5), f(3))
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, start)
	assert.Equal(t, 3*time.Second, end)

	_, _, err = clipRange(f(-1), f(3))
	assert.Error(t, err)
	_, _, err = clipRange(nil, f(3))
	assert.Error(t, err)
}
