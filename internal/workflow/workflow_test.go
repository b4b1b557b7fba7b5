package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fpang/video-summarizer/internal/catalog"
	"github.com/fpang/video-summarizer/internal/chat"
	"github.com/fpang/video-summarizer/internal/filehandler"
	"github.com/fpang/video-summarizer/internal/textsplit"
	"github.com/fpang/video-summarizer/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	replies map[string]string
	err     error
	calls   []chat.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req chat.Request) (string, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	return f.replies[req.Operation], nil
}

// fakeVectors records writes and serves canned search results.
type fakeVectors struct {
	added     []vectorstore.Document
	addErr    error
	searchErr error
	queries   []string
}

func (f *fakeVectors) Add(_ context.Context, docs []vectorstore.Document) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, docs...)
	return nil
}

func (f *fakeVectors) SimilaritySearch(_ context.Context, query string, k int, videoName string) ([]vectorstore.Document, error) {
	f.queries = append(f.queries, query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []vectorstore.Document
	for _, d := range f.added {
		if d.Source == videoName && len(out) < k {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeVectors) DeleteByVideo(context.Context, string) error { return nil }

type fakeClassifier struct {
	result chat.Classification
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(context.Context, string, string) (chat.Classification, error) {
	f.calls++
	return f.result, f.err
}

func writeVideo(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("not really a video"), 0o644))
	return path
}

func newWorkflow(t *testing.T, deps Deps) *Workflow {
	t.Helper()
	if deps.Splitter == nil {
		deps.Splitter = textsplit.New(textsplit.DefaultChunkSize, textsplit.DefaultChunkOverlap)
	}
	n := 0
	deps.NewID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	w, err := New(deps)
	require.NoError(t, err)
	return w
}

var longSummary = strings.Repeat("A red car drives slowly down a quiet street at dusk. ", 12)

func TestRoute(t *testing.T) {
	for _, q := range []string{"", "   ", "\n\t"} {
		assert.Equal(t, NodeIngestVideo, Route(&VideoState{Question: q}), "question %q", q)
	}
	for _, q := range []string{"What happens?", "  why  "} {
		assert.Equal(t, NodeAnswerQuestion, Route(&VideoState{Question: q}), "question %q", q)
	}
}

func TestSummarizeNewVideo(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{"summarize": longSummary}}
	vec := &fakeVectors{}
	w := newWorkflow(t, Deps{Generator: gen, Vectors: vec})

	state := &VideoState{VideoPath: writeVideo(t, "clip.mp4"), VideoName: "clip", IsNewVideo: true}
	path, err := w.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, []string{NodeIngestVideo, NodeSummarizeVideo, NodePersistSummary}, path)
	assert.Equal(t, longSummary, state.Summary)
	assert.Empty(t, state.Answer)
	assert.Nil(t, state.UploadedFile, "media is released after summarizing")

	require.Len(t, gen.calls, 1)
	req := gen.calls[0]
	require.Len(t, req.Media, 1)
	assert.Equal(t, "video/mp4", req.Media[0].MIMEType)
	assert.Equal(t, chat.SummaryInstruction(""), req.Text)

	require.NotEmpty(t, vec.added)
	assert.True(t, state.SummaryPersisted)
	assert.Equal(t, len(vec.added), state.ChunksPersisted)
	ids := map[string]bool{}
	for _, d := range vec.added {
		assert.Equal(t, "clip", d.Source)
		assert.LessOrEqual(t, len(d.Content), textsplit.DefaultChunkSize)
		ids[d.ID] = true
	}
	assert.Len(t, ids, len(vec.added), "every chunk gets its own id")
}

func TestPersistTwiceAddsIndependentChunkSets(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{"summarize": longSummary}}
	vec := &fakeVectors{}
	w, err := New(Deps{
		Generator: gen,
		Vectors:   vec,
		Splitter:  textsplit.New(textsplit.DefaultChunkSize, textsplit.DefaultChunkOverlap),
	})
	require.NoError(t, err)

	video := writeVideo(t, "clip.mp4")
	var sets [][]vectorstore.Document
	for range 2 {
		before := len(vec.added)
		state := &VideoState{VideoPath: video, VideoName: "clip", IsNewVideo: true}
		_, err := w.Run(context.Background(), state)
		require.NoError(t, err)
		require.True(t, state.SummaryPersisted)
		sets = append(sets, vec.added[before:])
	}

	require.Len(t, sets[1], len(sets[0]))
	ids := map[string]bool{}
	for i := range sets[0] {
		assert.Equal(t, sets[0][i].Content, sets[1][i].Content)
		ids[sets[0][i].ID] = true
		ids[sets[1][i].ID] = true
	}
	assert.Len(t, ids, 2*len(sets[0]), "each run writes chunks under fresh ids")
}

func TestSummarizeCustomPrompt(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{"summarize": "summary"}}
	w := newWorkflow(t, Deps{Generator: gen, Vectors: &fakeVectors{}})

	state := &VideoState{VideoPath: writeVideo(t, "clip.webm"), VideoName: "clip", Prompt: "Count the cats."}
	_, err := w.Run(context.Background(), state)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(gen.calls[0].Text, "Count the cats. "))
	assert.Equal(t, "video/webm", gen.calls[0].Media[0].MIMEType)
}

func TestSummarizeExistingVideoDoesNotPersist(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{"summarize": longSummary}}
	vec := &fakeVectors{}
	w := newWorkflow(t, Deps{Generator: gen, Vectors: vec})

	state := &VideoState{VideoPath: writeVideo(t, "clip.mp4"), VideoName: "clip", IsNewVideo: false}
	_, err := w.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Empty(t, vec.added)
	assert.False(t, state.SummaryPersisted)
	assert.NoError(t, state.PersistErr)
}

func TestSummarizeEmptySummaryWritesNothing(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{"summarize": ""}}
	vec := &fakeVectors{addErr: errors.New("must not be called")}
	w := newWorkflow(t, Deps{Generator: gen, Vectors: vec})

	state := &VideoState{VideoPath: writeVideo(t, "clip.mp4"), VideoName: "clip", IsNewVideo: true}
	_, err := w.Run(context.Background(), state)
	require.NoError(t, err)
	assert.False(t, state.SummaryPersisted)
	assert.NoError(t, state.PersistErr)
}

func TestSummarizeStoreFailureIsAbsorbed(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{"summarize": longSummary}}
	vec := &fakeVectors{addErr: errors.New("store down")}
	w := newWorkflow(t, Deps{Generator: gen, Vectors: vec})

	state := &VideoState{VideoPath: writeVideo(t, "clip.mp4"), VideoName: "clip", IsNewVideo: true}
	_, err := w.Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, longSummary, state.Summary)
	assert.False(t, state.SummaryPersisted)
	assert.ErrorContains(t, state.PersistErr, "store down")
}

func TestSummarizeMissingVideo(t *testing.T) {
	gen := &fakeGenerator{}
	w := newWorkflow(t, Deps{Generator: gen, Vectors: &fakeVectors{}})

	state := &VideoState{VideoPath: filepath.Join(t.TempDir(), "gone.mp4"), VideoName: "gone", IsNewVideo: true}
	path, err := w.Run(context.Background(), state)
	assert.ErrorIs(t, err, filehandler.ErrNotFound)
	assert.Equal(t, []string{NodeIngestVideo}, path)
	assert.Empty(t, gen.calls)
}

func TestSummarizeModelError(t *testing.T) {
	modelErr := &chat.ModelError{Kind: chat.KindQuota, Provider: "google", Operation: "summarize", Message: "quota"}
	gen := &fakeGenerator{err: modelErr}
	vec := &fakeVectors{}
	w := newWorkflow(t, Deps{Generator: gen, Vectors: vec})

	state := &VideoState{VideoPath: writeVideo(t, "clip.mp4"), VideoName: "clip", IsNewVideo: true}
	_, err := w.Run(context.Background(), state)
	me, ok := chat.AsModelError(err)
	require.True(t, ok)
	assert.Equal(t, chat.KindQuota, me.Kind)
	assert.Empty(t, vec.added)
}

func TestClassifyNewVideo(t *testing.T) {
	ctx := context.Background()
	cat := catalog.NewMemoryStore()
	_, err := cat.Add(ctx, catalog.Video{Name: "clip"})
	require.NoError(t, err)

	gen := &fakeGenerator{replies: map[string]string{"summarize": longSummary}}
	cls := &fakeClassifier{result: chat.Classification{Category: "Autos & Vehicles", Suitability: catalog.Under5}}
	w := newWorkflow(t, Deps{Generator: gen, Vectors: &fakeVectors{}, Classifier: cls, Catalog: cat})

	state := &VideoState{VideoPath: writeVideo(t, "clip.mp4"), VideoName: "clip", IsNewVideo: true}
	path, err := w.Run(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, []string{NodeIngestVideo, NodeSummarizeVideo, NodeClassifyVideo, NodePersistSummary}, path)
	require.NotNil(t, state.Classification)

	v, err := cat.GetByName(ctx, "clip")
	require.NoError(t, err)
	assert.Equal(t, "Autos & Vehicles", v.Category)
	assert.Equal(t, catalog.Under5, v.Suitability)
	assert.True(t, v.Summarized)
}

func TestClassifyFailureIsAbsorbed(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{"summarize": longSummary}}
	cls := &fakeClassifier{err: errors.New("bad json")}
	vec := &fakeVectors{}
	w := newWorkflow(t, Deps{Generator: gen, Vectors: vec, Classifier: cls})

	state := &VideoState{VideoPath: writeVideo(t, "clip.mp4"), VideoName: "clip", IsNewVideo: true}
	_, err := w.Run(context.Background(), state)
	require.NoError(t, err)
	assert.Nil(t, state.Classification)
	assert.True(t, state.SummaryPersisted)
}

func TestClassifySkippedForKnownVideo(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{"summarize": longSummary}}
	cls := &fakeClassifier{}
	w := newWorkflow(t, Deps{Generator: gen, Vectors: &fakeVectors{}, Classifier: cls})

	_, err := w.Run(context.Background(), &VideoState{VideoPath: writeVideo(t, "clip.mp4"), VideoName: "clip"})
	require.NoError(t, err)
	assert.Zero(t, cls.calls)
}

func TestAnswerQuestion(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{"answer": "A red car drives by."}}
	vec := &fakeVectors{added: []vectorstore.Document{
		{ID: "1", Content: "A red car drives slowly.", Source: "clip"},
		{ID: "2", Content: "A dog barks.", Source: "other"},
	}}
	w := newWorkflow(t, Deps{Generator: gen, Vectors: vec})

	state := &VideoState{VideoName: "clip", Question: "  What happens at minute 2?  "}
	path, err := w.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, []string{NodeAnswerQuestion}, path)
	assert.Equal(t, "A red car drives by.", state.Answer)
	assert.Empty(t, state.Summary)
	assert.Equal(t, []string{"What happens at minute 2?"}, vec.queries)

	require.Len(t, state.Messages, 2)
	assert.Equal(t, chat.Message{Role: chat.RoleUser, Content: "What happens at minute 2?"}, state.Messages[0])
	assert.Equal(t, chat.Message{Role: chat.RoleAssistant, Content: "A red car drives by."}, state.Messages[1])

	require.Len(t, gen.calls, 1)
	req := gen.calls[0]
	assert.Contains(t, req.SystemInstruction, "A red car drives slowly.")
	assert.NotContains(t, req.SystemInstruction, "A dog barks.")
	assert.Empty(t, req.Media)
	assert.Equal(t, "What happens at minute 2?", req.Text)
}

func TestAnswerQuestionKeepsHistory(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{"answer": "Blue."}}
	vec := &fakeVectors{added: []vectorstore.Document{{ID: "1", Content: "A blue car.", Source: "clip"}}}
	w := newWorkflow(t, Deps{Generator: gen, Vectors: vec})

	prior := []chat.Message{
		{Role: chat.RoleUser, Content: "Is there a car?"},
		{Role: chat.RoleAssistant, Content: "Yes."},
	}
	state := &VideoState{VideoName: "clip", Question: "What color?", Messages: prior}
	_, err := w.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, prior, gen.calls[0].History)
	assert.Len(t, state.Messages, 4)
}

func TestAnswerQuestionWithoutSummary(t *testing.T) {
	gen := &fakeGenerator{}
	w := newWorkflow(t, Deps{Generator: gen, Vectors: &fakeVectors{}})

	state := &VideoState{VideoName: "neverSummarized", Question: "anything"}
	_, err := w.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, NoSummaryFallback, state.Answer)
	assert.Empty(t, gen.calls, "the model is not consulted without context")
	assert.Len(t, state.Messages, 2)
}

func TestAnswerQuestionRetrievalError(t *testing.T) {
	gen := &fakeGenerator{}
	w := newWorkflow(t, Deps{Generator: gen, Vectors: &fakeVectors{searchErr: errors.New("timeout")}})

	state := &VideoState{VideoName: "clip", Question: "anything"}
	_, err := w.Run(context.Background(), state)
	assert.ErrorContains(t, err, "retrieve context")
	assert.Empty(t, state.Answer)
	assert.Empty(t, state.Messages)
}

func TestSummaryThenQuestionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore(constantEmbedder{})
	gen := &fakeGenerator{replies: map[string]string{"summarize": longSummary, "answer": "A car."}}
	w := newWorkflow(t, Deps{Generator: gen, Vectors: store})

	_, err := w.Run(ctx, &VideoState{VideoPath: writeVideo(t, "clip.mp4"), VideoName: "X", IsNewVideo: true})
	require.NoError(t, err)

	state := &VideoState{VideoName: "X", Question: "What drives?"}
	_, err = w.Run(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, "A car.", state.Answer)

	other := &VideoState{VideoName: "Y", Question: "What drives?"}
	_, err = w.Run(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, NoSummaryFallback, other.Answer)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

type constantEmbedder struct{}

func (constantEmbedder) Dimensions() int { return 2 }

func (constantEmbedder) Embed(_ context.Context, texts []string, _ chat.EmbedTask) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 1}
	}
	return out, nil
}
