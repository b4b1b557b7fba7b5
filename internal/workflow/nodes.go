package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fpang/video-summarizer/internal/assets"
	"github.com/fpang/video-summarizer/internal/catalog"
	"github.com/fpang/video-summarizer/internal/chat"
	"github.com/fpang/video-summarizer/internal/filehandler"
	"github.com/fpang/video-summarizer/internal/metrics"
	"github.com/fpang/video-summarizer/internal/textsplit"
	"github.com/fpang/video-summarizer/internal/vectorstore"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 4

// Classifier rates a video from its summary.
type Classifier interface {
	Classify(ctx context.Context, videoName, summary string) (chat.Classification, error)
}

// Deps are the collaborators of the nodes. Classifier and Catalog are
// optional.
type Deps struct {
	Generator  chat.Generator
	Vectors    vectorstore.Store
	Splitter   *textsplit.Splitter
	Classifier Classifier
	Catalog    catalog.Store
	TopK       int

	// NewID returns chunk ids; uuid.NewString when nil.
	NewID func() string
}

type nodes struct {
	Deps
}

func (n *nodes) ingestVideo(_ context.Context, s *VideoState) error {
	file, err := filehandler.LoadVideo(s.VideoPath)
	if err != nil {
		return err
	}
	s.UploadedFile = file
	log.Debug().
		Str("video", s.VideoName).
		Str("mime_type", file.MIMEType).
		Int64("bytes", file.Size).
		Bool("inline", file.Inline()).
		Msg("Video loaded")
	return nil
}

func (n *nodes) summarizeVideo(ctx context.Context, s *VideoState) error {
	if s.UploadedFile == nil {
		return errors.New("no video loaded")
	}

	text, err := n.Generator.Generate(ctx, chat.Request{
		Operation: "summarize",
		Text:      chat.SummaryInstruction(s.Prompt),
		Media: []chat.Media{{
			MIMEType: s.UploadedFile.MIMEType,
			Data:     s.UploadedFile.Data,
			Path:     s.UploadedFile.Path,
		}},
	})
	s.UploadedFile = nil
	if err != nil {
		return err
	}

	s.Summary = text
	log.Info().Str("video", s.VideoName).Int("summary_length", len(text)).Msg("Summary generated")
	return nil
}

func (n *nodes) classifyVideo(ctx context.Context, s *VideoState) error {
	if !s.IsNewVideo || strings.TrimSpace(s.Summary) == "" {
		return nil
	}

	c, err := n.Classifier.Classify(ctx, s.VideoName, s.Summary)
	if err != nil {
		log.Warn().Err(err).Str("video", s.VideoName).Msg("Classification failed, continuing")
		return nil
	}
	s.Classification = &c

	if n.Catalog == nil {
		return nil
	}
	ok, err := n.Catalog.Update(ctx, s.VideoName, catalog.Update{
		Category:    &c.Category,
		Suitability: &c.Suitability,
	})
	switch {
	case err != nil:
		log.Warn().Err(err).Str("video", s.VideoName).Msg("Failed to store classification")
	case !ok:
		log.Warn().Str("video", s.VideoName).Msg("Classification not stored, video has no catalog record")
	}
	return nil
}

// persistSummary is best-effort: store failures are recorded on the state
// and never abort the run.
func (n *nodes) persistSummary(ctx context.Context, s *VideoState) error {
	if !s.IsNewVideo {
		return nil
	}

	chunks, err := n.Splitter.Split(s.Summary)
	if err != nil {
		n.persistFailed(s, err)
		return nil
	}
	if len(chunks) == 0 {
		log.Debug().Str("video", s.VideoName).Msg("Empty summary, nothing to persist")
		return nil
	}

	newID := n.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	docs := make([]vectorstore.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = vectorstore.Document{ID: newID(), Content: c, Source: s.VideoName}
	}

	if err := n.Vectors.Add(ctx, docs); err != nil {
		n.persistFailed(s, err)
		return nil
	}

	s.SummaryPersisted = true
	s.ChunksPersisted = len(docs)
	metrics.New(metrics.Namespace).
		Metric("ChunksPersisted", float64(len(docs)), metrics.UnitCount).
		Flush()
	log.Info().Str("video", s.VideoName).Int("chunks", len(docs)).Msg("Summary persisted")

	if n.Catalog != nil {
		summarized := true
		if _, err := n.Catalog.Update(ctx, s.VideoName, catalog.Update{Summarized: &summarized}); err != nil {
			log.Warn().Err(err).Str("video", s.VideoName).Msg("Failed to mark video as summarized")
		}
	}
	return nil
}

func (n *nodes) persistFailed(s *VideoState, err error) {
	s.PersistErr = err
	metrics.New(metrics.Namespace).Count("PersistFailures").Flush()
	log.Error().Err(err).Str("video", s.VideoName).Msg("Failed to persist summary, returning it anyway")
}

func (n *nodes) answerQuestion(ctx context.Context, s *VideoState) error {
	question := strings.TrimSpace(s.Question)

	topK := n.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	hits, err := n.Vectors.SimilaritySearch(ctx, question, topK, s.VideoName)
	if err != nil {
		return fmt.Errorf("retrieve context: %w", err)
	}

	if len(hits) == 0 {
		log.Info().Str("video", s.VideoName).Msg("No stored summary, returning fallback answer")
		s.Answer = NoSummaryFallback
	} else {
		chunks := make([]string, len(hits))
		for i, h := range hits {
			chunks[i] = h.Content
		}
		answer, err := n.Generator.Generate(ctx, chat.Request{
			Operation:         "answer",
			SystemInstruction: assets.RenderAnswerSystem(chunks),
			History:           s.Messages,
			Text:              question,
		})
		if err != nil {
			return err
		}
		s.Answer = answer
	}

	s.Messages = append(s.Messages,
		chat.Message{Role: chat.RoleUser, Content: question},
		chat.Message{Role: chat.RoleAssistant, Content: s.Answer},
	)
	return nil
}
