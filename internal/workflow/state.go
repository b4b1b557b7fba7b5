// Package workflow runs a video through summarization and indexing, or
// answers a question about an indexed video, as a small node graph.
package workflow

import (
	"strings"

	"github.com/fpang/video-summarizer/internal/chat"
	"github.com/fpang/video-summarizer/internal/filehandler"
)

// Node names.
const (
	NodeIngestVideo    = "ingest_video"
	NodeSummarizeVideo = "summarize_video"
	NodeClassifyVideo  = "classify_video"
	NodePersistSummary = "persist_summary"
	NodeAnswerQuestion = "answer_question"
)

// NoSummaryFallback is the answer given when nothing has been indexed for
// the video. The model is not consulted in that case.
const NoSummaryFallback = "No stored summary was found for this video. Generate a summary first, then ask your question again."

// VideoState is created per run and threaded through every node. Exactly
// one of Summary or Answer is filled by a successful run.
type VideoState struct {
	VideoPath string
	VideoName string

	// UploadedFile holds the raw media between ingest and summarize and is
	// released once the model has seen it.
	UploadedFile *filehandler.UploadedFile

	Summary    string
	IsNewVideo bool
	Prompt     string

	Question string
	Answer   string
	Messages []chat.Message

	// SummaryPersisted is true when this run wrote the summary chunks.
	// PersistErr holds the absorbed store failure, if any.
	SummaryPersisted bool
	ChunksPersisted  int
	PersistErr       error

	Classification *chat.Classification
}

// Route picks the entry node: a question that is non-blank after trimming
// goes to answer_question, anything else to ingest_video.
func Route(s *VideoState) string {
	if strings.TrimSpace(s.Question) != "" {
		return NodeAnswerQuestion
	}
	return NodeIngestVideo
}
