// Package service is the entry point used by the HTTP API and the CLI to
// summarize videos and answer questions about them.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fpang/video-summarizer/internal/chat"
	"github.com/fpang/video-summarizer/internal/memory"
	"github.com/fpang/video-summarizer/internal/workflow"
	"github.com/rs/zerolog/log"
)

// SummaryNotAvailable is returned as the summary when the model produced none.
const SummaryNotAvailable = "summary not available"

// ErrEmptyQuestion is returned by GenerateAnswer for a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

// Runner executes one workflow pass.
type Runner interface {
	Run(ctx context.Context, state *workflow.VideoState) ([]string, error)
}

// SummaryRequest selects the video to summarize. IsNewVideo asks for the
// summary to be indexed for later questions.
type SummaryRequest struct {
	Path       string
	VideoName  string
	IsNewVideo bool
	Prompt     string
}

// SummaryResult carries the summary and the indexing outcome. Warning is
// set when indexing was attempted and failed.
type SummaryResult struct {
	Summary        string               `json:"summary"`
	Persisted      bool                 `json:"persisted"`
	Chunks         int                  `json:"chunks,omitempty"`
	Warning        string               `json:"warning,omitempty"`
	Classification *chat.Classification `json:"classification,omitempty"`
}

// AnswerRequest is one conversation turn. An empty ThreadID uses the video
// name, so each video has a default conversation.
type AnswerRequest struct {
	Path      string
	VideoName string
	Question  string
	ThreadID  string
}

// Service owns conversation memory and serializes turns of the same thread.
type Service struct {
	runner Runner
	memory memory.Store
	locks  *threadLocks
}

// New returns a Service. A nil memory store uses an LRUStore with default size.
func New(runner Runner, mem memory.Store) *Service {
	if mem == nil {
		mem = memory.NewLRUStore(0)
	}
	return &Service{runner: runner, memory: mem, locks: newThreadLocks()}
}

// GenerateSummary runs the ingest path.
func (s *Service) GenerateSummary(ctx context.Context, req SummaryRequest) (SummaryResult, error) {
	state := &workflow.VideoState{
		VideoPath:  req.Path,
		VideoName:  req.VideoName,
		IsNewVideo: req.IsNewVideo,
		Prompt:     req.Prompt,
	}
	if _, err := s.runner.Run(ctx, state); err != nil {
		return SummaryResult{}, fmt.Errorf("summarize %s: %w", req.VideoName, err)
	}

	result := SummaryResult{
		Summary:        state.Summary,
		Persisted:      state.SummaryPersisted,
		Chunks:         state.ChunksPersisted,
		Classification: state.Classification,
	}
	if strings.TrimSpace(result.Summary) == "" {
		result.Summary = SummaryNotAvailable
	}
	if state.PersistErr != nil {
		result.Warning = "summary was not indexed for questions: " + state.PersistErr.Error()
	}
	return result, nil
}

// GenerateAnswer runs the answer path within the request's thread and
// returns "" when the run produced no answer.
func (s *Service) GenerateAnswer(ctx context.Context, req AnswerRequest) (string, error) {
	if strings.TrimSpace(req.Question) == "" {
		return "", ErrEmptyQuestion
	}
	threadID := req.ThreadID
	if threadID == "" {
		threadID = req.VideoName
	}

	unlock := s.locks.lock(threadID)
	defer unlock()

	history, err := s.memory.Load(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("load thread %s: %w", threadID, err)
	}

	state := &workflow.VideoState{
		VideoPath: req.Path,
		VideoName: req.VideoName,
		Question:  req.Question,
		Messages:  history,
	}
	if _, err := s.runner.Run(ctx, state); err != nil {
		return "", fmt.Errorf("answer %s: %w", req.VideoName, err)
	}

	if len(state.Messages) > len(history) {
		if err := s.memory.Save(ctx, threadID, state.Messages); err != nil {
			log.Warn().Err(err).Str("thread", threadID).Msg("Failed to save conversation, answer still returned")
		}
	}
	return state.Answer, nil
}

// ResetThread forgets a conversation.
func (s *Service) ResetThread(ctx context.Context, threadID string) error {
	unlock := s.locks.lock(threadID)
	defer unlock()
	return s.memory.Delete(ctx, threadID)
}

// threadLocks hands out one mutex per thread id and drops it once no
// goroutine holds or waits for it.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*threadLock)}
}

func (t *threadLocks) lock(id string) func() {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &threadLock{}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, id)
		}
		t.mu.Unlock()
	}
}

func (t *threadLocks) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
