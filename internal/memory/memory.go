// Package memory keeps conversation history per thread id so follow-up
// questions see the earlier turns.
package memory

import (
	"container/list"
	"context"
	"slices"
	"sync"

	"github.com/fpang/video-summarizer/internal/chat"
)

// Backend names accepted by configuration.
const (
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
)

// DefaultMaxThreads bounds the in-memory store when no limit is configured.
const DefaultMaxThreads = 1000

// Store loads and saves the ordered message history of a thread. Load of an
// unknown thread returns an empty history.
type Store interface {
	Load(ctx context.Context, threadID string) ([]chat.Message, error)
	Save(ctx context.Context, threadID string, messages []chat.Message) error
	Delete(ctx context.Context, threadID string) error
}

type thread struct {
	id       string
	messages []chat.Message
}

// LRUStore is an in-process Store that evicts the least recently used
// thread once more than maxThreads are held.
type LRUStore struct {
	mu         sync.Mutex
	maxThreads int
	order      *list.List
	threads    map[string]*list.Element
}

var _ Store = (*LRUStore)(nil)

// NewLRUStore returns an LRUStore. maxThreads <= 0 uses DefaultMaxThreads.
func NewLRUStore(maxThreads int) *LRUStore {
	if maxThreads <= 0 {
		maxThreads = DefaultMaxThreads
	}
	return &LRUStore{
		maxThreads: maxThreads,
		order:      list.New(),
		threads:    make(map[string]*list.Element),
	}
}

func (s *LRUStore) Load(_ context.Context, threadID string) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.threads[threadID]
	if !ok {
		return nil, nil
	}
	s.order.MoveToFront(el)
	return slices.Clone(el.Value.(*thread).messages), nil
}

func (s *LRUStore) Save(_ context.Context, threadID string, messages []chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.threads[threadID]; ok {
		el.Value.(*thread).messages = slices.Clone(messages)
		s.order.MoveToFront(el)
		return nil
	}

	s.threads[threadID] = s.order.PushFront(&thread{id: threadID, messages: slices.Clone(messages)})
	for s.order.Len() > s.maxThreads {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.threads, oldest.Value.(*thread).id)
	}
	return nil
}

func (s *LRUStore) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.threads[threadID]; ok {
		s.order.Remove(el)
		delete(s.threads, threadID)
	}
	return nil
}

// Len returns the number of threads held.
func (s *LRUStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
