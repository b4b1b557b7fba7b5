package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/fpang/video-summarizer/internal/chat"
)

type memoryEntry struct {
	doc    Document
	vector []float32
}

// MemoryStore is an in-process Store scored by cosine similarity.
type MemoryStore struct {
	embedder chat.Embedder

	mu      sync.RWMutex
	entries []memoryEntry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store using e for embeddings.
func NewMemoryStore(e chat.Embedder) *MemoryStore {
	return &MemoryStore{embedder: e}
}

func (m *MemoryStore) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	vectors, err := embedDocuments(ctx, m.embedder, docs)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range docs {
		m.entries = append(m.entries, memoryEntry{doc: d, vector: vectors[i]})
	}
	return nil
}

func (m *MemoryStore) SimilaritySearch(ctx context.Context, query string, k int, videoName string) ([]Document, error) {
	if k <= 0 {
		return nil, nil
	}
	q, err := embedQuery(ctx, m.embedder, query)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	var hits []Document
	for _, e := range m.entries {
		if e.doc.Source != videoName {
			continue
		}
		d := e.doc
		d.Score = cosine(q, e.vector)
		hits = append(hits, d)
	}
	m.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MemoryStore) DeleteByVideo(_ context.Context, videoName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.doc.Source != videoName {
			kept = append(kept, e)
		}
	}
	clear(m.entries[len(kept):])
	m.entries = kept
	return nil
}

// Len returns the number of stored documents.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
