// Package vectorstore keeps summary chunks with their embeddings and answers
// similarity queries scoped to a single video.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/fpang/video-summarizer/internal/chat"
)

// Backend names accepted by configuration.
const (
	BackendMemory   = "memory"
	BackendPgVector = "pgvector"
	BackendAurora   = "aurora"
	BackendMilvus   = "milvus"
)

// Document is one stored chunk. Source is the owning video name and is the
// only supported retrieval filter.
type Document struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float32 `json:"score,omitempty"`
}

// Store is a similarity-searchable document store.
type Store interface {
	// Add embeds and inserts docs. IDs must already be assigned.
	Add(ctx context.Context, docs []Document) error
	// SimilaritySearch returns up to k documents whose Source equals
	// videoName, most similar first.
	SimilaritySearch(ctx context.Context, query string, k int, videoName string) ([]Document, error)
	// DeleteByVideo removes every document of videoName.
	DeleteByVideo(ctx context.Context, videoName string) error
}

// embedDocuments embeds the content of docs and checks the vector sizes.
func embedDocuments(ctx context.Context, e chat.Embedder, docs []Document) ([][]float32, error) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, err := e.Embed(ctx, texts, chat.EmbedDocument)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embed documents: got %d vectors for %d documents", len(vectors), len(docs))
	}
	if dim := e.Dimensions(); dim > 0 {
		for i, v := range vectors {
			if len(v) != dim {
				return nil, fmt.Errorf("embed documents: vector %d has %d dimensions, want %d", i, len(v), dim)
			}
		}
	}
	return vectors, nil
}

// embedQuery embeds a single search query.
func embedQuery(ctx context.Context, e chat.Embedder, query string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{query}, chat.EmbedQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("embed query: empty vector")
	}
	return vectors[0], nil
}
