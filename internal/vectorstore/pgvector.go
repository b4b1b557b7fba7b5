package vectorstore

import (
	"context"
	"fmt"
	"regexp"

	"github.com/fpang/video-summarizer/internal/chat"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

func validTable(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// PgVector stores chunks in a Postgres table with a pgvector column.
type PgVector struct {
	pool     *pgxpool.Pool
	embedder chat.Embedder
	table    string
}

var _ Store = (*PgVector)(nil)

// NewPgVector returns a store writing to table through pool.
func NewPgVector(pool *pgxpool.Pool, e chat.Embedder, table string) (*PgVector, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	return &PgVector{pool: pool, embedder: e, table: table}, nil
}

// EnsureSchema creates the extension, table and indexes if missing.
func (p *PgVector) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id         TEXT PRIMARY KEY,
  video_name TEXT NOT NULL,
  content    TEXT NOT NULL,
  embedding  vector(%d) NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, p.table, p.embedder.Dimensions()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_video_idx ON %s (video_name)`, p.table, p.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, p.table, p.table),
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure %s schema: %w", p.table, err)
		}
	}
	return nil
}

func (p *PgVector) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	vectors, err := embedDocuments(ctx, p.embedder, docs)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	insert := fmt.Sprintf(`INSERT INTO %s (id, video_name, content, embedding) VALUES ($1, $2, $3, $4)`, p.table)
	for i, d := range docs {
		batch.Queue(insert, d.ID, d.Source, d.Content, pgvector.NewVector(vectors[i]))
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	log.Debug().Str("table", p.table).Int("chunks", len(docs)).Msg("Chunks inserted")
	return nil
}

func (p *PgVector) SimilaritySearch(ctx context.Context, query string, k int, videoName string) ([]Document, error) {
	if k <= 0 {
		return nil, nil
	}
	q, err := embedQuery(ctx, p.embedder, query)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`
SELECT id, video_name, content, 1 - (embedding <=> $1) AS similarity
FROM %s
WHERE video_name = $2
ORDER BY embedding <=> $1
LIMIT $3`, p.table)
	rows, err := p.pool.Query(ctx, sql, pgvector.NewVector(q), videoName, k)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var score float64
		if err := rows.Scan(&d.ID, &d.Source, &d.Content, &score); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		d.Score = float32(score)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return docs, nil
}

func (p *PgVector) DeleteByVideo(ctx context.Context, videoName string) error {
	tag, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE video_name = $1`, p.table), videoName)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	log.Debug().Str("video", videoName).Int64("deleted", tag.RowsAffected()).Msg("Chunks deleted")
	return nil
}
