package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/fpang/video-summarizer/internal/chat"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/rs/zerolog/log"
)

const (
	milvusFieldID      = "id"
	milvusFieldVideo   = "video_name"
	milvusFieldContent = "content"
	milvusFieldVector  = "vector"
)

// Milvus stores chunks in a Milvus collection with an HNSW cosine index.
type Milvus struct {
	mc       client.Client
	embedder chat.Embedder
	coll     string
}

var _ Store = (*Milvus)(nil)

// NewMilvus connects to addr and prepares the collection.
func NewMilvus(ctx context.Context, addr, username, password, collection string, e chat.Embedder) (*Milvus, error) {
	mc, err := client.NewClient(ctx, client.Config{Address: addr, Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}
	m := &Milvus{mc: mc, embedder: e, coll: collection}
	if err := m.ensureSchemaAndIndex(ctx); err != nil {
		_ = mc.Close()
		return nil, err
	}
	return m, nil
}

// Close releases the client connection.
func (m *Milvus) Close() error {
	return m.mc.Close()
}

func (m *Milvus) ensureSchemaAndIndex(ctx context.Context) error {
	has, err := m.mc.HasCollection(ctx, m.coll)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if !has {
		schema := entity.NewSchema().
			WithName(m.coll).
			WithDescription("video summary chunks").
			WithField(entity.NewField().WithName(milvusFieldID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(milvusFieldVideo).WithDataType(entity.FieldTypeVarChar).WithMaxLength(512)).
			WithField(entity.NewField().WithName(milvusFieldContent).WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096)).
			WithField(entity.NewField().WithName(milvusFieldVector).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(m.embedder.Dimensions())))

		if err := m.mc.CreateCollection(ctx, schema, int32(2)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		log.Info().Str("collection", m.coll).Msg("Milvus collection created")
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return fmt.Errorf("new hnsw index: %w", err)
	}
	if err := m.mc.CreateIndex(ctx, m.coll, milvusFieldVector, idx, false, client.WithIndexName("idx_vector")); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := m.mc.LoadCollection(ctx, m.coll, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func (m *Milvus) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	vectors, err := embedDocuments(ctx, m.embedder, docs)
	if err != nil {
		return err
	}

	ids := make([]string, len(docs))
	videos := make([]string, len(docs))
	contents := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
		videos[i] = d.Source
		contents[i] = d.Content
	}

	_, err = m.mc.Insert(ctx, m.coll, "",
		entity.NewColumnVarChar(milvusFieldID, ids),
		entity.NewColumnVarChar(milvusFieldVideo, videos),
		entity.NewColumnVarChar(milvusFieldContent, contents),
		entity.NewColumnFloatVector(milvusFieldVector, m.embedder.Dimensions(), vectors),
	)
	if err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	if err := m.mc.Flush(ctx, m.coll, false); err != nil {
		return fmt.Errorf("flush chunks: %w", err)
	}
	return nil
}

func (m *Milvus) SimilaritySearch(ctx context.Context, query string, k int, videoName string) ([]Document, error) {
	if k <= 0 {
		return nil, nil
	}
	q, err := embedQuery(ctx, m.embedder, query)
	if err != nil {
		return nil, err
	}

	sp, err := entity.NewIndexHNSWSearchParam(74)
	if err != nil {
		return nil, fmt.Errorf("search params: %w", err)
	}
	res, err := m.mc.Search(ctx, m.coll, []string{}, videoFilter(videoName),
		[]string{milvusFieldID, milvusFieldVideo, milvusFieldContent},
		[]entity.Vector{entity.FloatVector(q)}, milvusFieldVector, entity.COSINE, k, sp)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	var docs []Document
	for _, r := range res {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			d := Document{
				ID:      varcharAt(cols[milvusFieldID], i),
				Source:  varcharAt(cols[milvusFieldVideo], i),
				Content: varcharAt(cols[milvusFieldContent], i),
			}
			if i < len(r.Scores) {
				d.Score = r.Scores[i]
			}
			docs = append(docs, d)
		}
	}
	return docs, nil
}

func (m *Milvus) DeleteByVideo(ctx context.Context, videoName string) error {
	if err := m.mc.Delete(ctx, m.coll, "", videoFilter(videoName)); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// videoFilter renders an exact-match boolean expression on the video name.
func videoFilter(videoName string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(videoName)
	return fmt.Sprintf(`%s == "%s"`, milvusFieldVideo, escaped)
}

func varcharAt(c entity.Column, i int) string {
	col, ok := c.(*entity.ColumnVarChar)
	if !ok {
		return ""
	}
	data := col.Data()
	if i >= len(data) {
		return ""
	}
	return data[i]
}
