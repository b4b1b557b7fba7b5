package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata"
	rdsdatatypes "github.com/aws/aws-sdk-go-v2/service/rdsdata/types"
	"github.com/fpang/video-summarizer/internal/chat"
	"github.com/rs/zerolog/log"
)

// StatementExecutor is the subset of the RDS Data API client used here.
type StatementExecutor interface {
	ExecuteStatement(ctx context.Context, in *rdsdata.ExecuteStatementInput, optFns ...func(*rdsdata.Options)) (*rdsdata.ExecuteStatementOutput, error)
	BatchExecuteStatement(ctx context.Context, in *rdsdata.BatchExecuteStatementInput, optFns ...func(*rdsdata.Options)) (*rdsdata.BatchExecuteStatementOutput, error)
}

// DataAPI stores chunks in Aurora PostgreSQL (pgvector) through the RDS
// Data API, so no database connection pool is needed on Lambda.
type DataAPI struct {
	client     StatementExecutor
	embedder   chat.Embedder
	clusterARN string
	secretARN  string
	database   string
	table      string
}

var _ Store = (*DataAPI)(nil)

// NewDataAPI returns a store writing to table in the given Aurora cluster.
func NewDataAPI(client StatementExecutor, e chat.Embedder, clusterARN, secretARN, database, table string) (*DataAPI, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	return &DataAPI{
		client:     client,
		embedder:   e,
		clusterARN: clusterARN,
		secretARN:  secretARN,
		database:   database,
		table:      table,
	}, nil
}

func formatVector(emb []float32) string {
	if len(emb) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range emb {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func stringParam(name, value string) rdsdatatypes.SqlParameter {
	return rdsdatatypes.SqlParameter{Name: aws.String(name), Value: &rdsdatatypes.FieldMemberStringValue{Value: value}}
}

func (c *DataAPI) exec(ctx context.Context, sql string, params []rdsdatatypes.SqlParameter) (*rdsdata.ExecuteStatementOutput, error) {
	return c.client.ExecuteStatement(ctx, &rdsdata.ExecuteStatementInput{
		ResourceArn: aws.String(c.clusterARN),
		SecretArn:   aws.String(c.secretARN),
		Database:    aws.String(c.database),
		Sql:         aws.String(sql),
		Parameters:  params,
	})
}

// EnsureSchema creates the extension and chunk table if missing.
func (c *DataAPI) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id         TEXT PRIMARY KEY,
  video_name TEXT NOT NULL,
  content    TEXT NOT NULL,
  embedding  vector(%d) NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, c.table, c.embedder.Dimensions()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_video_idx ON %s (video_name)`, c.table, c.table),
	}
	for _, stmt := range stmts {
		if _, err := c.exec(ctx, stmt, nil); err != nil {
			return fmt.Errorf("ensure %s schema: %w", c.table, err)
		}
	}
	return nil
}

func (c *DataAPI) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	vectors, err := embedDocuments(ctx, c.embedder, docs)
	if err != nil {
		return err
	}

	sets := make([][]rdsdatatypes.SqlParameter, len(docs))
	for i, d := range docs {
		sets[i] = []rdsdatatypes.SqlParameter{
			stringParam("id", d.ID),
			stringParam("video_name", d.Source),
			stringParam("content", d.Content),
			stringParam("embedding", formatVector(vectors[i])),
		}
	}

	sql := fmt.Sprintf(`INSERT INTO %s (id, video_name, content, embedding)
		VALUES (:id, :video_name, :content, :embedding::vector)`, c.table)
	_, err = c.client.BatchExecuteStatement(ctx, &rdsdata.BatchExecuteStatementInput{
		ResourceArn:   aws.String(c.clusterARN),
		SecretArn:     aws.String(c.secretARN),
		Database:      aws.String(c.database),
		Sql:           aws.String(sql),
		ParameterSets: sets,
	})
	if err != nil {
		log.Error().Err(err).Str("table", c.table).Int("chunks", len(docs)).Msg("Chunk insert failed")
		return fmt.Errorf("insert chunks: %w", err)
	}
	return nil
}

func (c *DataAPI) SimilaritySearch(ctx context.Context, query string, k int, videoName string) ([]Document, error) {
	if k <= 0 {
		return nil, nil
	}
	q, err := embedQuery(ctx, c.embedder, query)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`SELECT id, video_name, content, 1 - (embedding <=> :emb::vector) AS similarity
		FROM %s WHERE video_name = :video_name ORDER BY embedding <=> :emb::vector LIMIT :topk`, c.table)
	result, err := c.exec(ctx, sql, []rdsdatatypes.SqlParameter{
		stringParam("emb", formatVector(q)),
		stringParam("video_name", videoName),
		{Name: aws.String("topk"), Value: &rdsdatatypes.FieldMemberLongValue{Value: int64(k)}},
	})
	if err != nil {
		log.Error().Err(err).Str("table", c.table).Msg("Similarity search failed")
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	docs := make([]Document, 0, len(result.Records))
	for _, rec := range result.Records {
		if len(rec) < 4 {
			continue
		}
		docs = append(docs, Document{
			ID:      fieldString(rec[0]),
			Source:  fieldString(rec[1]),
			Content: fieldString(rec[2]),
			Score:   float32(fieldFloat(rec[3])),
		})
	}
	return docs, nil
}

func (c *DataAPI) DeleteByVideo(ctx context.Context, videoName string) error {
	sql := fmt.Sprintf(`DELETE FROM %s WHERE video_name = :video_name`, c.table)
	if _, err := c.exec(ctx, sql, []rdsdatatypes.SqlParameter{stringParam("video_name", videoName)}); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func fieldString(f rdsdatatypes.Field) string {
	switch v := f.(type) {
	case *rdsdatatypes.FieldMemberStringValue:
		return v.Value
	case *rdsdatatypes.FieldMemberLongValue:
		return strconv.FormatInt(v.Value, 10)
	default:
		return ""
	}
}

func fieldFloat(f rdsdatatypes.Field) float64 {
	switch v := f.(type) {
	case *rdsdatatypes.FieldMemberDoubleValue:
		return v.Value
	case *rdsdatatypes.FieldMemberLongValue:
		return float64(v.Value)
	case *rdsdatatypes.FieldMemberStringValue:
		n, _ := strconv.ParseFloat(v.Value, 64)
		return n
	default:
		return 0
	}
}
