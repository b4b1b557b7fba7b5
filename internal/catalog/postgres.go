package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const videosSchema = `
CREATE TABLE IF NOT EXISTS videos (
  video_name  TEXT PRIMARY KEY,
  video_path  TEXT NOT NULL,
  mime_type   TEXT NOT NULL DEFAULT 'video/mp4',
  category    TEXT,
  suitability TEXT,
  summarized  BOOLEAN NOT NULL DEFAULT FALSE,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore keeps video records in a Postgres "videos" table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the videos table if it is missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, videosSchema); err != nil {
		return fmt.Errorf("create videos table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Add(ctx context.Context, v Video) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
INSERT INTO videos (video_name, video_path, mime_type, category, suitability, summarized)
VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), $6)
ON CONFLICT (video_name) DO NOTHING`,
		v.Name, v.Path, v.MIMEType, v.Category, string(v.Suitability), v.Summarized,
	)
	if err != nil {
		return false, fmt.Errorf("insert video: %w", err)
	}
	added := tag.RowsAffected() == 1
	log.Debug().Str("video", v.Name).Bool("added", added).Msg("Catalog insert")
	return added, nil
}

func (s *PostgresStore) GetByName(ctx context.Context, name string) (*Video, error) {
	row := s.pool.QueryRow(ctx, `
SELECT video_name, video_path, mime_type, COALESCE(category,''), COALESCE(suitability,''),
       summarized, created_at, updated_at
FROM videos
WHERE video_name=$1`, name)

	v, err := scanVideo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) Update(ctx context.Context, name string, u Update) (bool, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{name}
	if u.Category != nil {
		args = append(args, *u.Category)
		sets = append(sets, "category = $"+strconv.Itoa(len(args)))
	}
	if u.Suitability != nil {
		args = append(args, string(*u.Suitability))
		sets = append(sets, "suitability = $"+strconv.Itoa(len(args)))
	}
	if u.Summarized != nil {
		args = append(args, *u.Summarized)
		sets = append(sets, "summarized = $"+strconv.Itoa(len(args)))
	}

	tag, err := s.pool.Exec(ctx, "UPDATE videos SET "+strings.Join(sets, ", ")+" WHERE video_name=$1", args...)
	if err != nil {
		return false, fmt.Errorf("update video: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ClaimSummarized(ctx context.Context, name string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE videos SET summarized = TRUE, updated_at = NOW() WHERE video_name=$1 AND NOT summarized`, name)
	if err != nil {
		return false, fmt.Errorf("claim summarized: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Video, error) {
	query, args := buildListQuery(f)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	out := make([]Video, 0)
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, name string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM videos WHERE video_name=$1`, name)
	if err != nil {
		return false, fmt.Errorf("delete video: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Names(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT video_name FROM videos ORDER BY video_name`)
	if err != nil {
		return nil, fmt.Errorf("list video names: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect video names: %w", err)
	}
	return names, nil
}

// buildListQuery renders the filter as SQL. The suitability filter keeps
// every level at or below the requested audience.
func buildListQuery(f Filter) (string, []any) {
	var where []string
	var args []any

	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+escapeLike(s)+"%")
		where = append(where, "video_name ILIKE $"+strconv.Itoa(len(args)))
	}
	if f.Suitability != "" {
		var allowed []string
		for _, level := range Suitabilities {
			if level.SuitableFor(f.Suitability) {
				allowed = append(allowed, string(level))
			}
		}
		args = append(args, allowed)
		where = append(where, "suitability = ANY($"+strconv.Itoa(len(args))+")")
	}

	query := `
SELECT video_name, video_path, mime_type, COALESCE(category,''), COALESCE(suitability,''),
       summarized, created_at, updated_at
FROM videos`
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY created_at DESC, video_name"
	return query, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanVideo(row pgx.Row) (*Video, error) {
	var v Video
	var suitability string
	if err := row.Scan(&v.Name, &v.Path, &v.MIMEType, &v.Category, &suitability,
		&v.Summarized, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	v.Suitability = Suitability(suitability)
	return &v, nil
}
