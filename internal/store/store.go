package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"

	"github.com/seanblong/docschat/pkg/models"
)

// Hit is one chunk-level record returned by a search.
type Hit struct {
	models.Chunk
	Score float64
}

// Index defines the search-index capability the pipeline consumes.
type Index interface {
	EnsureSchema(ctx context.Context, dim int) error
	UpsertChunks(ctx context.Context, chunks []models.Chunk, embeddings [][]float32) error
	DeleteByPageID(ctx context.Context, pageID string) error
	HybridQuery(ctx context.Context, queryText string, queryVec []float32, topK int) ([]Hit, error)
}

// FallbackPolicy controls what HybridQuery does when the combined
// lexical+vector query fails.
type FallbackPolicy string

const (
	// FallbackVector retries with a vector-only nearest-neighbor query.
	// Failure of the fallback itself propagates.
	FallbackVector FallbackPolicy = "vector"
	// FallbackNone propagates the hybrid failure directly.
	FallbackNone FallbackPolicy = "none"
)

// Store provides chunk persistence and hybrid search over Postgres with
// pgvector.
type Store struct {
	pool     *pgxpool.Pool
	fallback FallbackPolicy
}

// New creates a new Store instance connected to the given database URL.
func New(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p, fallback: FallbackVector}, nil
}

func (s *Store) Close() { s.pool.Close() }

// SetFallbackPolicy overrides the hybrid-failure behavior.
func (s *Store) SetFallbackPolicy(p FallbackPolicy) { s.fallback = p }

// EnsureSchema creates the chunks table and indexes if absent. Safe to call
// on every startup.
func (s *Store) EnsureSchema(ctx context.Context, dim int) error {
	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS chunks (
  id                TEXT PRIMARY KEY,
  page_id           TEXT NOT NULL,
  chunk_index       INT NOT NULL,
  title             TEXT NOT NULL DEFAULT '',
  url               TEXT NOT NULL DEFAULT '',
  content           TEXT NOT NULL DEFAULT '',
  parent_content    TEXT NOT NULL DEFAULT '',
  content_embedding vector(%d),
  indexed_at        TIMESTAMP WITH TIME ZONE DEFAULT now(),
  ts_content        tsvector GENERATED ALWAYS AS (
    setweight(to_tsvector('simple', coalesce(title,'')), 'A') ||
    setweight(to_tsvector('simple', coalesce(content,'')), 'B')
  ) STORED
);

CREATE INDEX IF NOT EXISTS chunks_page_id_idx
  ON chunks (page_id);

CREATE INDEX IF NOT EXISTS chunks_ts_content_gin
  ON chunks USING GIN (ts_content);

CREATE INDEX IF NOT EXISTS chunks_content_embedding_idx
  ON chunks USING ivfflat (content_embedding vector_cosine_ops) WITH (lists = 100);
`
	_, err := s.pool.Exec(ctx, fmt.Sprintf(q, dim))
	return err
}

// UpsertChunks bulk-writes chunks with their embeddings. Chunk ids are
// deterministic (page_id + chunk index), so a re-index overwrites instead
// of duplicating.
func (s *Store) UpsertChunks(ctx context.Context, chunks []models.Chunk, embeddings [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count %d does not match chunk count %d", len(embeddings), len(chunks))
	}

	const q = `
		INSERT INTO chunks (
			id, page_id, chunk_index, title, url, content, parent_content,
			content_embedding, indexed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		ON CONFLICT (id) DO UPDATE SET
			title             = EXCLUDED.title,
			url               = EXCLUDED.url,
			content           = EXCLUDED.content,
			parent_content    = EXCLUDED.parent_content,
			content_embedding = EXCLUDED.content_embedding,
			indexed_at        = now();`

	b := &pgx.Batch{}
	for i, c := range chunks {
		var ev any
		if embeddings[i] != nil {
			ev = pgvector.NewVector(embeddings[i])
		} else {
			ev = (*pgvector.Vector)(nil)
		}
		b.Queue(q, c.DocID(), c.PageID, c.ChunkIndex, c.Title, c.URL, c.Content, c.ParentContent, ev)
	}

	br := s.pool.SendBatch(ctx, b)
	defer func() {
		if err := br.Close(); err != nil {
			log.Warn().Err(err).Msg("closing upsert batch")
		}
	}()

	for range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert chunk: %w", err)
		}
	}
	return nil
}

// DeleteByPageID removes every indexed chunk of one page.
func (s *Store) DeleteByPageID(ctx context.Context, pageID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE page_id = $1`, pageID)
	return err
}

// HybridQuery runs one combined lexical+vector search: cosine similarity of
// the query embedding fused with a ts_rank over title+content, each
// normalized against the per-query maximum. On failure the configured
// fallback policy applies.
func (s *Store) HybridQuery(ctx context.Context, queryText string, queryVec []float32, topK int) ([]Hit, error) {
	hits, err := s.hybridQuery(ctx, queryText, queryVec, topK)
	if err == nil {
		return hits, nil
	}
	if s.fallback != FallbackVector {
		return nil, err
	}

	log.Warn().Err(err).Msg("hybrid query failed, falling back to vector-only search")
	hits, ferr := s.vectorQuery(ctx, queryVec, topK)
	if ferr != nil {
		return nil, fmt.Errorf("vector fallback after hybrid failure (%v): %w", err, ferr)
	}
	return hits, nil
}

func (s *Store) hybridQuery(ctx context.Context, queryText string, queryVec []float32, topK int) ([]Hit, error) {
	const q = `
WITH q AS (
  SELECT $1::vector AS qv,
         plainto_tsquery('simple', $2) AS tq
),
cand AS (
  SELECT
    page_id, chunk_index, title, url, content, parent_content,
    LEAST(GREATEST(1.0 - cosine_distance(content_embedding, (SELECT qv FROM q)), 0), 1) AS sem_sim,
    ts_rank_cd(ts_content, (SELECT tq FROM q)) AS lex_rank
  FROM chunks
  WHERE content_embedding IS NOT NULL
),
ranked AS (
  SELECT *,
         MAX(sem_sim)  OVER() AS max_sem,
         MAX(lex_rank) OVER() AS max_lex
  FROM cand
)
SELECT
  page_id, chunk_index, title, url, content, parent_content,
  (
      0.70 * COALESCE(sem_sim  / NULLIF(max_sem,0), 0) +
      0.30 * COALESCE(lex_rank / NULLIF(max_lex,0), 0)
  ) AS score
FROM ranked
ORDER BY score DESC, page_id, chunk_index
LIMIT $3;`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(queryVec), queryText, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHits(rows)
}

func (s *Store) vectorQuery(ctx context.Context, queryVec []float32, topK int) ([]Hit, error) {
	const q = `
SELECT
  page_id, chunk_index, title, url, content, parent_content,
  LEAST(GREATEST(1.0 - cosine_distance(content_embedding, $1::vector), 0), 1) AS score
FROM chunks
WHERE content_embedding IS NOT NULL
ORDER BY content_embedding <=> $1::vector
LIMIT $2;`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(queryVec), topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHits(rows)
}

func scanHits(rows pgx.Rows) ([]Hit, error) {
	var out []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(
			&h.PageID, &h.ChunkIndex, &h.Title, &h.URL, &h.Content, &h.ParentContent,
			&h.Score,
		); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Ping checks the database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}
