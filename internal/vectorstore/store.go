// Package vectorstore persists chunks and their embeddings in Postgres with
// pgvector, and serves similarity and keyword searches over them.
package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// MinChunkChars is the minimum stored chunk text length. Anything shorter is
// noise (page furniture, broken OCR fragments) and is rejected at insert.
const MinChunkChars = 10

// Chunk is the atomic retrievable unit: one overlapping slice of a page's
// text together with its embedding.
type Chunk struct {
	ID         uuid.UUID
	DocumentID string
	PageNumber int // 1-based
	ChunkIndex int // monotonically increasing within a page
	Content    string
	Embedding  *pgvector.Vector
	Corrected  bool
	CharCount  int
	Similarity float64 // query-time only, not persisted
	CreatedAt  time.Time
}

// Store wraps the pgx connection pool.
type Store struct {
	pool     *pgxpool.Pool
	embedDim int
}

// New creates a chunk store. embedDim is the fixed embedding dimensionality
// every stored vector must have.
func New(connString string, embedDim int) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = 10
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool, embedDim: embedDim}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the chunks table and the pgvector extension.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id UUID PRIMARY KEY,
			document_id TEXT NOT NULL,
			page_number INT NOT NULL,
			chunk_index INT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			corrected BOOLEAN NOT NULL DEFAULT FALSE,
			char_count INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, s.embedDim),
		`CREATE INDEX IF NOT EXISTS chunks_document_id_idx ON chunks (document_id)`,
		`CREATE INDEX IF NOT EXISTS chunks_content_fts_idx ON chunks USING GIN (to_tsvector('simple', content))`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// validate enforces the persisted-chunk invariants.
func (s *Store) validate(chunk *Chunk) error {
	if len([]rune(chunk.Content)) < MinChunkChars {
		return fmt.Errorf("chunk %s: content shorter than %d chars", chunk.ID, MinChunkChars)
	}
	if chunk.Embedding == nil {
		return fmt.Errorf("chunk %s: missing embedding", chunk.ID)
	}
	if dim := len(chunk.Embedding.Slice()); dim != s.embedDim {
		return fmt.Errorf("chunk %s: embedding dimension %d, want %d", chunk.ID, dim, s.embedDim)
	}
	return nil
}

// InsertChunksBatch inserts multiple chunks in one round trip.
func (s *Store) InsertChunksBatch(ctx context.Context, chunks []*Chunk) error {
	for _, chunk := range chunks {
		if err := s.validate(chunk); err != nil {
			return err
		}
	}
	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		batch.Queue(
			`INSERT INTO chunks (id, document_id, page_number, chunk_index, content, embedding, corrected, char_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			chunk.ID, chunk.DocumentID, chunk.PageNumber, chunk.ChunkIndex,
			chunk.Content, chunk.Embedding, chunk.Corrected, len([]rune(chunk.Content)),
		)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < len(chunks); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}
	return nil
}

// SearchSimilar finds chunks by cosine similarity, restricted to the given
// document ids. Similarity is reported as 1 - cosine distance.
func (s *Store) SearchSimilar(ctx context.Context, embedding *pgvector.Vector, documentIDs []string, limit int) ([]*Chunk, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, page_number, chunk_index, content, embedding, corrected, char_count, created_at,
		        1 - (embedding <=> $1) AS similarity
		 FROM chunks
		 WHERE embedding IS NOT NULL AND document_id = ANY($2)
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		embedding, documentIDs, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows, true)
}

// KeywordSearch finds chunks matching any of the keywords via full-text
// search, restricted to the given document ids. Matches carry no similarity
// score; callers merge them with the vector pass.
func (s *Store) KeywordSearch(ctx context.Context, keywords []string, documentIDs []string, limit int) ([]*Chunk, error) {
	if len(keywords) == 0 || len(documentIDs) == 0 {
		return nil, nil
	}
	query := ""
	for i, kw := range keywords {
		if i > 0 {
			query += " OR "
		}
		query += kw
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, page_number, chunk_index, content, embedding, corrected, char_count, created_at
		 FROM chunks
		 WHERE document_id = ANY($2)
		   AND to_tsvector('simple', content) @@ websearch_to_tsquery('simple', $1)
		 LIMIT $3`,
		query, documentIDs, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to keyword-search chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows, false)
}

// UpdateChunkText rewrites a chunk's text and embedding in a single statement
// so the two can never be observed out of sync.
func (s *Store) UpdateChunkText(ctx context.Context, id uuid.UUID, content string, embedding *pgvector.Vector, corrected bool) error {
	if len([]rune(content)) < MinChunkChars {
		return fmt.Errorf("chunk %s: content shorter than %d chars", id, MinChunkChars)
	}
	if dim := len(embedding.Slice()); dim != s.embedDim {
		return fmt.Errorf("chunk %s: embedding dimension %d, want %d", id, dim, s.embedDim)
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE chunks SET content = $2, embedding = $3, corrected = $4, char_count = $5 WHERE id = $1`,
		id, content, embedding, corrected, len([]rune(content)),
	)
	return err
}

// ListChunksByDocument returns a document's chunks in page/index order,
// used by the maintenance correction sweep.
func (s *Store) ListChunksByDocument(ctx context.Context, documentID string) ([]*Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, page_number, chunk_index, content, embedding, corrected, char_count, created_at
		 FROM chunks WHERE document_id = $1
		 ORDER BY page_number, chunk_index`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows, false)
}

// CountByDocument returns the number of chunks stored for a document.
func (s *Store) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunks WHERE document_id = $1`, documentID).Scan(&n)
	return n, err
}

// DeleteByDocument removes all of a document's chunks.
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	return err
}

func scanChunks(rows pgx.Rows, withSimilarity bool) ([]*Chunk, error) {
	var chunks []*Chunk
	for rows.Next() {
		var chunk Chunk
		dest := []any{
			&chunk.ID, &chunk.DocumentID, &chunk.PageNumber, &chunk.ChunkIndex,
			&chunk.Content, &chunk.Embedding, &chunk.Corrected, &chunk.CharCount, &chunk.CreatedAt,
		}
		if withSimilarity {
			dest = append(dest, &chunk.Similarity)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}
