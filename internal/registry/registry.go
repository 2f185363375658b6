// Package registry is the embedded relational store for per-document state:
// ingestion status, page and chunk counts, and corpus membership.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Embedding status values. Transitions are forward-only:
// pending -> processing -> completed, or processing -> failed.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ErrInvalidTransition is returned when a status update would move backwards.
var ErrInvalidTransition = errors.New("invalid embedding status transition")

// Document is one uploaded PDF tracked by the registry.
type Document struct {
	ID              string
	DisplayName     string
	TotalPages      int
	EmbeddingStatus string
	ChunksCount     int
	IsSelected      bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	total_pages INTEGER NOT NULL DEFAULT 0,
	embedding_status TEXT NOT NULL DEFAULT 'pending',
	chunks_count INTEGER NOT NULL DEFAULT 0,
	is_selected INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store is the SQLite-backed document registry.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the registry database under dataDir.
// If dataDir is empty, defaults to ~/.kutub/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".kutub", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "registry.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateDocument registers a new document in status pending.
func (s *Store) CreateDocument(ctx context.Context, id, displayName string) (*Document, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, display_name, embedding_status) VALUES (?, ?, ?)`,
		id, displayName, StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("creating document: %w", err)
	}
	return s.GetDocument(ctx, id)
}

// GetDocument returns a document by id, or nil when not found.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, total_pages, embedding_status, chunks_count, is_selected, created_at, updated_at
		 FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return doc, err
}

// ListDocuments returns all documents, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]*Document, error) {
	return s.list(ctx, `SELECT id, display_name, total_pages, embedding_status, chunks_count, is_selected, created_at, updated_at
		FROM documents ORDER BY created_at DESC`)
}

// ListSelected returns the documents currently in the search corpus.
func (s *Store) ListSelected(ctx context.Context) ([]*Document, error) {
	return s.list(ctx, `SELECT id, display_name, total_pages, embedding_status, chunks_count, is_selected, created_at, updated_at
		FROM documents WHERE is_selected = 1 ORDER BY created_at DESC`)
}

// SetSelected toggles corpus membership.
func (s *Store) SetSelected(ctx context.Context, id string, selected bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET is_selected = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		boolToInt(selected), id)
	return err
}

// SetTotalPages records the parsed page count. Set once, before per-page
// processing begins; later calls overwrite only a zero value.
func (s *Store) SetTotalPages(ctx context.Context, id string, totalPages int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET total_pages = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND total_pages = 0`,
		totalPages, id)
	return err
}

// SetStatus advances the embedding status, rejecting backward transitions.
func (s *Store) SetStatus(ctx context.Context, id, status string) error {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("document %s not found", id)
	}
	if !validTransition(doc.EmbeddingStatus, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, doc.EmbeddingStatus, status)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE documents SET embedding_status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id)
	return err
}

// FinishDocument records the terminal status and final chunk count together.
func (s *Store) FinishDocument(ctx context.Context, id string, chunksCount int, status string) error {
	if status != StatusCompleted && status != StatusFailed {
		return fmt.Errorf("%w: finish requires a terminal status, got %s", ErrInvalidTransition, status)
	}
	if err := s.SetStatus(ctx, id, status); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET chunks_count = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		chunksCount, id)
	return err
}

// DeleteDocument removes a document from the registry.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

func (s *Store) list(ctx context.Context, query string) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	var doc Document
	var selected int
	if err := row.Scan(
		&doc.ID, &doc.DisplayName, &doc.TotalPages, &doc.EmbeddingStatus,
		&doc.ChunksCount, &selected, &doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	doc.IsSelected = selected != 0
	return &doc, nil
}

func validTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
