// Package postgres stores documents in a single Postgres table via lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kailas-cloud/kbase/internal/domain"
	domdoc "github.com/kailas-cloud/kbase/internal/domain/document"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id          BIGSERIAL PRIMARY KEY,
	project_id  TEXT        NOT NULL,
	filename    TEXT        NOT NULL,
	source_type TEXT        NOT NULL,
	content     TEXT        NOT NULL,
	embedding   JSONB,
	embed_error TEXT        NOT NULL DEFAULT '',
	indexed     BOOLEAN     NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
ALTER TABLE documents ADD COLUMN IF NOT EXISTS indexed BOOLEAN NOT NULL DEFAULT FALSE;
CREATE INDEX IF NOT EXISTS documents_project_id_idx ON documents (project_id, id);
CREATE INDEX IF NOT EXISTS documents_unindexed_idx ON documents (project_id, id)
	WHERE embedding IS NOT NULL AND NOT indexed;
`

const selectColumns = `id, project_id, filename, source_type, content, embedding, embed_error, indexed, created_at, updated_at`

// Store is a Postgres-backed document store.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

// Migrate creates the documents table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w: %w", domain.ErrStore, err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// Insert stores doc and returns the database-assigned id.
func (s *Store) Insert(ctx context.Context, doc domdoc.Document) (int64, error) {
	emb, err := encodeEmbedding(doc.Embedding())
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO documents (project_id, filename, source_type, content, embedding, embed_error, created_at, updated_at, indexed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		doc.ProjectID(), doc.Filename(), string(doc.SourceType()), doc.Content(),
		emb, doc.EmbedError(), doc.CreatedAt(), doc.UpdatedAt(), doc.Indexed(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w: %w", domain.ErrStore, err)
	}
	return id, nil
}

// Update replaces every mutable column of an existing document.
func (s *Store) Update(ctx context.Context, doc domdoc.Document) error {
	emb, err := encodeEmbedding(doc.Embedding())
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents
		 SET filename = $3, content = $4, embedding = $5, embed_error = $6, updated_at = $7, indexed = $8
		 WHERE id = $1 AND project_id = $2`,
		doc.ID(), doc.ProjectID(), doc.Filename(), doc.Content(),
		emb, doc.EmbedError(), doc.UpdatedAt(), doc.Indexed(),
	)
	if err != nil {
		return fmt.Errorf("update document %d: %w: %w", doc.ID(), domain.ErrStore, err)
	}
	return expectOne(res, doc.ProjectID(), doc.ID())
}

// Delete removes one document.
func (s *Store) Delete(ctx context.Context, projectID string, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE id = $1 AND project_id = $2`, id, projectID)
	if err != nil {
		return fmt.Errorf("delete document %d: %w: %w", id, domain.ErrStore, err)
	}
	return expectOne(res, projectID, id)
}

// Get returns one document.
func (s *Store) Get(ctx context.Context, projectID string, id int64) (domdoc.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM documents WHERE id = $1 AND project_id = $2`, id, projectID)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domdoc.Document{}, notFound(projectID, id)
	}
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("get document %d: %w: %w", id, domain.ErrStore, err)
	}
	return doc, nil
}

// Scan returns the project's documents in id order.
func (s *Store) Scan(ctx context.Context, projectID string) ([]domdoc.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM documents WHERE project_id = $1 ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("scan project %s: %w: %w", projectID, domain.ErrStore, err)
	}
	return collect(rows)
}

// GetMany returns the requested documents of the project in id order.
func (s *Store) GetMany(ctx context.Context, projectID string, ids []int64) ([]domdoc.Document, error) {
	if len(ids) == 0 {
		return []domdoc.Document{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM documents WHERE project_id = $1 AND id = ANY($2) ORDER BY id`,
		projectID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get documents: %w: %w", domain.ErrStore, err)
	}
	return collect(rows)
}

// Unindexed returns the project's embedded documents missing from the
// candidate index, in id order.
func (s *Store) Unindexed(ctx context.Context, projectID string) ([]domdoc.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM documents
		 WHERE project_id = $1 AND embedding IS NOT NULL AND NOT indexed ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("unindexed documents %s: %w: %w", projectID, domain.ErrStore, err)
	}
	return collect(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (domdoc.Document, error) {
	var (
		id                                   int64
		projectID, filename, source, content string
		embedding                            []byte
		embedError                           string
		indexed                              bool
		createdAt, updatedAt                 time.Time
	)
	if err := row.Scan(&id, &projectID, &filename, &source, &content,
		&embedding, &embedError, &indexed, &createdAt, &updatedAt); err != nil {
		return domdoc.Document{}, err
	}
	vec, err := decodeEmbedding(embedding)
	if err != nil {
		return domdoc.Document{}, err
	}
	doc := domdoc.Reconstruct(id, projectID, filename, domdoc.SourceType(source), content,
		vec, embedError, createdAt, updatedAt)
	return doc.WithIndexed(indexed), nil
}

func collect(rows *sql.Rows) ([]domdoc.Document, error) {
	defer func() { _ = rows.Close() }()

	docs := []domdoc.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w: %w", domain.ErrStore, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w: %w", domain.ErrStore, err)
	}
	return docs, nil
}

func expectOne(res sql.Result, projectID string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w: %w", domain.ErrStore, err)
	}
	if n == 0 {
		return notFound(projectID, id)
	}
	return nil
}

// encodeEmbedding maps an absent vector to SQL NULL.
func encodeEmbedding(v []float32) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode embedding: %w: %w", domain.ErrStore, err)
	}
	return b, nil
}

func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var v []float32
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	if len(v) == 0 {
		return nil, nil
	}
	return v, nil
}

func notFound(projectID string, id int64) error {
	return fmt.Errorf("document %d in project %s: %w", id, projectID, domain.ErrDocumentNotFound)
}
