package retriever

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists guideline documents in Postgres so the index survives
// process restarts. Embeddings are stored as float8[]; ranking happens in Go
// after a full scan, which is fine for a guideline corpus of hundreds of
// documents.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Add(ctx context.Context, docs []Document) error {
	for i := range docs {
		d := &docs[i]
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		_, err := s.pool.Exec(ctx,
			`INSERT INTO guideline_documents (id, source, content, embedding) VALUES ($1, $2, $3, $4)`,
			d.ID, d.Source, d.Content, d.Embedding)
		if err != nil {
			return fmt.Errorf("insert guideline document %s: %w", d.Source, err)
		}
	}
	return nil
}

func (s *PGStore) All(ctx context.Context) ([]Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, content, embedding FROM guideline_documents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("scan guideline documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Source, &d.Content, &d.Embedding); err != nil {
			return nil, fmt.Errorf("scan guideline document row: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *PGStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM guideline_documents`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count guideline documents: %w", err)
	}
	return n, nil
}

func (s *PGStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM guideline_documents`); err != nil {
		return fmt.Errorf("clear guideline documents: %w", err)
	}
	return nil
}
