package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgStore is the postgres-backed alternative to FileStore, selected with
// VECTOR_BACKEND=postgres. Each statement is durable on its own, so Save is
// a no-op and Load only ensures the schema exists.
type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Load(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	if err != nil {
		return fmt.Errorf("ensure vector extension: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS knowledge_vectors (
			chunk_id  text PRIMARY KEY,
			embedding vector NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("ensure knowledge_vectors table: %w", err)
	}
	return nil
}

func (s *PgStore) Save(ctx context.Context) error { return nil }

func (s *PgStore) Get(ctx context.Context, chunkID string) ([]float32, bool, error) {
	var vec pgvector.Vector
	err := s.db.QueryRow(ctx,
		`SELECT embedding FROM knowledge_vectors WHERE chunk_id = $1`, chunkID,
	).Scan(&vec)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get vector %s: %w", chunkID, err)
	}
	return vec.Slice(), true, nil
}

func (s *PgStore) Set(ctx context.Context, chunkID string, vector []float32) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO knowledge_vectors (chunk_id, embedding) VALUES ($1, $2)
		 ON CONFLICT (chunk_id) DO UPDATE SET embedding = $2`,
		chunkID, pgvector.NewVector(vector),
	)
	if err != nil {
		return fmt.Errorf("set vector %s: %w", chunkID, err)
	}
	return nil
}

func (s *PgStore) Delete(ctx context.Context, chunkID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM knowledge_vectors WHERE chunk_id = $1`, chunkID)
	if err != nil {
		return fmt.Errorf("delete vector %s: %w", chunkID, err)
	}
	return nil
}

func (s *PgStore) Size(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM knowledge_vectors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count vectors: %w", err)
	}
	return n, nil
}
