package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Loom/internal/domain"
	"github.com/shaiso/Loom/internal/repo"
)

// PostgresStore хранит документы в таблице documents.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore создаёт новый PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Save сохраняет документ. Повторный Save с тем же doc_id перезаписывает
// поля, что делает повторную доставку узла безопасной.
func (s *PostgresStore) Save(ctx context.Context, doc *domain.Document) error {
	fieldsJSON, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	query := `
		INSERT INTO documents (doc_id, pipeline_id, pipeline_version, fields, created_at, stored_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (doc_id) DO UPDATE
		SET fields = EXCLUDED.fields, stored_at = EXCLUDED.stored_at
	`
	_, err = s.pool.Exec(ctx, query,
		doc.DocID,
		doc.PipelineID,
		doc.PipelineVersion,
		fieldsJSON,
		doc.CreatedAt,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

// Get возвращает сохранённый документ.
func (s *PostgresStore) Get(ctx context.Context, docID uuid.UUID) (*domain.Document, error) {
	query := `
		SELECT doc_id, pipeline_id, pipeline_version, fields, created_at
		FROM documents
		WHERE doc_id = $1
	`

	var doc domain.Document
	var fieldsJSON []byte
	err := s.pool.QueryRow(ctx, query, docID).Scan(
		&doc.DocID,
		&doc.PipelineID,
		&doc.PipelineVersion,
		&fieldsJSON,
		&doc.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}

	if err := json.Unmarshal(fieldsJSON, &doc.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return &doc, nil
}
