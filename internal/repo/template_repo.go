package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Loom/internal/domain"
)

// TemplateRepo — репозиторий версионированных шаблонов.
//
// Тело шаблона неизменяемо после сохранения: узлы pipeline ссылаются
// на пару (id, version), и перезапись тела ломала бы воспроизводимость
// уже принятых документов.
type TemplateRepo struct {
	pool *pgxpool.Pool
}

// NewTemplateRepo создаёт новый TemplateRepo.
func NewTemplateRepo(pool *pgxpool.Pool) *TemplateRepo {
	return &TemplateRepo{pool: pool}
}

// Create сохраняет новую версию шаблона.
// Номер версии — автоинкремент в рамках id.
func (r *TemplateRepo) Create(ctx context.Context, t *domain.Template) error {
	query := `
		INSERT INTO templates (id, version, name, body, created_at)
		VALUES ($1,
		        (SELECT COALESCE(MAX(version), 0) + 1 FROM templates WHERE id = $1),
		        $2, $3, $4)
		RETURNING version
	`
	err := r.pool.QueryRow(ctx, query, t.ID, t.Name, t.Body, t.CreatedAt).Scan(&t.Version)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// Get возвращает конкретную версию шаблона.
func (r *TemplateRepo) Get(ctx context.Context, id uuid.UUID, version int) (*domain.Template, error) {
	query := `
		SELECT id, version, name, body, created_at
		FROM templates
		WHERE id = $1 AND version = $2
	`
	return scanTemplate(r.pool.QueryRow(ctx, query, id, version))
}

// GetLatest возвращает последнюю версию шаблона.
func (r *TemplateRepo) GetLatest(ctx context.Context, id uuid.UUID) (*domain.Template, error) {
	query := `
		SELECT id, version, name, body, created_at
		FROM templates
		WHERE id = $1
		ORDER BY version DESC
		LIMIT 1
	`
	return scanTemplate(r.pool.QueryRow(ctx, query, id))
}

// List возвращает последние версии всех шаблонов.
func (r *TemplateRepo) List(ctx context.Context) ([]domain.Template, error) {
	query := `
		SELECT DISTINCT ON (id) id, version, name, body, created_at
		FROM templates
		ORDER BY id, version DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []domain.Template
	for rows.Next() {
		var t domain.Template
		if err := rows.Scan(&t.ID, &t.Version, &t.Name, &t.Body, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// scanTemplate сканирует строку в Template.
func scanTemplate(row pgx.Row) (*domain.Template, error) {
	var t domain.Template
	err := row.Scan(&t.ID, &t.Version, &t.Name, &t.Body, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan template: %w", err)
	}
	return &t, nil
}
