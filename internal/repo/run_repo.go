package repo

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
)

// RunRepo — репозиторий состояний прохождения документов.
//
// Таблица run_states — единственный разделяемый изменяемый ресурс
// движка; все записи идут через UpdateCAS, так что конкурирующие
// дубликаты доставок не могут переплести свои записи: проигравший
// получает ErrConflict и перечитывает состояние.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

const runStateColumns = `
	doc_id, pipeline_id, pipeline_version, cursor, fields, status,
	attempt, last_error, failure_kind, next_attempt_at, revision,
	created_at, updated_at
`

// Create сохраняет состояние только что принятого документа.
func (r *RunRepo) Create(ctx context.Context, state *domain.RunState) error {
	fieldsJSON, err := json.Marshal(state.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	query := `
		INSERT INTO run_states (` + runStateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = r.pool.Exec(ctx, query,
		state.DocID,
		state.PipelineID,
		state.PipelineVersion,
		state.Cursor,
		fieldsJSON,
		state.Status,
		state.Attempt,
		nullString(state.LastError),
		nullString(string(state.FailureKind)),
		nullTime(state.NextAttemptAt),
		state.Revision,
		state.CreatedAt,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run state: %w", err)
	}
	return nil
}

// Get возвращает состояние по doc_id.
func (r *RunRepo) Get(ctx context.Context, docID uuid.UUID) (*domain.RunState, error) {
	query := `SELECT ` + runStateColumns + ` FROM run_states WHERE doc_id = $1`
	return scanRunState(r.pool.QueryRow(ctx, query, docID))
}

// UpdateCAS записывает состояние атомарно относительно конкурентных
// писателей: запись проходит только если revision в БД совпадает с
// revision, прочитанным этим писателем. При успехе state.Revision
// инкрементируется; при расхождении возвращается ErrConflict.
//
// Мутация полей, cursor и статуса коммитится одной записью: рестарт
// процесса возобновляется с последнего закоммиченного состояния.
func (r *RunRepo) UpdateCAS(ctx context.Context, state *domain.RunState) error {
	fieldsJSON, err := json.Marshal(state.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	now := time.Now().UTC()
	query := `
		UPDATE run_states
		SET cursor = $2, fields = $3, status = $4, attempt = $5,
		    last_error = $6, failure_kind = $7, next_attempt_at = $8,
		    revision = revision + 1, updated_at = $9
		WHERE doc_id = $1 AND revision = $10
	`
	result, err := r.pool.Exec(ctx, query,
		state.DocID,
		state.Cursor,
		fieldsJSON,
		state.Status,
		state.Attempt,
		nullString(state.LastError),
		nullString(string(state.FailureKind)),
		nullTime(state.NextAttemptAt),
		now,
		state.Revision,
	)
	if err != nil {
		return fmt.Errorf("update run state: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Либо запись исчезла (архивирована), либо её revision ушёл
		// вперёд — в обоих случаях писатель должен перечитать
		return ErrConflict
	}

	state.Revision++
	state.UpdatedAt = now
	return nil
}

// ListStale возвращает незавершённые состояния, не обновлявшиеся
// дольше horizon. Используется для повторной постановки потерянных
// доставок.
//
// Состояние с next_attempt_at в будущем не потеряно, а припарковано
// на backoff: его доставка лежит в delay-очереди, и перестановка
// раньше срока нарушила бы задержку retry. Такие строки исключаются,
// пока not_before не истечёт.
func (r *RunRepo) ListStale(ctx context.Context, horizon time.Duration, limit int) ([]domain.RunState, error) {
	now := time.Now().UTC()
	query := `
		SELECT ` + runStateColumns + `
		FROM run_states
		WHERE status IN ('PENDING', 'RUNNING')
		  AND updated_at < $1
		  AND (next_attempt_at IS NULL OR next_attempt_at <= $2)
		ORDER BY updated_at ASC
		LIMIT $3
	`
	return r.list(ctx, query, now.Add(-horizon), now, limit)
}

// ListTerminalBefore возвращает терминальные состояния старше cutoff.
func (r *RunRepo) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.RunState, error) {
	query := `
		SELECT ` + runStateColumns + `
		FROM run_states
		WHERE status IN ('SUCCEEDED', 'FAILED') AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`
	return r.list(ctx, query, cutoff, limit)
}

// Archive переносит терминальное состояние в архивную таблицу.
//
// Выполняется в одной транзакции: состояние либо целиком в архиве,
// либо целиком в рабочей таблице.
func (r *RunRepo) Archive(ctx context.Context, docID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	copyQuery := `
		INSERT INTO run_states_archive (` + runStateColumns + `)
		SELECT ` + runStateColumns + `
		FROM run_states
		WHERE doc_id = $1 AND status IN ('SUCCEEDED', 'FAILED')
		ON CONFLICT (doc_id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, copyQuery, docID); err != nil {
		return fmt.Errorf("copy to archive: %w", err)
	}

	result, err := tx.Exec(ctx,
		`DELETE FROM run_states WHERE doc_id = $1 AND status IN ('SUCCEEDED', 'FAILED')`, docID)
	if err != nil {
		return fmt.Errorf("delete archived: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

// --- Helpers ---

// list выполняет запрос списка состояний.
func (r *RunRepo) list(ctx context.Context, query string, args ...any) ([]domain.RunState, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list run states: %w", err)
	}
	defer rows.Close()

	var states []domain.RunState
	for rows.Next() {
		state, err := scanRunState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, *state)
	}
	return states, rows.Err()
}

// scanRunState сканирует одну строку в RunState.
func scanRunState(row pgx.Row) (*domain.RunState, error) {
	var state domain.RunState
	var fieldsJSON []byte
	var lastError, failureKind *string
	var nextAttemptAt *time.Time

	err := row.Scan(
		&state.DocID,
		&state.PipelineID,
		&state.PipelineVersion,
		&state.Cursor,
		&fieldsJSON,
		&state.Status,
		&state.Attempt,
		&lastError,
		&failureKind,
		&nextAttemptAt,
		&state.Revision,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run state: %w", err)
	}

	if fieldsJSON != nil {
		if err := json.Unmarshal(fieldsJSON, &state.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal fields: %w", err)
		}
	}
	if state.Fields == nil {
		state.Fields = make(map[string]any)
	}

	if lastError != nil {
		state.LastError = *lastError
	}
	if failureKind != nil {
		state.FailureKind = domain.FailureKind(*failureKind)
	}
	if nextAttemptAt != nil {
		state.NextAttemptAt = *nextAttemptAt
	}

	return &state, nil
}

// nullString возвращает nil для пустой строки (NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullTime возвращает nil для нулевого времени (NULL в БД).
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
