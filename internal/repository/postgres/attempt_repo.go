package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xela07ax/examguard/internal/domain"
)

const attemptColumns = `id, candidate, exam, token, status, score, passed,
	started_at, completed_at, time_spent_seconds, metadata, created_at, updated_at`

type AttemptRepo struct {
	pool *pgxpool.Pool
}

func NewAttemptRepo(pool *pgxpool.Pool) *AttemptRepo {
	return &AttemptRepo{pool: pool}
}

func (r *AttemptRepo) Create(ctx context.Context, a *domain.Attempt) error {
	query := `
		INSERT INTO attempts (id, candidate, exam, token, status, started_at, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.Candidate, a.Exam, a.Token, a.Status, a.StartedAt, a.Metadata, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to create attempt: %w", err)
	}
	return nil
}

// GetByID возвращает nil, nil если попытки нет: вызывающий сам решает,
// что для него отсутствие строки (404 или ошибка).
func (r *AttemptRepo) GetByID(ctx context.Context, id string) (*domain.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM attempts WHERE id = $1`

	a := &domain.Attempt{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Candidate, &a.Exam, &a.Token, &a.Status, &a.Score, &a.Passed,
		&a.StartedAt, &a.CompletedAt, &a.TimeSpentSec, &a.Metadata, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to fetch attempt: %w", err)
	}
	return a, nil
}

// UpdateStatus меняет статус без проверки конечного автомата: правила
// переходов проверяет доменный слой до вызова.
func (r *AttemptRepo) UpdateStatus(ctx context.Context, id string, status domain.AttemptStatus) error {
	query := `UPDATE attempts SET status = $1, updated_at = NOW() WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to update attempt status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: attempt %s not found", id)
	}
	return nil
}

// Terminate — kill-switch ревьюера. Условие WHERE отсекает уже закрытые
// попытки, поэтому повторное нажатие не перетирает финальный статус.
// Возвращает false, если попытка уже была закрыта.
func (r *AttemptRepo) Terminate(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE attempts
		SET status = $1, completed_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status NOT IN ($3, $4, $5)`

	tag, err := r.pool.Exec(ctx, query,
		domain.AttemptTerminated, id,
		domain.AttemptCompleted, domain.AttemptExpired, domain.AttemptTerminated,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to terminate attempt: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ClearFlag снимает флаг ручного разбора: flagged -> in_progress.
// Условие WHERE гарантирует, что чужой статус не будет затронут.
func (r *AttemptRepo) ClearFlag(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE attempts SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`

	tag, err := r.pool.Exec(ctx, query, domain.AttemptInProgress, id, domain.AttemptFlagged)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to clear flag: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Submit закрывает попытку. При дисквалификации обнуляет результат и
// дописывает причину в metadata (jsonb merge). Повторный сабмит закрытой
// попытки возвращает domain.ErrAttemptClosed.
func (r *AttemptRepo) Submit(ctx context.Context, id string, res domain.SubmitResult) error {
	var tag pgconn.CommandTag
	var err error

	if res.Disqualified {
		verdict, mErr := json.Marshal(map[string]interface{}{
			domain.MetaDisqualified:    true,
			domain.MetaDisqualifyCause: res.Reason,
			domain.MetaDisqualifyTime:  res.SubmittedAt,
		})
		if mErr != nil {
			return fmt.Errorf("postgres: failed to marshal verdict: %w", mErr)
		}

		query := `
			UPDATE attempts
			SET status = $1, score = $2, passed = $3, completed_at = $4,
			    time_spent_seconds = EXTRACT(EPOCH FROM ($4::timestamptz - started_at))::bigint,
			    metadata = COALESCE(metadata, '{}'::jsonb) || $5::jsonb,
			    updated_at = NOW()
			WHERE id = $6 AND status NOT IN ($7, $8, $9)`

		tag, err = r.pool.Exec(ctx, query,
			domain.AttemptCompleted, res.Score, res.Passed, res.SubmittedAt, verdict, id,
			domain.AttemptCompleted, domain.AttemptExpired, domain.AttemptTerminated,
		)
	} else {
		query := `
			UPDATE attempts
			SET status = $1, completed_at = $2,
			    time_spent_seconds = EXTRACT(EPOCH FROM ($2::timestamptz - started_at))::bigint,
			    updated_at = NOW()
			WHERE id = $3 AND status NOT IN ($4, $5, $6)`

		tag, err = r.pool.Exec(ctx, query,
			domain.AttemptCompleted, res.SubmittedAt, id,
			domain.AttemptCompleted, domain.AttemptExpired, domain.AttemptTerminated,
		)
	}

	if err != nil {
		return fmt.Errorf("postgres: failed to submit attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAttemptClosed
	}
	return nil
}

// ListByStatus — выборка для консоли. Пустой статус означает "все".
func (r *AttemptRepo) ListByStatus(ctx context.Context, status domain.AttemptStatus, limit int) ([]*domain.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM attempts`

	var args []interface{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query attempts: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.Attempt, 0)
	for rows.Next() {
		a := &domain.Attempt{}
		err := rows.Scan(
			&a.ID, &a.Candidate, &a.Exam, &a.Token, &a.Status, &a.Score, &a.Passed,
			&a.StartedAt, &a.CompletedAt, &a.TimeSpentSec, &a.Metadata, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan attempt: %w", err)
		}
		results = append(results, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// TerminatedAttemptIDs возвращает ID всех терминированных попыток.
// Используется для инициализации L1 (RAM) кэша блоклиста при старте коллектора.
func (r *AttemptRepo) TerminatedAttemptIDs(ctx context.Context) ([]string, error) {
	// Выбираем только ID, чтобы минимизировать трафик между БД и приложением
	query := `SELECT id FROM attempts WHERE status = $1`

	rows, err := r.pool.Query(ctx, query, domain.AttemptTerminated)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch terminated attempts: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan attempt id error: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return ids, nil
}
