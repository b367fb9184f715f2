package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xela07ax/examguard/internal/domain"
)

type SnapshotRepo struct {
	pool *pgxpool.Pool
}

func NewSnapshotRepo(pool *pgxpool.Pool) *SnapshotRepo {
	return &SnapshotRepo{pool: pool}
}

func (r *SnapshotRepo) Insert(ctx context.Context, snap *domain.StoredSnapshot) error {
	query := `
		INSERT INTO snapshots (id, attempt_id, kind, trigger, file_path,
		                       original_size, compressed_size, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		snap.ID, snap.AttemptID, snap.Kind, snap.Trigger, snap.FilePath,
		snap.OriginalSize, snap.CompressedSize, snap.Metadata, snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert snapshot: %w", err)
	}
	return nil
}

func (r *SnapshotRepo) ListByAttempt(ctx context.Context, attemptID string, limit int) ([]*domain.StoredSnapshot, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	query := `
		SELECT id, attempt_id, kind, trigger, file_path,
		       original_size, compressed_size, metadata, created_at
		FROM snapshots WHERE attempt_id = $1
		ORDER BY created_at ASC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, attemptID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query snapshots: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.StoredSnapshot, 0)
	for rows.Next() {
		s := &domain.StoredSnapshot{}
		err := rows.Scan(
			&s.ID, &s.AttemptID, &s.Kind, &s.Trigger, &s.FilePath,
			&s.OriginalSize, &s.CompressedSize, &s.Metadata, &s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan snapshot: %w", err)
		}
		results = append(results, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}
