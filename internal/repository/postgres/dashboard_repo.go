package postgres

import (
	"context"
	"fmt"

	"github.com/xela07ax/examguard/internal/domain"
)

// GetUnifiedDashboard собирает сводку для главного экрана консоли
// за три прохода: попытки, поток событий за час, объем медиа.
func (r *AttemptRepo) GetUnifiedDashboard(ctx context.Context) (*domain.UnifiedDashboard, error) {
	d := &domain.UnifiedDashboard{}

	// 1. Попытки: активность, санкции, результаты
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status IN ($1, $2, $3)),
			COUNT(*) FILTER (WHERE status = $3),
			COUNT(*) FILTER (WHERE status = $4),
			COUNT(*) FILTER (WHERE (metadata->>'disqualified')::boolean),
			COUNT(*) FILTER (WHERE status = $5),
			COALESCE(AVG(CASE WHEN passed THEN 1.0 ELSE 0.0 END) FILTER (WHERE passed IS NOT NULL), 0),
			COALESCE(AVG(score) FILTER (WHERE score IS NOT NULL), 0)
		FROM attempts`,
		domain.AttemptStarted, domain.AttemptInProgress, domain.AttemptFlagged,
		domain.AttemptTerminated, domain.AttemptCompleted,
	).Scan(
		&d.Activity.TotalAttempts,
		&d.Activity.ActiveAttempts,
		&d.Integrity.FlaggedAttempts,
		&d.Integrity.TerminatedAttempts,
		&d.Integrity.Disqualifications,
		&d.Outcomes.Completed,
		&d.Outcomes.PassRate,
		&d.Outcomes.AvgScore,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch attempt stats: %w", err)
	}

	// 2. Поток событий за последние 60 минут
	categories := make([]string, 0, len(domain.Categories()))
	for _, c := range domain.Categories() {
		categories = append(categories, string(c))
	}
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE event_type = ANY($1))
		FROM events
		WHERE received_at > NOW() - INTERVAL '60 minutes'`, categories,
	).Scan(&d.Activity.EventsLastHour, &d.Integrity.ViolationsLastHour)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch event stats: %w", err)
	}

	// 3. Медиа-хранилище
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(compressed_size), 0) FROM snapshots`,
	).Scan(&d.Media.SnapshotCount, &d.Media.SnapshotBytes)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch media stats: %w", err)
	}

	return d, nil
}
