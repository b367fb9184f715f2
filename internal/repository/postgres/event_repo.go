package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xela07ax/examguard/internal/domain"
)

type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// WriteBatch пишет пачку событий одним INSERT. Вызывается пайплайном,
// поэтому оптимизирован под частые мелкие пачки.
func (r *EventRepo) WriteBatch(ctx context.Context, events []domain.StoredEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице events
	numFields := 10
	placeholderStr := ""
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10)

		vals = append(vals,
			e.ID, e.AttemptID, e.Type, e.Severity, e.Metadata,
			e.ClientAt, e.ReceivedAt, e.UserAgent, e.RemoteAddr, e.ForwardedFor,
		)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		"INSERT INTO events (id, attempt_id, event_type, severity, metadata, client_at, received_at, user_agent, remote_addr, forwarded_for) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.pool.Exec(ctx, query, vals...)
	if err != nil {
		return fmt.Errorf("postgres: failed to write event batch: %w", err)
	}
	return nil
}

// ListByAttempt возвращает таймлайн событий попытки в порядке приема.
func (r *EventRepo) ListByAttempt(ctx context.Context, attemptID string, limit int) ([]*domain.StoredEvent, error) {
	if limit <= 0 || limit > 2000 {
		limit = 500
	}
	query := `
		SELECT id, attempt_id, event_type, severity, metadata,
		       client_at, received_at, user_agent, remote_addr, forwarded_for
		FROM events WHERE attempt_id = $1
		ORDER BY received_at ASC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, attemptID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query events: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.StoredEvent, 0)
	for rows.Next() {
		e := &domain.StoredEvent{}
		err := rows.Scan(
			&e.ID, &e.AttemptID, &e.Type, &e.Severity, &e.Metadata,
			&e.ClientAt, &e.ReceivedAt, &e.UserAgent, &e.RemoteAddr, &e.ForwardedFor,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan event: %w", err)
		}
		results = append(results, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// GlobalStats — сводка по всему потоку событий для консоли.
func (r *EventRepo) GlobalStats(ctx context.Context) (*domain.GlobalStats, error) {
	stats := &domain.GlobalStats{
		TopEventTypes:  make(map[string]int64),
		HourlyActivity: make([]domain.ActivityPoint, 0),
	}

	categories := make([]string, 0, len(domain.Categories()))
	for _, c := range domain.Categories() {
		categories = append(categories, string(c))
	}

	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE event_type = ANY($1))
		FROM events`, categories).Scan(&stats.TotalEvents, &stats.ViolationEvents)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to count events: %w", err)
	}
	if stats.TotalEvents > 0 {
		stats.ViolationRatio = float64(stats.ViolationEvents) / float64(stats.TotalEvents)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT event_type, COUNT(*) AS cnt
		FROM events GROUP BY event_type
		ORDER BY cnt DESC LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query top event types: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var eventType string
		var cnt int64
		if err := rows.Scan(&eventType, &cnt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan top event type: %w", err)
		}
		stats.TopEventTypes[eventType] = cnt
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}

	// Почасовая активность за последние сутки
	hourly, err := r.pool.Query(ctx, `
		SELECT to_char(date_trunc('hour', received_at), 'YYYY-MM-DD HH24:00') AS hour, COUNT(*)
		FROM events
		WHERE received_at > NOW() - INTERVAL '24 hours'
		GROUP BY 1 ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query hourly activity: %w", err)
	}
	defer hourly.Close()
	for hourly.Next() {
		var p domain.ActivityPoint
		if err := hourly.Scan(&p.Hour, &p.Count); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan activity point: %w", err)
		}
		stats.HourlyActivity = append(stats.HourlyActivity, p)
	}
	if err = hourly.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}

	return stats, nil
}
