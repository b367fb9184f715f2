package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/examguard/internal/domain"
	"github.com/xela07ax/examguard/internal/infra"
	"github.com/xela07ax/examguard/internal/infra/auth"
)

// AttemptRepository описывает требования консоли к хранилищу попыток
type AttemptRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Attempt, error)
	ListByStatus(ctx context.Context, status domain.AttemptStatus, limit int) ([]*domain.Attempt, error)
	Terminate(ctx context.Context, id string) (bool, error)
	ClearFlag(ctx context.Context, id string) (bool, error)
	GetUnifiedDashboard(ctx context.Context) (*domain.UnifiedDashboard, error)
}

type EventReader interface {
	ListByAttempt(ctx context.Context, attemptID string, limit int) ([]*domain.StoredEvent, error)
	GlobalStats(ctx context.Context) (*domain.GlobalStats, error)
}

type SnapshotReader interface {
	ListByAttempt(ctx context.Context, attemptID string, limit int) ([]*domain.StoredSnapshot, error)
}

var (
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrNotFlagged      = errors.New("attempt is not flagged")
)

type AttemptService struct {
	*auth.BaseValidator
	attempts  AttemptRepository
	events    EventReader
	snapshots SnapshotReader
	rdb       *redis.Client
	logger    *zap.Logger
}

func NewAttemptService(
	rdb *redis.Client,
	attempts AttemptRepository,
	events EventReader,
	snapshots SnapshotReader,
	validator *auth.BaseValidator,
	logger *zap.Logger,
) *AttemptService {
	return &AttemptService{
		BaseValidator: validator,
		attempts:      attempts,
		events:        events,
		snapshots:     snapshots,
		rdb:           rdb,
		logger:        logger.Named("attempt-service"),
	}
}

// TerminateAttempt — kill-switch ревьюера. Сначала Persistence Layer,
// потом Real-time Signaling: коллекторы узнают о терминации через Redis
// и начинают резать запросы попытки еще до следующего warmup.
func (s *AttemptService) TerminateAttempt(ctx context.Context, attemptID, reviewerID string) error {
	ok, err := s.attempts.Terminate(ctx, attemptID)
	if err != nil {
		s.logger.Error("failed to terminate attempt in DB",
			zap.String("attempt_id", attemptID),
			zap.String("reviewer_id", reviewerID),
			zap.Error(err))
		return fmt.Errorf("terminate database error: %w", err)
	}
	if !ok {
		return domain.ErrAttemptClosed
	}

	payload := fmt.Sprintf("%s:%s", attemptID, "on")
	if err := s.rdb.Publish(ctx, infra.RedisChanTermination, payload).Err(); err != nil {
		// Сигнал не критичен: коллекторы подхватят статус на warmup
		s.logger.Warn("termination signal delivery failed",
			zap.String("attempt_id", attemptID),
			zap.Error(err))
	} else {
		s.logger.Info("attempt terminated",
			zap.String("attempt_id", attemptID),
			zap.String("reviewer_id", reviewerID))
	}
	return nil
}

// ClearAttemptFlag снимает флаг ручного разбора: flagged -> in_progress.
// Сигнал уходит коллекторам, чтобы те обнулили скользящее окно попытки.
func (s *AttemptService) ClearAttemptFlag(ctx context.Context, attemptID, reviewerID string) error {
	ok, err := s.attempts.ClearFlag(ctx, attemptID)
	if err != nil {
		s.logger.Error("failed to clear flag in DB",
			zap.String("attempt_id", attemptID),
			zap.Error(err))
		return fmt.Errorf("clear flag database error: %w", err)
	}
	if !ok {
		return ErrNotFlagged
	}

	payload := fmt.Sprintf("%s:%s", attemptID, "off")
	if err := s.rdb.Publish(ctx, infra.RedisChanFlags, payload).Err(); err != nil {
		s.logger.Warn("flag clear signal delivery failed",
			zap.String("attempt_id", attemptID),
			zap.Error(err))
	} else {
		s.logger.Info("attempt flag cleared",
			zap.String("attempt_id", attemptID),
			zap.String("reviewer_id", reviewerID))
	}
	return nil
}

func (s *AttemptService) GetAttempt(ctx context.Context, attemptID string) (*domain.Attempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		s.logger.Error("failed to fetch attempt details", zap.String("id", attemptID), zap.Error(err))
		return nil, err
	}
	if attempt == nil {
		return nil, ErrAttemptNotFound
	}
	return attempt, nil
}

// ListAttempts возвращает попытки, опционально отфильтрованные по статусу.
func (s *AttemptService) ListAttempts(ctx context.Context, status string, limit int) ([]*domain.Attempt, error) {
	status = strings.ToLower(strings.TrimSpace(status))

	attempts, err := s.attempts.ListByStatus(ctx, domain.AttemptStatus(status), limit)
	if err != nil {
		s.logger.Error("failed to list attempts from repository", zap.Error(err))
		return nil, fmt.Errorf("service: could not fetch attempts: %w", err)
	}

	// Гарантируем, что фронтенд получит пустой массив [], а не null
	if attempts == nil {
		return []*domain.Attempt{}, nil
	}
	return attempts, nil
}

// GetTimeline — хронология событий попытки для экрана разбора.
func (s *AttemptService) GetTimeline(ctx context.Context, attemptID string, limit int) ([]*domain.StoredEvent, error) {
	return s.events.ListByAttempt(ctx, attemptID, limit)
}

func (s *AttemptService) GetSnapshots(ctx context.Context, attemptID string, limit int) ([]*domain.StoredSnapshot, error) {
	return s.snapshots.ListByAttempt(ctx, attemptID, limit)
}

func (s *AttemptService) GetDashboard(ctx context.Context) (*domain.UnifiedDashboard, error) {
	// здесь можно добавить кэширование в Redis на 1 минуту,
	// чтобы не нагружать Postgres тяжелыми аналитическими запросами.
	return s.attempts.GetUnifiedDashboard(ctx)
}

func (s *AttemptService) GetGlobalStats(ctx context.Context) (*domain.GlobalStats, error) {
	return s.events.GlobalStats(ctx)
}
