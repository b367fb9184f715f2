package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/examguard/internal/domain"
	"github.com/xela07ax/examguard/internal/infra"
)

// Категории, участвующие в правиле авто-флага. Копирование и правый клик
// шумные и дешевые, поэтому окно считает только уходы с экрана.
var flagKinds = map[string]struct{}{
	string(domain.CategoryTabSwitch):      {},
	string(domain.CategoryFullscreenExit): {},
}

// AttemptFlagger переводит попытку в статус flagged в хранилище
type AttemptFlagger interface {
	UpdateStatus(ctx context.Context, attemptID string, status domain.AttemptStatus) error
}

// FlagSignaler разносит факт флага по остальным узлам (Redis Pub/Sub)
type FlagSignaler interface {
	SignalFlag(ctx context.Context, attemptID string, on bool) error
}

type EnforcerConfig struct {
	Window    time.Duration // ширина скользящего окна
	Threshold int           // сколько событий в окне дают флаг
}

// Enforcer держит скользящее окно подозрительных событий по каждой попытке.
// Окно живет в памяти: при рестарте коллектора счет начинается заново, но
// уже выставленный флаг остается в БД.
type Enforcer struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	flagged map[string]struct{}

	repo    AttemptFlagger
	signal  FlagSignaler
	metrics *Metrics
	logger  *zap.Logger
	cfg     EnforcerConfig
}

func NewEnforcer(repo AttemptFlagger, signal FlagSignaler, metrics *Metrics, cfg EnforcerConfig, logger *zap.Logger) *Enforcer {
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Minute
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Enforcer{
		windows: make(map[string][]time.Time),
		flagged: make(map[string]struct{}),
		repo:    repo,
		signal:  signal,
		metrics: metrics,
		logger:  logger.With(zap.String("mod", "enforcer")),
		cfg:     cfg,
	}
}

// Observe учитывает событие и возвращает текст предупреждения для ответа
// агенту, если попытка находится над порогом. Пустая строка — всё тихо.
func (e *Enforcer) Observe(ctx context.Context, attemptID, eventType string, at time.Time) string {
	if _, ok := flagKinds[eventType]; !ok {
		return ""
	}
	if at.IsZero() {
		at = time.Now()
	}

	count, crossed := e.track(attemptID, at)
	if count < e.cfg.Threshold {
		return ""
	}

	if crossed {
		e.metrics.FlaggedTotal.Inc()
		e.logger.Warn("attempt flagged for review",
			zap.String("attempt_id", attemptID),
			zap.Int("events_in_window", count),
			zap.Duration("window", e.cfg.Window),
		)
		if err := e.repo.UpdateStatus(ctx, attemptID, domain.AttemptFlagged); err != nil {
			e.logger.Error("failed to persist flag", zap.String("attempt_id", attemptID), zap.Error(err))
		}
		if e.signal != nil {
			if err := e.signal.SignalFlag(ctx, attemptID, true); err != nil {
				e.logger.Error("failed to publish flag signal", zap.String("attempt_id", attemptID), zap.Error(err))
			}
		}
	}

	return fmt.Sprintf("Suspicious activity detected: %d focus violations within %s. This attempt is flagged for review.",
		count, e.cfg.Window)
}

// track добавляет метку в окно и отвечает, был ли порог пересечен впервые.
func (e *Enforcer) track(attemptID string, at time.Time) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := at.Add(-e.cfg.Window)
	win := e.windows[attemptID]

	kept := win[:0]
	for _, ts := range win {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, at)
	e.windows[attemptID] = kept

	count := len(kept)
	if count < e.cfg.Threshold {
		return count, false
	}
	if _, done := e.flagged[attemptID]; done {
		return count, false
	}
	e.flagged[attemptID] = struct{}{}
	return count, true
}

// Forget выбрасывает попытку из памяти. Вызывается после submit или
// терминации, чтобы окна не копились бесконечно.
func (e *Enforcer) Forget(attemptID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.windows, attemptID)
	delete(e.flagged, attemptID)
}

// Apply синхронизирует локальное состояние с внешним сигналом (Pub/Sub).
// on=true приходит от соседних узлов коллектора, чтобы не дублировать запись
// флага в БД. on=false шлет консоль при снятии флага ревьюером: окно
// обнуляется, счет начинается заново.
func (e *Enforcer) Apply(attemptID string, on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if on {
		e.flagged[attemptID] = struct{}{}
		return
	}
	delete(e.windows, attemptID)
	delete(e.flagged, attemptID)
}

// RedisFlagSignaler публикует сигналы флага в общий канал
type RedisFlagSignaler struct {
	rdb *redis.Client
}

func NewRedisFlagSignaler(rdb *redis.Client) *RedisFlagSignaler {
	return &RedisFlagSignaler{rdb: rdb}
}

func (s *RedisFlagSignaler) SignalFlag(ctx context.Context, attemptID string, on bool) error {
	payload := attemptID + ":off"
	if on {
		payload = attemptID + ":on"
	}
	return s.rdb.Publish(ctx, infra.RedisChanFlags, payload).Err()
}
