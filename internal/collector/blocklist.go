package collector

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/examguard/internal/infra"
)

// TerminatedSource отдает терминированные попытки из БД (холодный старт)
type TerminatedSource interface {
	TerminatedAttemptIDs(ctx context.Context) ([]string, error)
}

// Blocklist — kill-switch ревьюера на ingest-плоскости.
//
// Hot Path работает только с RAM: проверка попадания в блоклист не ходит
// ни в Redis, ни в Postgres. Синхронизация — прогрев при старте и живучая
// подписка на сигналы терминации.
type Blocklist struct {
	mu      sync.RWMutex
	blocked map[string]struct{}

	rdb    *redis.Client
	source TerminatedSource
	logger *zap.Logger
}

func NewBlocklist(rdb *redis.Client, source TerminatedSource, logger *zap.Logger) *Blocklist {
	return &Blocklist{
		blocked: make(map[string]struct{}),
		rdb:     rdb,
		source:  source,
		logger:  logger.With(zap.String("mod", "blocklist")),
	}
}

// Init выполняет холодную загрузку состояния из БД и прогрев Redis.
func (b *Blocklist) Init(ctx context.Context) error {
	ids, err := b.source.TerminatedAttemptIDs(ctx)
	if err != nil {
		return err
	}
	return WarmupState(ctx, b.rdb, b.logger, ids,
		infra.RedisKeyTerminatedAttempts, infra.RedisKeyLockTerminated, b.replace)
}

// StartListener слушает сигналы терминации. Блокирует горутину до отмены ctx.
func (b *Blocklist) StartListener(ctx context.Context) {
	ListenStateResilient(ctx, b.rdb, b.logger, infra.RedisChanTermination,
		func() error { return b.Init(ctx) },
		b.apply,
	)
}

func (b *Blocklist) IsTerminated(attemptID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.blocked[attemptID]
	return ok
}

// MarkTerminated добавляет попытку в локальный кэш (для тестов и локальных решений).
func (b *Blocklist) MarkTerminated(attemptID string) {
	b.apply(attemptID, true)
}

func (b *Blocklist) replace(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	b.mu.Lock()
	b.blocked = next
	b.mu.Unlock()
}

func (b *Blocklist) apply(id string, on bool) {
	b.mu.Lock()
	if on {
		b.blocked[id] = struct{}{}
	} else {
		delete(b.blocked, id)
	}
	b.mu.Unlock()

	if on {
		b.logger.Warn("attempt terminated by reviewer", zap.String("attempt_id", id))
	}
}

// Middleware отрезает терминированные попытки до любых обработчиков.
func (b *Blocklist) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptID := chi.URLParam(r, "id")
		if attemptID == "" {
			next.ServeHTTP(w, r)
			return
		}

		if b.IsTerminated(attemptID) {
			b.logger.Warn("intercepted request of terminated attempt", zap.String("attempt_id", attemptID))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error": "attempt_terminated", "reason": "reviewer_kill_switch"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
