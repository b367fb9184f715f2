package proctor

import (
	"context"
	"time"

	"github.com/avast/retry-go/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/examguard/internal/domain"
)

// HandleFullscreenChange реагирует на смену полноэкранного состояния.
// Вход в fullscreen (в том числе наш собственный принудительный возврат)
// нарушением не считается.
func (e *Engine) HandleFullscreenChange(active bool, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}

	if active {
		e.sink.Log(domain.Event{Type: domain.EventFullscreenRestored, Severity: domain.SeverityInfo, At: at})
		return
	}

	e.Violation(domain.CategoryFullscreenExit, at, nil)
	e.maybeRestoreFullscreen()
}

// maybeRestoreFullscreen запускает фоновый возврат, пока лимит не исчерпан.
// Повторный запуск при уже идущем возврате подавляется.
func (e *Engine) maybeRestoreFullscreen() {
	e.mu.Lock()
	if e.disqualified || e.restoring {
		e.mu.Unlock()
		return
	}
	e.restoring = true
	attempts := e.policy.RestoreAttempts
	e.mu.Unlock()

	if attempts == 0 {
		attempts = 3
	}

	go func() {
		defer func() {
			e.mu.Lock()
			e.restoring = false
			e.mu.Unlock()
		}()

		r := retry.New(
			retry.Attempts(attempts),
			retry.DelayType(retry.BackOffDelay),
		)
		err := r.Do(func() error {
			// Браузер может отклонить requestFullscreen без user gesture,
			// поэтому и нужны повторы с бэкоффом
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return e.fs.Enter(ctx)
		})
		if err != nil {
			e.logger.Warn("fullscreen restore failed", zap.Error(err))
		}
	}()
}
