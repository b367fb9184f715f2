package proctor

import (
	"time"

	"github.com/xela07ax/examguard/internal/domain"
)

// HandleVisibility обрабатывает уход со вкладки и возврат.
// Уход — полноценное нарушение с кадром, возврат — фиксация длительности.
func (e *Engine) HandleVisibility(hidden bool, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}

	if hidden {
		e.mu.Lock()
		e.hiddenAt = at
		e.mu.Unlock()
		e.Violation(domain.CategoryTabSwitch, at, nil)
		return
	}

	e.mu.Lock()
	hiddenAt := e.hiddenAt
	e.hiddenAt = time.Time{}
	e.mu.Unlock()

	if hiddenAt.IsZero() {
		// Возврат без зафиксированного ухода — длительность не считаем
		return
	}

	away := at.Sub(hiddenAt)
	if away < 0 {
		away = 0
	}
	e.sink.Log(domain.Event{
		Type:     domain.EventTabReturn,
		Severity: e.awaySeverity(away),
		At:       at,
		Metadata: map[string]interface{}{"hidden_seconds": away.Seconds()},
	})
}

// HandleFocus обрабатывает потерю и возврат фокуса окна.
func (e *Engine) HandleFocus(focused bool, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}

	if !focused {
		e.mu.Lock()
		e.blurredAt = at
		e.mu.Unlock()
		e.sink.Log(domain.Event{Type: domain.EventWindowBlur, Severity: domain.SeverityInfo, At: at})
		return
	}

	e.mu.Lock()
	blurredAt := e.blurredAt
	e.blurredAt = time.Time{}
	e.mu.Unlock()

	if blurredAt.IsZero() {
		// Фокус без предшествующего blur (старт страницы): без длительности
		e.sink.Log(domain.Event{Type: domain.EventWindowFocus, Severity: domain.SeverityInfo, At: at})
		return
	}

	away := at.Sub(blurredAt)
	if away < 0 {
		away = 0
	}
	e.sink.Log(domain.Event{
		Type:     domain.EventWindowFocus,
		Severity: e.awaySeverity(away),
		At:       at,
		Metadata: map[string]interface{}{"away_seconds": away.Seconds()},
	})
}

func (e *Engine) awaySeverity(away time.Duration) domain.Severity {
	if away > e.policy.AwayWarning {
		return domain.SeverityWarning
	}
	return domain.SeverityInfo
}
