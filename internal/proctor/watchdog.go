package proctor

import (
	"time"

	"github.com/xela07ax/examguard/internal/domain"
)

// HandleCameraDead фиксирует смерть видеотрека посреди сессии.
// Кандидату — одно предупреждение за сессию; сервер получает critical
// и дальше решает сам (flag, не дисквалификация).
func (e *Engine) HandleCameraDead(at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}

	e.mu.Lock()
	if e.cameraWarned || e.disqualified {
		e.mu.Unlock()
		return
	}
	e.cameraWarned = true
	e.mu.Unlock()

	e.ui.Warn("Your camera appears to be disabled. The attempt has been flagged for review")
	e.sink.Log(domain.Event{
		Type:     domain.EventCameraDisabled,
		Severity: domain.SeverityCritical,
		At:       at,
	})
}

// HandleDevtoolsDetected — эвристики поллинга увидели открытые DevTools.
// Один раз за сессию: critical событие, кадр и блокирующий диалог.
func (e *Engine) HandleDevtoolsDetected(detail string, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}

	e.mu.Lock()
	if e.devtoolsSeen || e.disqualified {
		e.mu.Unlock()
		return
	}
	e.devtoolsSeen = true
	e.mu.Unlock()

	e.sink.Log(domain.Event{
		Type:     domain.EventDevtoolsOpen,
		Severity: domain.SeverityCritical,
		At:       at,
		Metadata: map[string]interface{}{"detail": detail},
	})
	if e.shots.TriggerEvent(domain.EventDevtoolsOpen, at, nil) {
		e.metrics.SnapshotsTotal.WithLabelValues(domain.EventDevtoolsOpen).Inc()
	}
	e.ui.Alert("Developer tools detected. Close them immediately; this incident has been recorded")
}
