package collector

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/examguard/internal/domain"
)

// maxEventBody ограничивает тело события. Реальные события укладываются
// в сотни байт, лимит ловит только мусор и ошибочные заливки.
const maxEventBody = 64 << 10

type ingestResponse struct {
	Success bool   `json:"success"`
	EventID string `json:"event_id"`
	Warning string `json:"warning,omitempty"`
}

// handleIngestEvent принимает одно событие прокторинга.
// POST /v1/attempts/{id}/events
//
// Ответ уходит сразу после постановки в пайплайн: агент работает в режиме
// fire-and-forget, и задержка БД не должна просачиваться в браузер.
// Поле warning в ответе — сигнал скользящего окна нарушений.
func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	attempt, ok := AttemptFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusInternalServerError, "attempt context missing")
		return
	}

	// Закрытые попытки события принимают: очередь агента асинхронная, и
	// хвост (session_end, disqualified) штатно приезжает уже после сабмита.
	// Терминированные попытки до сюда не доходят, их режет kill-switch.

	var ev domain.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody)).Decode(&ev); err != nil {
		s.metrics.RejectedTotal.WithLabelValues("bad_json").Inc()
		respondError(w, http.StatusBadRequest, "invalid event json")
		return
	}
	if ev.Type == "" {
		respondError(w, http.StatusBadRequest, "event_type is required")
		return
	}
	if ev.Severity == "" {
		ev.Severity = domain.SeverityInfo
	}

	now := time.Now()
	clientAt := ev.At
	if clientAt.IsZero() {
		// Часы клиента не приехали, фиксируем серверные
		clientAt = now
	}

	stored := domain.StoredEvent{
		ID:         uuid.New().String(),
		AttemptID:  attempt.ID,
		Type:       ev.Type,
		Severity:   ev.Severity,
		Metadata:   ev.Metadata,
		ClientAt:   clientAt,
		ReceivedAt: now,

		// Серверное обогащение: контекст запроса, который клиент
		// не может подделать выборочно
		UserAgent:    r.UserAgent(),
		RemoteAddr:   r.RemoteAddr,
		ForwardedFor: r.Header.Get("X-Forwarded-For"),
	}

	// Первое событие активирует попытку: started -> in_progress.
	// Ошибка не фатальна, событие все равно уйдет в пайплайн.
	if attempt.Status == domain.AttemptStarted {
		if err := s.attempts.UpdateStatus(r.Context(), attempt.ID, domain.AttemptInProgress); err != nil {
			s.logger.Error("failed to activate attempt",
				zap.String("attempt_id", attempt.ID), zap.Error(err))
		}
	}

	s.pipeline.Log(stored)
	s.metrics.EventsIngested.WithLabelValues(stored.Type, string(stored.Severity)).Inc()

	warning := s.enforcer.Observe(r.Context(), attempt.ID, stored.Type, clientAt)

	respondJSON(w, http.StatusOK, ingestResponse{
		Success: true,
		EventID: stored.ID,
		Warning: warning,
	})
}
