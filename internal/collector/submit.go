package collector

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/xela07ax/examguard/internal/domain"
)

// fallbackReason подставляется, когда страховочный GET пришел без причины.
// Исторически единственный сценарий dead man's switch — вылет из fullscreen.
const fallbackReason = "Fullscreen exit violation"

type submitRequest struct {
	Disqualified bool      `json:"disqualified"`
	Reason       string    `json:"disqualification_reason"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

type submitResponse struct {
	Success       bool   `json:"success"`
	Status        string `json:"status"`
	Disqualified  bool   `json:"disqualified"`
	Reason        string `json:"reason,omitempty"`
	AlreadyClosed bool   `json:"already_closed,omitempty"`
}

// handleSubmit завершает попытку.
// POST /v1/attempts/{id}/submit
//
// При disqualified=true попытка закрывается с нулевым баллом, причина
// уходит в metadata. Обычный сабмит только фиксирует завершение, оценка
// живет на стороне экзаменационной платформы.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	attempt, ok := AttemptFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusInternalServerError, "attempt context missing")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid submit json")
		return
	}

	s.finalize(w, r, attempt, req, "post")
}

// handleSubmitFallback — страховочный канал сабмита.
// GET /v1/attempts/{id}/submit?disqualified=true&reason=...&token=...
//
// Сюда агент уходит браузерной навигацией, когда POST-канал умер, поэтому
// все параметры в query. Причина приходит snake_case-токеном и приводится
// к человеческому виду.
func (s *Server) handleSubmitFallback(w http.ResponseWriter, r *http.Request) {
	attempt, ok := AttemptFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusInternalServerError, "attempt context missing")
		return
	}

	q := r.URL.Query()
	req := submitRequest{
		Disqualified: isTruthy(q.Get("disqualified")),
		Reason:       humanizeReason(q.Get("reason")),
		SubmittedAt:  time.Now(),
	}

	s.finalize(w, r, attempt, req, "deadman_get")
}

// finalize — общая логика обоих каналов сабмита. Идемпотентна: повторный
// сабмит закрытой попытки отвечает успехом с текущим статусом, потому что
// агент мог просто не получить первый ответ.
func (s *Server) finalize(w http.ResponseWriter, r *http.Request, attempt *domain.Attempt, req submitRequest, via string) {
	if attempt.Status.Closed() {
		respondJSON(w, http.StatusOK, submitResponse{
			Success:       true,
			Status:        string(attempt.Status),
			AlreadyClosed: true,
		})
		return
	}

	res := domain.SubmitResult{
		Disqualified: req.Disqualified,
		SubmittedAt:  time.Now(),
	}
	if req.Disqualified {
		res.Reason = req.Reason
		if res.Reason == "" {
			res.Reason = fallbackReason
		}
		// Дисквалификация обнуляет результат независимо от ответов
		res.Score = 0
		res.Passed = false
	}

	if err := s.attempts.Submit(r.Context(), attempt.ID, res); err != nil {
		s.logger.Error("failed to submit attempt",
			zap.String("attempt_id", attempt.ID),
			zap.String("via", via),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "failed to submit attempt")
		return
	}

	s.enforcer.Forget(attempt.ID)
	s.uploads.forget(attempt.ID)

	if req.Disqualified && via == "deadman_get" {
		// POST-канал агента мертв, его критическое событие могло не дойти.
		// Дублируем факт дисквалификации серверной записью.
		s.pipeline.Log(domain.StoredEvent{
			ID:        uuid.New().String(),
			AttemptID: attempt.ID,
			Type:      domain.EventDisqualified,
			Severity:  domain.SeverityCritical,
			Metadata: map[string]interface{}{
				"reason": res.Reason,
				"via":    via,
			},
			ClientAt:     time.Now(),
			ReceivedAt:   time.Now(),
			UserAgent:    r.UserAgent(),
			RemoteAddr:   r.RemoteAddr,
			ForwardedFor: r.Header.Get("X-Forwarded-For"),
		})
	}

	s.logger.Info("attempt submitted",
		zap.String("attempt_id", attempt.ID),
		zap.String("via", via),
		zap.Bool("disqualified", req.Disqualified),
		zap.String("reason", res.Reason),
	)

	respondJSON(w, http.StatusOK, submitResponse{
		Success:      true,
		Status:       string(domain.AttemptCompleted),
		Disqualified: req.Disqualified,
		Reason:       res.Reason,
	})
}

var titleCaser = cases.Title(language.English)

// humanizeReason переводит snake_case-токен причины в человеческий вид:
// "tab_switch_limit_exceeded" -> "Tab Switch Limit Exceeded".
// Строки без подчеркиваний уже человеческие и не трогаются.
func humanizeReason(raw string) string {
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "_") {
		return raw
	}
	return titleCaser.String(strings.ReplaceAll(raw, "_", " "))
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
