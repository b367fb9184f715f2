package collector

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/examguard/internal/domain"
)

type createAttemptRequest struct {
	Candidate string `json:"candidate"`
	Exam      string `json:"exam"`
}

type createAttemptResponse struct {
	AttemptID string `json:"attempt_id"`
	Token     string `json:"token"`
	Status    string `json:"status"`
}

// handleCreateAttempt создает попытку и выдает ее секретный токен.
// POST /v1/attempts
//
// Токен отдается ровно один раз, в этом ответе. Дальше он живет только
// в памяти агента и в заголовке X-Attempt-Token.
func (s *Server) handleCreateAttempt(w http.ResponseWriter, r *http.Request) {
	var req createAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Candidate == "" || req.Exam == "" {
		respondError(w, http.StatusBadRequest, "candidate and exam are required")
		return
	}

	now := time.Now()
	attempt := &domain.Attempt{
		ID:        uuid.New().String(),
		Candidate: req.Candidate,
		Exam:      req.Exam,
		Token:     uuid.New().String(),
		Status:    domain.AttemptStarted,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.attempts.Create(r.Context(), attempt); err != nil {
		s.logger.Error("failed to create attempt",
			zap.String("candidate", req.Candidate),
			zap.String("exam", req.Exam),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "failed to create attempt")
		return
	}

	s.logger.Info("attempt created",
		zap.String("attempt_id", attempt.ID),
		zap.String("candidate", attempt.Candidate),
		zap.String("exam", attempt.Exam),
	)

	respondJSON(w, http.StatusCreated, createAttemptResponse{
		AttemptID: attempt.ID,
		Token:     attempt.Token,
		Status:    string(attempt.Status),
	})
}
