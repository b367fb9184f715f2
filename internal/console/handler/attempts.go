package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/examguard/internal/console/service"
	"github.com/xela07ax/examguard/internal/domain"
	"github.com/xela07ax/examguard/internal/infra/auth"
)

// AttemptsService Описываем, что нам нужно от сервиса
type AttemptsService interface {
	GetAttempt(ctx context.Context, id string) (*domain.Attempt, error)
	ListAttempts(ctx context.Context, status string, limit int) ([]*domain.Attempt, error)
	GetTimeline(ctx context.Context, id string, limit int) ([]*domain.StoredEvent, error)
	GetSnapshots(ctx context.Context, id string, limit int) ([]*domain.StoredSnapshot, error)
	TerminateAttempt(ctx context.Context, id, reviewerID string) error
	ClearAttemptFlag(ctx context.Context, id, reviewerID string) error
}

type AttemptHandler struct {
	service AttemptsService
}

func NewAttemptHandler(s AttemptsService) *AttemptHandler {
	return &AttemptHandler{service: s}
}

// List возвращает попытки с поддержкой фильтрации
// GET /v1/attempts?status=flagged&limit=50
func (h *AttemptHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := parseLimit(r.URL.Query().Get("limit"))

	list, err := h.service.ListAttempts(r.Context(), status, limit)
	if err != nil {
		http.Error(w, "Failed to fetch attempts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func (h *AttemptHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	attempt, err := h.service.GetAttempt(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrAttemptNotFound) {
			http.Error(w, "attempt not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch attempt", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(attempt)
}

// Events — хронология событий попытки для экрана разбора
// GET /v1/attempts/{id}/events?limit=500
func (h *AttemptHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := parseLimit(r.URL.Query().Get("limit"))

	events, err := h.service.GetTimeline(r.Context(), id, limit)
	if err != nil {
		http.Error(w, "Failed to fetch events", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

func (h *AttemptHandler) Snapshots(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := parseLimit(r.URL.Query().Get("limit"))

	snaps, err := h.service.GetSnapshots(r.Context(), id, limit)
	if err != nil {
		http.Error(w, "Failed to fetch snapshots", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snaps)
}

// Terminate — kill-switch: мгновенная остановка попытки ревьюером
// POST /v1/attempts/{id}/terminate
func (h *AttemptHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "attempt id is required", http.StatusBadRequest)
		return
	}

	// Ревьюер берется из токена: подотчетность без лишних полей в теле
	reviewerID, _ := auth.UserIDFromContext(r.Context())

	if err := h.service.TerminateAttempt(r.Context(), id, reviewerID); err != nil {
		if errors.Is(err, domain.ErrAttemptClosed) {
			http.Error(w, "attempt already closed", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ClearFlag снимает флаг ручного разбора, попытка продолжается
// POST /v1/attempts/{id}/clear-flag
func (h *AttemptHandler) ClearFlag(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "attempt id is required", http.StatusBadRequest)
		return
	}

	reviewerID, _ := auth.UserIDFromContext(r.Context())

	if err := h.service.ClearAttemptFlag(r.Context(), id, reviewerID); err != nil {
		if errors.Is(err, service.ErrNotFlagged) {
			http.Error(w, "attempt is not flagged", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
