package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Submitter выполняет принудительную сдачу экзамена при дисквалификации.
//
// Схема "dead man's switch": сначала честный POST с дедлайном, и если он
// не уложился или упал — страховочный GET с теми же параметрами в query.
// GET обязан остаться максимально простым: это последний шанс зафиксировать
// дисквалификацию, когда с POST-каналом что-то не так.
type Submitter struct {
	baseURL   string
	attemptID string
	token     string

	hc      *http.Client
	timeout time.Duration // Дедлайн POST до перехода на GET
	logger  *zap.Logger
}

func NewSubmitter(baseURL, attemptID, token string, timeout time.Duration, logger *zap.Logger) *Submitter {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Submitter{
		baseURL:   baseURL,
		attemptID: attemptID,
		token:     token,
		hc:        &http.Client{},
		timeout:   timeout,
		logger:    logger.With(zap.String("mod", "submitter")),
	}
}

type submitBody struct {
	Disqualified bool      `json:"disqualified"`
	Reason       string    `json:"disqualification_reason,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// Submit фиксирует дисквалификацию на сервере. Ошибка возвращается только
// если не сработали оба канала.
func (s *Submitter) Submit(ctx context.Context, reason string) error {
	postErr := s.post(ctx, reason)
	if postErr == nil {
		return nil
	}
	s.logger.Warn("submit POST failed, falling back to GET", zap.Error(postErr))

	if err := s.fallbackGet(ctx, reason); err != nil {
		return fmt.Errorf("submit failed on both channels: post: %v, get: %w", postErr, err)
	}
	return nil
}

func (s *Submitter) post(ctx context.Context, reason string) error {
	tCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := json.Marshal(submitBody{
		Disqualified: true,
		Reason:       reason,
		SubmittedAt:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal submit body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/attempts/%s/submit", s.baseURL, s.attemptID)
	req, err := http.NewRequestWithContext(tCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAttemptToken, s.token)

	resp, err := s.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("submit rejected: status %d", resp.StatusCode)
	}
	return nil
}

// fallbackGet — аналог браузерного редиректа на submit-URL: все параметры
// в query, токен тоже (заголовки при навигации не выставить).
func (s *Submitter) fallbackGet(ctx context.Context, reason string) error {
	q := url.Values{}
	q.Set("disqualified", "true")
	q.Set("reason", reason)
	q.Set("token", s.token)

	endpoint := fmt.Sprintf("%s/v1/attempts/%s/submit?%s", s.baseURL, s.attemptID, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := s.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("fallback rejected: status %d", resp.StatusCode)
	}
	return nil
}
