package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/xela07ax/examguard/internal/domain"
)

// Client — HTTP-клиент ingest-плоскости коллектора.
//
// Ретраев нет сознательно: телеметрия — fire-and-forget, повторная отправка
// события или кадра только размазала бы таймлайн нарушений. Вместо этого
// Circuit Breaker: когда коллектор лежит, перестаем долбить его запросами
// и быстро отдаем ошибку наверх.
type Client struct {
	baseURL   string
	attemptID string
	token     string

	hc     *http.Client
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// HeaderAttemptToken — заголовок с секретом попытки.
const HeaderAttemptToken = "X-Attempt-Token"

func NewClient(baseURL, attemptID, token string, hc *http.Client, logger *zap.Logger) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}

	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "collector-sink",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Client{
		baseURL:   baseURL,
		attemptID: attemptID,
		token:     token,
		hc:        hc,
		cb:        cb,
		logger:    logger.With(zap.String("mod", "sink")),
	}
}

// PostEvent отправляет одно событие. Формат тела — domain.Event как есть.
func (c *Client) PostEvent(ctx context.Context, ev domain.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	url := fmt.Sprintf("%s/v1/attempts/%s/events", c.baseURL, c.attemptID)
	return c.post(ctx, url, "application/json", bytes.NewReader(body))
}

// UploadSnapshot грузит JPEG-кадр как multipart-форму.
func (c *Client) UploadSnapshot(ctx context.Context, kind domain.SnapshotKind, trigger string, jpeg []byte, meta map[string]interface{}) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("kind", string(kind)); err != nil {
		return fmt.Errorf("write field: %w", err)
	}
	if err := w.WriteField("trigger", trigger); err != nil {
		return fmt.Errorf("write field: %w", err)
	}
	if meta != nil {
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal snapshot metadata: %w", err)
		}
		if err := w.WriteField("metadata", string(metaJSON)); err != nil {
			return fmt.Errorf("write field: %w", err)
		}
	}

	part, err := w.CreateFormFile("snapshot", "snapshot.jpg")
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(jpeg); err != nil {
		return fmt.Errorf("write jpeg: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	url := fmt.Sprintf("%s/v1/attempts/%s/snapshots", c.baseURL, c.attemptID)
	return c.post(ctx, url, w.FormDataContentType(), &buf)
}

// ProbeUpload — преflight-проверка достижимости endpoint'а загрузки.
// Шлем заведомо неполную форму: 4xx в ответ означает "живой и валидирует",
// сетевая ошибка — "не достучались".
func (c *Client) ProbeUpload(ctx context.Context) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("kind", "probe"); err != nil {
		return fmt.Errorf("write field: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	url := fmt.Sprintf("%s/v1/attempts/%s/snapshots", c.baseURL, c.attemptID)
	return c.post(ctx, url, w.FormDataContentType(), &buf)
}

// post выполняет один запрос под предохранителем.
// 4xx не считается поломкой транспорта и не двигает счетчики CB.
func (c *Client) post(ctx context.Context, url, contentType string, body io.Reader) error {
	var reject error

	_, err := c.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set(HeaderAttemptToken, c.token)

		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch {
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("collector error: status %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			reject = &ValidationError{Status: resp.StatusCode, Body: string(raw)}
			return nil, nil
		}
		return nil, nil
	})

	if err != nil {
		return err
	}
	return reject
}
