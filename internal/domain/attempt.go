package domain

import (
	"errors"
	"time"
)

// Статусы State Machine попытки
type AttemptStatus string

const (
	AttemptStarted    AttemptStatus = "started"     // Создана, прокторинг еще не подтвержден
	AttemptInProgress AttemptStatus = "in_progress" // Идет экзамен
	AttemptFlagged    AttemptStatus = "flagged"     // Порог нарушений превышен, нужен ручной разбор
	AttemptCompleted  AttemptStatus = "completed"   // Сдана (в том числе принудительно)
	AttemptExpired    AttemptStatus = "expired"     // Вышло время
	AttemptTerminated AttemptStatus = "terminated"  // Остановлена ревьюером (kill-switch)
)

var (
	ErrInvalidTransition = errors.New("invalid attempt status transition")
	ErrAttemptClosed     = errors.New("attempt already closed")
)

// Closed — терминальные статусы: дальше событий и сабмитов не бывает.
func (s AttemptStatus) Closed() bool {
	return s == AttemptCompleted || s == AttemptExpired || s == AttemptTerminated
}

type Attempt struct {
	ID        string        `json:"id"` // UUID
	Candidate string        `json:"candidate"`
	Exam      string        `json:"exam"`
	Token     string        `json:"-"` // Секрет попытки, никогда не отдаем наружу
	Status    AttemptStatus `json:"status"`

	Score  *float64 `json:"score,omitempty"`
	Passed *bool    `json:"passed,omitempty"`

	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	TimeSpentSec *int64     `json:"time_spent_seconds,omitempty"`

	// Дисквалификация и прочие вердикты живут здесь, а не в отдельных колонках
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ключи Metadata, которые пишет сабмит с дисквалификацией
const (
	MetaDisqualified    = "disqualified"
	MetaDisqualifyCause = "disqualification_reason"
	MetaDisqualifyTime  = "disqualification_timestamp"
)

// CanTransitionTo проверяет правила конечного автомата.
// flagged -> in_progress — это снятие флага ревьюером, остальные возвраты запрещены.
func (a *Attempt) CanTransitionTo(next AttemptStatus) error {
	if a.Status.Closed() {
		return ErrAttemptClosed
	}
	switch a.Status {
	case AttemptStarted:
		if next == AttemptStarted {
			return ErrInvalidTransition
		}
	case AttemptInProgress:
		if next == AttemptInProgress || next == AttemptStarted {
			return ErrInvalidTransition
		}
	case AttemptFlagged:
		if next != AttemptInProgress && !next.Closed() {
			return ErrInvalidTransition
		}
	}
	return nil
}

// SubmitResult — итог сабмита, посчитанный на стороне коллектора.
type SubmitResult struct {
	Score        float64   `json:"score"`
	Passed       bool      `json:"passed"`
	Disqualified bool      `json:"disqualified"`
	Reason       string    `json:"reason,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// StoredEvent — событие после серверного обогащения, как ложится в базу.
type StoredEvent struct {
	ID        string                 `json:"id"`
	AttemptID string                 `json:"attempt_id"`
	Type      string                 `json:"event_type"`
	Severity  Severity               `json:"severity"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`

	ClientAt   time.Time `json:"timestamp"`   // Часы клиента
	ReceivedAt time.Time `json:"received_at"` // Часы коллектора

	// Контекст запроса
	UserAgent    string `json:"user_agent"`
	RemoteAddr   string `json:"remote_addr"`
	ForwardedFor string `json:"http_x_forwarded_for,omitempty"`
}

type StoredSnapshot struct {
	ID        string       `json:"id"`
	AttemptID string       `json:"attempt_id"`
	Kind      SnapshotKind `json:"kind"`
	Trigger   string       `json:"trigger"`

	FilePath       string `json:"file_path"`
	OriginalSize   int64  `json:"original_size"`
	CompressedSize int64  `json:"compressed_size"`

	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
