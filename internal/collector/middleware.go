package collector

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/examguard/internal/domain"
)

// Тип для ключа в контексте (избегаем коллизий)
type ctxKey string

const (
	traceIDKey ctxKey = "trace_id"
	attemptKey ctxKey = "attempt"
)

// HeaderAttemptToken — заголовок с секретом попытки (дублирует query "token"
// для GET-фолбэка, где заголовков нет).
const HeaderAttemptToken = "X-Attempt-Token"

// TracingMiddleware инициализирует Trace-ID для каждого запроса
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Пытаемся достать ID из заголовка (если пришел от агента/прокси)
		traceID := r.Header.Get("X-Trace-ID")

		// 2. Если его нет — генерируем новый
		if traceID == "" {
			traceID = uuid.New().String()
		}

		// 3. Кладем в контекст
		ctx := context.WithValue(r.Context(), traceIDKey, traceID)

		// 4. Добавляем в ответ, чтобы клиент тоже знал ID своего запроса
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TraceIDFromContext помогает безопасно достать ID в любом месте кода
func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return "00000000-0000-0000-0000-000000000000" // Fallback
}

// AttemptSource — кусочек репозитория, нужный авторизации попытки
type AttemptSource interface {
	GetByID(ctx context.Context, id string) (*domain.Attempt, error)
}

// AttemptAuth проверяет секрет попытки и кладет загруженную попытку в контекст.
// Дальше по пайплайну никто не ходит в базу за попыткой повторно.
func AttemptAuth(repo AttemptSource, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attemptID := chi.URLParam(r, "id")
			if attemptID == "" {
				respondError(w, http.StatusBadRequest, "attempt id is required")
				return
			}

			token := r.Header.Get(HeaderAttemptToken)
			if token == "" {
				// GET-фолбэк сабмита: браузерная навигация несет токен в query
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				respondError(w, http.StatusUnauthorized, "attempt token is required")
				return
			}

			attempt, err := repo.GetByID(r.Context(), attemptID)
			if err != nil {
				logger.Warn("attempt lookup failed", zap.String("attempt_id", attemptID), zap.Error(err))
				respondError(w, http.StatusNotFound, "attempt not found")
				return
			}
			if attempt == nil {
				respondError(w, http.StatusNotFound, "attempt not found")
				return
			}
			if attempt.Token != token {
				logger.Warn("attempt token mismatch", zap.String("attempt_id", attemptID))
				respondError(w, http.StatusUnauthorized, "invalid attempt token")
				return
			}

			ctx := context.WithValue(r.Context(), attemptKey, attempt)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AttemptFromContext достает попытку, положенную AttemptAuth.
func AttemptFromContext(ctx context.Context) (*domain.Attempt, bool) {
	a, ok := ctx.Value(attemptKey).(*domain.Attempt)
	return a, ok
}
