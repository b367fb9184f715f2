package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/examguard/internal/console/handler"
	"github.com/xela07ax/examguard/internal/infra"
	"github.com/xela07ax/examguard/internal/infra/auth"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Проверка токенов (RS256). Реализуется через embedding BaseValidator
	// в AttemptService
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler    *handler.AuthHandler      // /auth/token
	attemptHandler *handler.AttemptHandler   // /v1/attempts
	dashHandler    *handler.DashboardHandler // /api/v1/dashboard
}

// NewConsoleServer инициализирует сервер консоли ревьюеров со всеми зависимостями
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	attemptH *handler.AttemptHandler,
	dashH *handler.DashboardHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:         chi.NewRouter(),
		logger:         logger.Named("console-api"),
		cfg:            cfg,
		authValidator:  validator,
		authHandler:    authH,
		attemptHandler: attemptH,
		dashHandler:    dashH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		// Подключаем универсальный Middleware только для этой группы
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Dashboard & Stats
		r.Get("/api/v1/dashboard/stats", s.dashHandler.GetStats)
		r.Get("/api/v1/dashboard/events", s.dashHandler.GetEventStats)

		// Попытки: разбор, kill-switch, снятие флага
		r.Route("/v1/attempts", func(r chi.Router) {
			r.Get("/", s.attemptHandler.List) // Список с фильтром по статусу
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.attemptHandler.Get)                 // Карточка попытки
				r.Get("/events", s.attemptHandler.Events)        // Хронология событий
				r.Get("/snapshots", s.attemptHandler.Snapshots)  // Снимки
				r.Post("/terminate", s.attemptHandler.Terminate) // Мгновенная остановка (Kill-switch)
				r.Post("/clear-flag", s.attemptHandler.ClearFlag)
			})
		})
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
