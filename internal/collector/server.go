package collector

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/examguard/internal/domain"
	"github.com/xela07ax/examguard/internal/infra"
)

// AttemptStore — весь доступ ingest-плоскости к попыткам
type AttemptStore interface {
	AttemptSource
	Create(ctx context.Context, a *domain.Attempt) error
	UpdateStatus(ctx context.Context, attemptID string, status domain.AttemptStatus) error
	Submit(ctx context.Context, attemptID string, res domain.SubmitResult) error
}

// SnapshotStore пишет метаданные кадров (сами байты кладет MediaStore)
type SnapshotStore interface {
	Insert(ctx context.Context, snap *domain.StoredSnapshot) error
}

// Server — HTTP-фронт коллектора: то, куда ходят браузерные агенты.
// Консоль ревьюеров живет отдельным сервисом со своей авторизацией.
type Server struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    infra.CollectorConfig

	attempts  AttemptStore
	snapshots SnapshotStore
	media     MediaStore
	pipeline  *EventPipeline
	enforcer  *Enforcer
	blocklist *Blocklist
	metrics   *Metrics

	uploads *uploadGate
}

func NewServer(
	cfg infra.CollectorConfig,
	attempts AttemptStore,
	snapshots SnapshotStore,
	media MediaStore,
	pipeline *EventPipeline,
	enforcer *Enforcer,
	blocklist *Blocklist,
	metrics *Metrics,
	logger *zap.Logger,
) *Server {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.Named("collector-api"),
		cfg:       cfg,
		attempts:  attempts,
		snapshots: snapshots,
		media:     media,
		pipeline:  pipeline,
		enforcer:  enforcer,
		blocklist: blocklist,
		metrics:   metrics,
		uploads:   newUploadGate(cfg.SnapshotMinInterval),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(TracingMiddleware)

	// Healthcheck для мониторинга и LB
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1/attempts", func(r chi.Router) {
		// Создание попытки зовет backend экзаменационной платформы,
		// токен попытки рождается здесь и дальше живет только у агента
		r.Post("/", s.handleCreateAttempt)

		r.Route("/{id}", func(r chi.Router) {
			// Порядок важен: сначала kill-switch (RAM, без похода в БД),
			// потом уже проверка токена с загрузкой попытки
			r.Use(s.blocklist.Middleware)
			r.Use(AttemptAuth(s.attempts, s.logger))

			r.Post("/events", s.handleIngestEvent)
			r.Post("/snapshots", s.handleUploadSnapshot)

			// Сабмит двумя каналами: честный POST и страховочный GET,
			// на который агент уходит при смерти POST-канала
			r.Post("/submit", s.handleSubmit)
			r.Get("/submit", s.handleSubmitFallback)
		})
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
