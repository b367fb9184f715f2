package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/examguard/internal/domain"
)

// uploadGate — серверный rate limit загрузки кадров по каждой попытке.
// Клиентский cooldown агенту не указ, если агент сломан или враждебен,
// поэтому коллектор держит собственный минимальный интервал.
type uploadGate struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
}

func newUploadGate(minInterval time.Duration) *uploadGate {
	if minInterval <= 0 {
		minInterval = 2 * time.Second
	}
	return &uploadGate{
		limiters: make(map[string]*rate.Limiter),
		interval: minInterval,
	}
}

func (g *uploadGate) allow(attemptID string, at time.Time) bool {
	g.mu.Lock()
	lim, ok := g.limiters[attemptID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(g.interval), 1)
		g.limiters[attemptID] = lim
	}
	g.mu.Unlock()
	return lim.AllowN(at, 1)
}

func (g *uploadGate) forget(attemptID string) {
	g.mu.Lock()
	delete(g.limiters, attemptID)
	g.mu.Unlock()
}

type snapshotResponse struct {
	Success    bool   `json:"success"`
	SnapshotID string `json:"snapshot_id"`
	FilePath   string `json:"file_path"`
	Bytes      int    `json:"bytes"`
}

// handleUploadSnapshot принимает JPEG-кадр как multipart-форму.
// POST /v1/attempts/{id}/snapshots
//
// Поля: kind (webcam|screen), trigger (event_type или periodic),
// metadata (JSON-строка, опционально), файл snapshot.
// Кадр пережимается на сервере: клиентским размерам не доверяем.
func (s *Server) handleUploadSnapshot(w http.ResponseWriter, r *http.Request) {
	attempt, ok := AttemptFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusInternalServerError, "attempt context missing")
		return
	}
	if attempt.Status.Closed() {
		s.metrics.RejectedTotal.WithLabelValues("attempt_closed").Inc()
		respondError(w, http.StatusConflict, "attempt is closed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		s.metrics.RejectedTotal.WithLabelValues("bad_form").Inc()
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	// Наличие файла проверяем первым: на этот 400 опирается preflight
	// агента, который шлет форму без файла, чтобы проверить endpoint
	file, _, err := r.FormFile("snapshot")
	if err != nil {
		s.metrics.RejectedTotal.WithLabelValues("no_file").Inc()
		respondError(w, http.StatusBadRequest, "snapshot file is required")
		return
	}
	defer file.Close()

	kind := domain.SnapshotKind(r.FormValue("kind"))
	if kind != domain.SnapshotWebcam && kind != domain.SnapshotScreen {
		respondError(w, http.StatusBadRequest, "unknown snapshot kind")
		return
	}
	trigger := r.FormValue("trigger")
	if trigger == "" {
		respondError(w, http.StatusBadRequest, "trigger is required")
		return
	}

	var meta map[string]interface{}
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			respondError(w, http.StatusBadRequest, "metadata is not valid json")
			return
		}
	}

	now := time.Now()
	if !s.uploads.allow(attempt.ID, now) {
		s.metrics.RejectedTotal.WithLabelValues("rate_limited").Inc()
		respondError(w, http.StatusTooManyRequests, "snapshot rate limit exceeded")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read snapshot file")
		return
	}

	compressed, width, height, err := Recompress(data, s.cfg.MaxImageWidth, s.cfg.MaxImageHeight, s.cfg.JPEGQuality)
	if err != nil {
		s.metrics.RejectedTotal.WithLabelValues("bad_image").Inc()
		respondError(w, http.StatusBadRequest, "snapshot is not a readable image")
		return
	}

	filename := fmt.Sprintf("%s_%s_%s.jpg", trigger, attempt.ID, now.UTC().Format("20060102_150405"))
	relPath, err := s.media.Save(now, filename, compressed)
	if err != nil {
		s.logger.Error("failed to store snapshot file",
			zap.String("attempt_id", attempt.ID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to store snapshot")
		return
	}

	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["stored_width"] = width
	meta["stored_height"] = height

	snap := &domain.StoredSnapshot{
		ID:             uuid.New().String(),
		AttemptID:      attempt.ID,
		Kind:           kind,
		Trigger:        trigger,
		FilePath:       relPath,
		OriginalSize:   int64(len(data)),
		CompressedSize: int64(len(compressed)),
		Metadata:       meta,
		CreatedAt:      now,
	}
	if err := s.snapshots.Insert(r.Context(), snap); err != nil {
		// Файл уже на диске, метаданные потеряны. Отдаем 500, агент
		// не ретраит, но факт фиксируем с путем для ручного разбора.
		s.logger.Error("failed to insert snapshot row",
			zap.String("attempt_id", attempt.ID),
			zap.String("file_path", relPath),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "failed to record snapshot")
		return
	}

	s.metrics.SnapshotsStored.WithLabelValues(string(kind)).Inc()
	s.metrics.SnapshotBytes.Observe(float64(len(compressed)))

	respondJSON(w, http.StatusCreated, snapshotResponse{
		Success:    true,
		SnapshotID: snap.ID,
		FilePath:   relPath,
		Bytes:      len(compressed),
	})
}
