package capture

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/examguard/internal/browser"
	"github.com/xela07ax/examguard/internal/domain"
)

// Uploader определяет, куда уходят готовые кадры
type Uploader interface {
	UploadSnapshot(ctx context.Context, kind domain.SnapshotKind, trigger string, jpeg []byte, meta map[string]interface{}) error
}

type Config struct {
	Cooldown    time.Duration // Минимальный интервал между кадрами одной категории
	SettleDelay time.Duration // Пауза перед отрисовкой, чтобы UI успел показать предупреждение
	JPEGQuality int
}

// Snapshotter снимает экран по нарушениям и вебкамеру по таймеру.
//
// Все отказы мягкие: нет рендера, умер трек, не долетел upload — кадр
// пропускается с локальной записью в лог. Санкции за мертвую камеру
// назначает движок, не мы.
type Snapshotter struct {
	up     Uploader
	rend   browser.Renderer // Может быть nil: html2canvas не обязан был загрузиться
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	track    browser.MediaTrack
	limiters map[string]*rate.Limiter // Cooldown per категория триггера

	wg sync.WaitGroup
}

func NewSnapshotter(up Uploader, rend browser.Renderer, cfg Config, logger *zap.Logger) *Snapshotter {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 2 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 100 * time.Millisecond
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 80
	}
	return &Snapshotter{
		up:       up,
		rend:     rend,
		cfg:      cfg,
		logger:   logger.With(zap.String("mod", "capture")),
		limiters: make(map[string]*rate.Limiter),
	}
}

// SetTrack привязывает живой видеотрек. Вызывается после выдачи камеры.
func (s *Snapshotter) SetTrack(t browser.MediaTrack) {
	s.mu.Lock()
	s.track = t
	s.mu.Unlock()
}

// TriggerEvent снимает экран по факту нарушения. Возвращает false, если
// кадр срезан cooldown'ом или рендер недоступен. Сама съемка уходит в
// фон: обработчик события не должен ждать отрисовку и сеть.
func (s *Snapshotter) TriggerEvent(trigger string, at time.Time, meta map[string]interface{}) bool {
	if at.IsZero() {
		at = time.Now()
	}
	if s.rend == nil || !s.rend.Available() {
		return false
	}
	if !s.limiterFor(trigger).AllowN(at, 1) {
		s.logger.Debug("snapshot throttled", zap.String("trigger", trigger))
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.captureScreen(trigger, meta)
	}()
	return true
}

// CaptureWebcam снимает кадр с камеры (периодический таймер).
// false — трека нет или он уже не живой.
func (s *Snapshotter) CaptureWebcam(trigger string) bool {
	s.mu.Lock()
	t := s.track
	s.mu.Unlock()

	if t == nil || !t.Live() {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	img, err := t.Frame(ctx)
	if err != nil {
		s.logger.Warn("webcam frame failed", zap.Error(err))
		return false
	}

	data, err := EncodeJPEG(img, s.cfg.JPEGQuality)
	if err != nil {
		s.logger.Warn("webcam encode failed", zap.Error(err))
		return false
	}

	meta := frameMeta(img)
	if err := s.up.UploadSnapshot(ctx, domain.SnapshotWebcam, trigger, data, meta); err != nil {
		s.logger.Warn("webcam upload failed", zap.String("trigger", trigger), zap.Error(err))
		return false
	}
	return true
}

// Wait дожидается фоновых съемок. Нужен при cleanup и в тестах.
func (s *Snapshotter) Wait() {
	s.wg.Wait()
}

func (s *Snapshotter) captureScreen(trigger string, meta map[string]interface{}) {
	// Даем интерфейсу дорисоваться: предупреждение должно попасть в кадр
	time.Sleep(s.cfg.SettleDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// hideMedia: видео-элементы в кадр не включаем, иначе снимем копию
	// собственного потока камеры
	img, err := s.rend.CaptureViewport(ctx, true)
	if err != nil {
		s.logger.Warn("screen render failed", zap.String("trigger", trigger), zap.Error(err))
		return
	}

	data, err := EncodeJPEG(img, s.cfg.JPEGQuality)
	if err != nil {
		s.logger.Warn("screen encode failed", zap.Error(err))
		return
	}

	merged := frameMeta(img)
	for k, v := range meta {
		merged[k] = v
	}

	if err := s.up.UploadSnapshot(ctx, domain.SnapshotScreen, trigger, data, merged); err != nil {
		s.logger.Warn("snapshot upload failed", zap.String("trigger", trigger), zap.Error(err))
	}
}

func (s *Snapshotter) limiterFor(trigger string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[trigger]
	if !ok {
		lim = rate.NewLimiter(rate.Every(s.cfg.Cooldown), 1)
		s.limiters[trigger] = lim
	}
	return lim
}

func frameMeta(img image.Image) map[string]interface{} {
	b := img.Bounds()
	return map[string]interface{}{
		"width":  b.Dx(),
		"height": b.Dy(),
	}
}

// EncodeJPEG сжимает кадр в JPEG с заданным качеством.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
