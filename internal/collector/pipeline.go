package collector

/*
Файл pipeline.go реализует асинхронную запись событий прокторинга в
PostgreSQL.

Ключевые особенности архитектуры:
- Non-blocking Ingest: обработчик HTTP кладет событие в канал и сразу
  отвечает клиенту. Задержки БД не влияют на Response Time агентов.
- Batching & Efficiency: накопление событий в памяти и пакетная запись
  (Bulk Insert) по таймеру или при достижении лимита пачки.
- Load Shedding: при переполнении буфера событие теряется с фиксацией
  в логе и метрике — деградация, но не каскадный отказ.
- Drain Pattern & Graceful Shutdown: при остановке буфер вычитывается
  до конца, Final Flush уходит с контекстом Background.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/examguard/internal/domain"
)

// EventWriter определяет, куда физически сохраняются события
type EventWriter interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []domain.StoredEvent) error
}

type PipelineConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

type EventPipeline struct {
	ch      chan domain.StoredEvent
	repo    EventWriter
	metrics *Metrics
	logger  *zap.Logger
	cfg     PipelineConfig
	wg      sync.WaitGroup

	// Атомарный флаг (0 - открыт, 1 - закрыт)
	isClosed int32
}

func NewEventPipeline(repo EventWriter, metrics *Metrics, cfg PipelineConfig, logger *zap.Logger) *EventPipeline {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &EventPipeline{
		ch:      make(chan domain.StoredEvent, cfg.BufferSize),
		repo:    repo,
		metrics: metrics,
		logger:  logger.With(zap.String("mod", "pipeline")),
		cfg:     cfg,
	}
}

func (p *EventPipeline) Start() {
	p.wg.Add(1)
	go p.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (p *EventPipeline) Stop() {
	// 1. Сначала ставим флаг
	atomic.StoreInt32(&p.isClosed, 1)

	// 2. Даем крошечную паузу, чтобы текущие Log успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Закрываем (Drain Pattern): воркер дочитает остатки и сделает Final Flush
	p.logger.Info("stopping event pipeline: closing channel and flushing buffer...")
	close(p.ch)
	p.wg.Wait()
	p.logger.Info("event pipeline stopped gracefully")
}

// Log ставит событие в очередь записи. Никогда не блокирует обработчик.
func (p *EventPipeline) Log(ev domain.StoredEvent) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}

	if atomic.LoadInt32(&p.isClosed) == 1 {
		p.logger.Warn("event dropped: pipeline is stopping", zap.String("id", ev.ID))
		return
	}

	// Стратегия Load Shedding (сброс нагрузки)
	select {
	case p.ch <- ev:
		p.metrics.PipelineBuffer.Set(float64(len(p.ch)))
	default:
		p.metrics.RejectedTotal.WithLabelValues("buffer_overflow").Inc()
		p.logger.Error("event_buffer_overflow",
			zap.String("attempt_id", ev.AttemptID),
			zap.String("event_type", ev.Type),
		)
	}
}

func (p *EventPipeline) worker() {
	defer p.wg.Done()

	batch := make([]domain.StoredEvent, 0, p.cfg.BatchSize)
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Используем Background: основной контекст может быть уже закрыт
			if err := p.repo.WriteBatch(context.Background(), batch); err != nil {
				p.logger.Error("event flush failed", zap.Int("batch", len(batch)), zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case ev, ok := <-p.ch:
			if !ok {
				// Канал закрыт в Stop() — самодостаточный сигнал завершения:
				// остатки очереди уже вычитаны, остался финальный сброс
				flush()
				p.logger.Info("event pipeline worker finished")
				return
			}
			batch = append(batch, ev)
			p.metrics.PipelineBuffer.Set(float64(len(p.ch)))
			if len(batch) >= p.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
