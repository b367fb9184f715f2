package telemetry

/*
Файл logger.go реализует EventLogger — асинхронную очередь отправки
событий прокторинга в коллектор.

Ключевые особенности архитектуры:
- Non-blocking Logging: обработчики браузерных событий — это Hot Path,
  задержки сети не должны влиять на реакцию движка. Вход — неблокирующий канал.
- Ordering: единственный воркер вычитывает очередь по одному событию,
  поэтому порядок доставки совпадает с порядком фиксации нарушений.
- Load Shedding: при переполнении буфера событие выбрасывается с записью
  в локальный лог, а не тормозит обработчик.
- Drain Pattern & Graceful Shutdown: Stop() запирает вход и дожидается,
  пока воркер дочитает канал до конца — события конца сессии не теряются.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/examguard/internal/domain"
)

// EventPoster определяет, куда физически уходят события
type EventPoster interface {
	PostEvent(ctx context.Context, ev domain.Event) error
}

type EventLogger struct {
	ch     chan domain.Event
	sink   EventPoster
	logger *zap.Logger
	wg     sync.WaitGroup

	postTimeout time.Duration

	// Атомарный флаг (0 - открыт, 1 - закрыт): защита от Log после остановки
	isClosed int32
}

func NewEventLogger(sink EventPoster, bufSize int, logger *zap.Logger) *EventLogger {
	if bufSize <= 0 {
		bufSize = 1000
	}
	return &EventLogger{
		ch:          make(chan domain.Event, bufSize),
		sink:        sink,
		logger:      logger.With(zap.String("mod", "event-logger")),
		postTimeout: 5 * time.Second,
	}
}

func (l *EventLogger) Start() {
	l.wg.Add(1)
	go l.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё отправит.
func (l *EventLogger) Stop() {
	// 1. Сначала ставим флаг
	atomic.StoreInt32(&l.isClosed, 1)

	// 2. Даем крошечную паузу, чтобы текущие Log успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Закрываем (Drain Pattern). Воркер завершается исключительно
	// через закрытие входного канала — сначала дочитает остатки.
	l.logger.Info("stopping event logger: closing channel and flushing queue...")
	close(l.ch)
	l.wg.Wait()
	l.logger.Info("event logger stopped gracefully")
}

// Log ставит событие в очередь. Никогда не блокирует вызывающего.
func (l *EventLogger) Log(ev domain.Event) {
	// Убеждаемся, что таймстемп всегда проставлен
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	if atomic.LoadInt32(&l.isClosed) == 1 {
		l.logger.Warn("event dropped: logger is stopping", zap.String("event_type", ev.Type))
		return
	}

	// Стратегия Load Shedding (сброс нагрузки)
	select {
	case l.ch <- ev:
	default:
		// Канал переполнен (Backpressure) — фиксируем потерю локально
		l.logger.Error("event_buffer_overflow",
			zap.String("event_type", ev.Type),
			zap.String("severity", string(ev.Severity)),
		)
	}
}

func (l *EventLogger) worker() {
	defer l.wg.Done()

	for ev := range l.ch {
		// Используем Background: основной контекст к моменту дренажа может быть закрыт
		ctx, cancel := context.WithTimeout(context.Background(), l.postTimeout)
		if err := l.sink.PostEvent(ctx, ev); err != nil {
			// Fire-and-forget: ошибку фиксируем и едем дальше, ретраев нет
			l.logger.Error("event post failed",
				zap.String("event_type", ev.Type),
				zap.Error(err),
			)
		}
		cancel()
	}
	l.logger.Info("event logger worker finished")
}
