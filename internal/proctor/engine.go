package proctor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/examguard/internal/browser"
	"github.com/xela07ax/examguard/internal/domain"
)

/*
Движок прокторинга: категорийные счетчики, эскалация и дисквалификация.

Все состояние под одним мьютексом, side-эффекты (сеть, UI, кадры) строго
вне критической секции. Решение о дисквалификации принимается атомарно:
при любом числе конкурирующих нарушений терминальную последовательность
исполнит ровно один победитель.
*/

// State — стадия эскалации сессии.
type State int

const (
	StateNormal State = iota
	StateWarning
	StateDisqualified
)

func (s State) String() string {
	switch s {
	case StateWarning:
		return "warning"
	case StateDisqualified:
		return "disqualified"
	default:
		return "normal"
	}
}

// EventSink принимает события без блокировки вызывающего
type EventSink interface {
	Log(ev domain.Event)
}

// ShotTrigger инициирует событийный кадр экрана
type ShotTrigger interface {
	TriggerEvent(trigger string, at time.Time, meta map[string]interface{}) bool
}

// Submitter фиксирует принудительную сдачу на сервере
type Submitter interface {
	Submit(ctx context.Context, reason string) error
}

type Engine struct {
	policy  Policy
	sink    EventSink
	shots   ShotTrigger
	submit  Submitter
	ui      browser.UI
	fs      browser.Fullscreen
	metrics *Metrics
	logger  *zap.Logger

	mu           sync.Mutex
	counters     map[domain.Category]int
	state        State
	disqualified bool
	hiddenAt     time.Time // Когда вкладку скрыли
	blurredAt    time.Time // Когда окно потеряло фокус
	cameraWarned bool      // Предупреждение о камере — одно на сессию
	devtoolsSeen bool      // Детект DevTools — один на сессию
	restoring    bool      // Идет фоновый возврат fullscreen
}

func NewEngine(
	policy Policy,
	sink EventSink,
	shots ShotTrigger,
	submit Submitter,
	ui browser.UI,
	fs browser.Fullscreen,
	metrics *Metrics,
	logger *zap.Logger,
) *Engine {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	metrics.SessionState.Set(float64(StateNormal))

	return &Engine{
		policy:   policy,
		sink:     sink,
		shots:    shots,
		submit:   submit,
		ui:       ui,
		fs:       fs,
		metrics:  metrics,
		logger:   logger.With(zap.String("mod", "engine")),
		counters: make(map[domain.Category]int),
	}
}

// verdict — решение, снятое под мьютексом; эффекты исполняются после.
type verdict struct {
	count      int
	rule       Rule
	severity   domain.Severity
	screenshot bool
	warn       bool
	remaining  int // -1 — в тосте счетчик не показываем
	disqualify bool
}

// Violation — единая точка учета нарушения любой категории.
func (e *Engine) Violation(cat domain.Category, at time.Time, meta map[string]interface{}) {
	if at.IsZero() {
		at = time.Now()
	}

	v := e.register(cat)
	e.metrics.ViolationsTotal.WithLabelValues(string(cat)).Inc()

	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["count"] = v.count
	if v.rule.Disqualifying {
		meta["max_allowed"] = v.rule.MaxAllowed
	}
	e.sink.Log(domain.Event{Type: string(cat), Severity: v.severity, At: at, Metadata: meta})

	if v.screenshot {
		if e.shots.TriggerEvent(string(cat), at, map[string]interface{}{"count": v.count}) {
			e.metrics.SnapshotsTotal.WithLabelValues(string(cat)).Inc()
		}
	}

	if v.disqualify {
		reason := fmt.Sprintf("%s limit exceeded (%d/%d)", categoryTitle(cat), v.count, v.rule.MaxAllowed)
		e.runDisqualification(reason, at)
		return
	}

	if v.warn {
		e.metrics.WarningsTotal.Inc()
		e.ui.Warn(warnMessage(cat, v.remaining))
	}
}

// register двигает счетчик и принимает решение. Только состояние, никаких I/O.
func (e *Engine) register(cat domain.Category) verdict {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule := e.policy.Rules[cat]
	e.counters[cat]++
	count := e.counters[cat]

	v := verdict{
		count:     count,
		rule:      rule,
		severity:  domain.SeverityWarning,
		remaining: -1,
	}
	if rule.ShotEvery > 0 && count%rule.ShotEvery == 0 {
		v.screenshot = true
	}

	// Терминал наступает на N-м событии, не позже: MaxAllowed 3 означает,
	// что третий выход уже дисквалифицирует
	over := rule.Disqualifying && count >= rule.MaxAllowed
	switch {
	case over && !e.disqualified:
		// Победитель гонки: флаг переключается ровно один раз
		e.disqualified = true
		e.state = StateDisqualified
		e.metrics.SessionState.Set(float64(StateDisqualified))
		e.metrics.Disqualifications.Inc()
		v.severity = domain.SeverityCritical
		v.disqualify = true
	case over || e.disqualified:
		// Сессия уже терминальна: фиксируем, но не эскалируем повторно
		v.severity = domain.SeverityCritical
	default:
		v.warn = true
		if rule.Disqualifying {
			if e.state == StateNormal {
				e.state = StateWarning
				e.metrics.SessionState.Set(float64(StateWarning))
			}
			v.remaining = rule.MaxAllowed - count
		}
	}
	return v
}

// ForceDisqualify — дисквалификация вне категорийных счетчиков
// (например, решение сервера). Идемпотентна, как и обычный путь.
func (e *Engine) ForceDisqualify(reason string, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	e.mu.Lock()
	if e.disqualified {
		e.mu.Unlock()
		return
	}
	e.disqualified = true
	e.state = StateDisqualified
	e.metrics.SessionState.Set(float64(StateDisqualified))
	e.metrics.Disqualifications.Inc()
	e.mu.Unlock()

	e.runDisqualification(reason, at)
}

// runDisqualification — терминальная последовательность. Вызывается ровно
// один раз за сессию (гонку выигрывает один вызов register/ForceDisqualify).
func (e *Engine) runDisqualification(reason string, at time.Time) {
	e.logger.Warn("disqualifying session", zap.String("reason", reason))

	// 1. Глушим ввод и сообщаем кандидату
	e.ui.Freeze()
	e.ui.Alert("You have been disqualified from this exam. Reason: " + reason)

	// 2. Терминальное событие — до сабмита, чтобы очередь успела его увезти
	e.sink.Log(domain.Event{
		Type:     domain.EventDisqualified,
		Severity: domain.SeverityCritical,
		At:       at,
		Metadata: map[string]interface{}{"reason": reason},
	})

	// 3. Принудительная сдача. Дедлайн POST и страховочный GET — внутри Submitter.
	if err := e.submit.Submit(context.Background(), reason); err != nil {
		e.logger.Error("forced submission failed", zap.String("reason", reason), zap.Error(err))
	}
}

// --- Аксессоры состояния ---

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Disqualified() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disqualified
}

// Count — текущее значение счетчика категории.
func (e *Engine) Count(cat domain.Category) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counters[cat]
}

// Counters — снимок всех счетчиков (отчет конца сессии).
func (e *Engine) Counters() map[domain.Category]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[domain.Category]int, len(e.counters))
	for k, v := range e.counters {
		out[k] = v
	}
	return out
}

// --- Сообщения кандидату ---

var categoryMessages = map[domain.Category]string{
	domain.CategoryTabSwitch:        "Switching tabs is not allowed during the exam",
	domain.CategoryFullscreenExit:   "Leaving fullscreen mode is not allowed",
	domain.CategoryCopy:             "Copying is not allowed during the exam",
	domain.CategoryPaste:            "Pasting is not allowed during the exam",
	domain.CategorySelectAll:        "Selecting all text is not allowed",
	domain.CategoryRightClick:       "The context menu is disabled during the exam",
	domain.CategoryDevtoolsShortcut: "Developer tools are not allowed during the exam",
}

func warnMessage(cat domain.Category, remaining int) string {
	msg, ok := categoryMessages[cat]
	if !ok {
		msg = "This action is not allowed during the exam"
	}
	if remaining >= 0 {
		msg = fmt.Sprintf("%s. Attempts remaining before disqualification: %d", msg, remaining)
	}
	return msg
}

func categoryTitle(cat domain.Category) string {
	words := strings.ReplaceAll(string(cat), "_", " ")
	if words == "" {
		return words
	}
	return strings.ToUpper(words[:1]) + words[1:]
}
