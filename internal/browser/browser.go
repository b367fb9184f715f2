package browser

import (
	"context"
	"errors"
	"image"
	"time"
)

/*
Граница с экзаменационной платформой.

Платформа отдается движку как есть: окно, fullscreen, камера и рендерер
описаны интерфейсами, чтобы ядро прокторинга не знало, стоит за ними
реальный браузерный мост или симулятор. Все подписки возвращают Unsubscribe,
контроллер сессии складывает их в набор и гасит при cleanup.
*/

// Unsubscribe снимает подписку. Повторный вызов — no-op.
type Unsubscribe func()

var ErrPermissionDenied = errors.New("media permission denied")

// Target — элемент, на котором случилось событие ввода.
type Target struct {
	Tag      string // "input", "textarea", "div"...
	Editable bool   // Поле ввода или contenteditable: такие события не считаем нарушением
}

type KeyEvent struct {
	Key    string // Значение KeyboardEvent.key: "F12", "c", "u"
	Ctrl   bool
	Meta   bool
	Shift  bool
	Alt    bool
	At     time.Time
	Target Target
}

type ClipboardOp string

const (
	ClipCopy  ClipboardOp = "copy"
	ClipPaste ClipboardOp = "paste"
)

type ClipboardEvent struct {
	Op     ClipboardOp
	At     time.Time
	Target Target
}

type PointerEvent struct {
	At     time.Time
	Target Target
}

// WindowMetrics — размеры окна для эвристики док-панели DevTools.
type WindowMetrics struct {
	OuterWidth  int
	OuterHeight int
	InnerWidth  int
	InnerHeight int
}

// BaitResult — итог проверки подсадного элемента на блокировщик рекламы.
type BaitResult struct {
	BaitRemoved   bool // Нода с "рекламными" классами скрыта или выброшена из DOM
	ScriptBlocked bool // Известный ad-скрипт не догрузился
}

// DevtoolsSignals — сырые сигналы для эвристик. Их интерпретирует probe.
type DevtoolsSignals struct {
	ConsoleGetterFired bool          // Сработал getter на объекте, залогированном в console
	DebuggerPause      time.Duration // Замер задержки вокруг debugger-стейтмента
}

// Window — событийная поверхность вкладки.
// Обработчики cancelable-событий возвращают true, если событие нужно погасить.
type Window interface {
	OnVisibilityChange(fn func(hidden bool, at time.Time)) Unsubscribe
	OnFocusChange(fn func(focused bool, at time.Time)) Unsubscribe
	OnKeyDown(fn func(ev KeyEvent) bool) Unsubscribe
	OnClipboard(fn func(ev ClipboardEvent) bool) Unsubscribe
	OnContextMenu(fn func(ev PointerEvent) bool) Unsubscribe

	UserAgent() string
	Metrics() WindowMetrics
	ProbeAdBait(ctx context.Context) (BaitResult, error)
	DevtoolsProbe() DevtoolsSignals
}

// Fullscreen — вендор-нейтральная обертка над Fullscreen API.
// Выбор конкретного варианта (standard/webkit/moz) — дело реализации.
type Fullscreen interface {
	Supported() bool
	Active() bool
	Enter(ctx context.Context) error
	Exit(ctx context.Context) error
	OnChange(fn func(active bool, at time.Time)) Unsubscribe
}

// MediaTrack — живой видеотрек вебкамеры.
type MediaTrack interface {
	Live() bool
	Stop()
	Frame(ctx context.Context) (image.Image, error)
	OnEnded(fn func(at time.Time)) Unsubscribe
}

type Camera interface {
	// Acquire запрашивает разрешение и поток. Отказ — ErrPermissionDenied.
	Acquire(ctx context.Context) (MediaTrack, error)
}

// Renderer — отрисовка DOM в пиксели (мост к html2canvas).
type Renderer interface {
	Available() bool
	// RenderTest рисует маленький пробный регион. Пустые пиксели — рендер сломан.
	RenderTest(ctx context.Context) (image.Image, error)
	// CaptureViewport снимает вьюпорт. hideMedia исключает видео-элементы,
	// чтобы кадр не содержал копию собственного потока камеры.
	CaptureViewport(ctx context.Context, hideMedia bool) (image.Image, error)
}

// UI — поверхность уведомлений кандидата.
type UI interface {
	Warn(msg string)                              // Неблокирующий тост
	Alert(msg string)                             // Блокирующий диалог
	Advise(msg string)                            // Закрываемый баннер (советы, не санкции)
	ShowFailures(title string, problems []string) // Стоп-экран со списком проблем
	Freeze()                                      // Оверлей, глушащий весь ввод
}

// Platform — корень всей браузерной поверхности.
// Renderer может вернуть nil: мост к html2canvas не обязан был загрузиться.
type Platform interface {
	Window() Window
	Fullscreen() Fullscreen
	Camera() Camera
	Renderer() Renderer
	UI() UI
}
