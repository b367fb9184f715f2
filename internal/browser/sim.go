package browser

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"time"
)

/*
Симулятор платформы для тестов и локального прогона агента.

Как и реальный браузер, он ничего не знает про правила прокторинга:
только хранит состояние окна и раздает события подписчикам. Сценарий
(уход со вкладки, выход из fullscreen, смерть камеры) разыгрывает
вызывающий код через Fire*-методы.
*/

type SimOptions struct {
	UserAgent string
	Metrics   WindowMetrics

	DenyCamera            bool
	NoRenderer            bool // html2canvas "не загрузился"
	BlankRender           bool // Рендер работает, но отдает пустые пиксели
	FullscreenUnsupported bool
	EnterFailures         int // Первые N запросов fullscreen отклоняются

	BaitRemoved   bool
	ScriptBlocked bool
}

type Sim struct {
	window *simWindow
	fs     *simFullscreen
	cam    *simCamera
	rend   *simRenderer
	ui     *SimUI
}

func NewSim(opts SimOptions) *Sim {
	if opts.UserAgent == "" {
		opts.UserAgent = "ExamGuardSim/1.0 (headless)"
	}
	if opts.Metrics == (WindowMetrics{}) {
		opts.Metrics = WindowMetrics{OuterWidth: 1280, OuterHeight: 800, InnerWidth: 1280, InnerHeight: 800}
	}

	s := &Sim{
		window: &simWindow{
			ua:      opts.UserAgent,
			metrics: opts.Metrics,
			bait:    BaitResult{BaitRemoved: opts.BaitRemoved, ScriptBlocked: opts.ScriptBlocked},
		},
		fs: &simFullscreen{
			supported:     !opts.FullscreenUnsupported,
			enterFailures: opts.EnterFailures,
		},
		cam: &simCamera{deny: opts.DenyCamera},
		ui:  &SimUI{},
	}
	if !opts.NoRenderer {
		s.rend = &simRenderer{blank: opts.BlankRender}
	}
	return s
}

func (s *Sim) Window() Window         { return s.window }
func (s *Sim) Fullscreen() Fullscreen { return s.fs }
func (s *Sim) Camera() Camera         { return s.cam }
func (s *Sim) UI() UI                 { return s.ui }

func (s *Sim) Renderer() Renderer {
	if s.rend == nil {
		return nil
	}
	return s.rend
}

// Console возвращает записи UI для проверок в тестах.
func (s *Sim) Console() *SimUI { return s.ui }

// --- Сценарные триггеры ---

func (s *Sim) HideTab(at time.Time) { s.window.visibility.fire(true, at) }
func (s *Sim) ShowTab(at time.Time) { s.window.visibility.fire(false, at) }
func (s *Sim) Blur(at time.Time)    { s.window.focus.fire(false, at) }
func (s *Sim) Focus(at time.Time)   { s.window.focus.fire(true, at) }

// PressKey раздает keydown. true — кто-то из подписчиков погасил событие.
func (s *Sim) PressKey(ev KeyEvent) bool {
	suppressed := false
	for _, fn := range s.window.keys.snapshot() {
		if fn(ev) {
			suppressed = true
		}
	}
	return suppressed
}

func (s *Sim) FireClipboard(ev ClipboardEvent) bool {
	suppressed := false
	for _, fn := range s.window.clip.snapshot() {
		if fn(ev) {
			suppressed = true
		}
	}
	return suppressed
}

func (s *Sim) FireContextMenu(ev PointerEvent) bool {
	suppressed := false
	for _, fn := range s.window.menu.snapshot() {
		if fn(ev) {
			suppressed = true
		}
	}
	return suppressed
}

// ExitFullscreen моделирует Esc или системный выход.
func (s *Sim) ExitFullscreen(at time.Time) {
	s.fs.setActive(false, at)
}

// KillCamera обрывает выданный трек, как если бы камеру выдернули.
func (s *Sim) KillCamera(at time.Time) {
	s.cam.kill(at)
}

func (s *Sim) SetMetrics(m WindowMetrics) {
	s.window.mu.Lock()
	s.window.metrics = m
	s.window.mu.Unlock()
}

func (s *Sim) SetDevtoolsSignals(d DevtoolsSignals) {
	s.window.mu.Lock()
	s.window.devtools = d
	s.window.mu.Unlock()
}

// OpenDevtoolsDock раздувает outer-размер окна: классический след док-панели.
func (s *Sim) OpenDevtoolsDock(extra int) {
	s.window.mu.Lock()
	s.window.metrics.OuterWidth = s.window.metrics.InnerWidth + extra
	s.window.mu.Unlock()
}

// --- Реестр подписок ---

// handlerSet хранит подписчиков и выдает Unsubscribe на каждого.
// Служит референсной реализацией teardown-набора: снятие по id, повтор — no-op.
type handlerSet[T any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]T
}

func (h *handlerSet[T]) add(fn T) Unsubscribe {
	h.mu.Lock()
	if h.fns == nil {
		h.fns = make(map[int]T)
	}
	id := h.next
	h.next++
	h.fns[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.fns, id)
			h.mu.Unlock()
		})
	}
}

func (h *handlerSet[T]) snapshot() []T {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]T, 0, len(h.fns))
	for _, fn := range h.fns {
		out = append(out, fn)
	}
	return out
}

// size нужен тестам teardown-семантики.
func (h *handlerSet[T]) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.fns)
}

type boolHandlers struct {
	handlerSet[func(bool, time.Time)]
}

func (h *boolHandlers) fire(v bool, at time.Time) {
	for _, fn := range h.snapshot() {
		fn(v, at)
	}
}

// --- Window ---

type simWindow struct {
	visibility boolHandlers
	focus      boolHandlers
	keys       handlerSet[func(KeyEvent) bool]
	clip       handlerSet[func(ClipboardEvent) bool]
	menu       handlerSet[func(PointerEvent) bool]

	mu       sync.Mutex
	ua       string
	metrics  WindowMetrics
	devtools DevtoolsSignals
	bait     BaitResult
}

func (w *simWindow) OnVisibilityChange(fn func(hidden bool, at time.Time)) Unsubscribe {
	return w.visibility.add(fn)
}

func (w *simWindow) OnFocusChange(fn func(focused bool, at time.Time)) Unsubscribe {
	return w.focus.add(fn)
}

func (w *simWindow) OnKeyDown(fn func(ev KeyEvent) bool) Unsubscribe {
	return w.keys.add(fn)
}

func (w *simWindow) OnClipboard(fn func(ev ClipboardEvent) bool) Unsubscribe {
	return w.clip.add(fn)
}

func (w *simWindow) OnContextMenu(fn func(ev PointerEvent) bool) Unsubscribe {
	return w.menu.add(fn)
}

func (w *simWindow) UserAgent() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ua
}

func (w *simWindow) Metrics() WindowMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

func (w *simWindow) ProbeAdBait(ctx context.Context) (BaitResult, error) {
	select {
	case <-ctx.Done():
		return BaitResult{}, ctx.Err()
	default:
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bait, nil
}

func (w *simWindow) DevtoolsProbe() DevtoolsSignals {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.devtools
}

// subscriberCount — сумма живых подписок по всем событиям окна.
func (w *simWindow) subscriberCount() int {
	return w.visibility.size() + w.focus.size() + w.keys.size() + w.clip.size() + w.menu.size()
}

// SubscriberCount отдает число живых подписок на окно (включая fullscreen).
func (s *Sim) SubscriberCount() int {
	return s.window.subscriberCount() + s.fs.change.size()
}

// --- Fullscreen ---

type simFullscreen struct {
	mu            sync.Mutex
	supported     bool
	active        bool
	enterFailures int

	change boolHandlers
}

func (f *simFullscreen) Supported() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.supported
}

func (f *simFullscreen) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *simFullscreen) Enter(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	if !f.supported {
		f.mu.Unlock()
		return errors.New("fullscreen API not available")
	}
	if f.enterFailures > 0 {
		f.enterFailures--
		f.mu.Unlock()
		return errors.New("fullscreen request rejected")
	}
	if f.active {
		f.mu.Unlock()
		return nil
	}
	f.active = true
	f.mu.Unlock()

	f.change.fire(true, time.Now())
	return nil
}

func (f *simFullscreen) Exit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.setActive(false, time.Now())
	return nil
}

func (f *simFullscreen) OnChange(fn func(active bool, at time.Time)) Unsubscribe {
	return f.change.add(fn)
}

func (f *simFullscreen) setActive(active bool, at time.Time) {
	f.mu.Lock()
	if f.active == active {
		f.mu.Unlock()
		return
	}
	f.active = active
	f.mu.Unlock()

	f.change.fire(active, at)
}

// --- Camera ---

type simCamera struct {
	mu    sync.Mutex
	deny  bool
	track *simTrack
}

func (c *simCamera) Acquire(ctx context.Context) (MediaTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deny {
		return nil, ErrPermissionDenied
	}
	c.track = &simTrack{live: true}
	return c.track, nil
}

func (c *simCamera) kill(at time.Time) {
	c.mu.Lock()
	t := c.track
	c.mu.Unlock()
	if t != nil {
		t.die(at)
	}
}

type simTrack struct {
	mu    sync.Mutex
	live  bool
	ended handlerSet[func(at time.Time)]
}

func (t *simTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// Stop — локальная остановка (cleanup). Событие ended не раздается.
func (t *simTrack) Stop() {
	t.mu.Lock()
	t.live = false
	t.mu.Unlock()
}

func (t *simTrack) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	live := t.live
	t.mu.Unlock()
	if !live {
		return nil, errors.New("video track is not live")
	}
	return testFrame(320, 240), nil
}

func (t *simTrack) OnEnded(fn func(at time.Time)) Unsubscribe {
	return t.ended.add(fn)
}

// die — внешняя смерть трека (камеру выдернули, разрешение отозвали).
func (t *simTrack) die(at time.Time) {
	t.mu.Lock()
	if !t.live {
		t.mu.Unlock()
		return
	}
	t.live = false
	t.mu.Unlock()
	for _, fn := range t.ended.snapshot() {
		fn(at)
	}
}

// --- Renderer ---

type simRenderer struct {
	blank bool

	mu            sync.Mutex
	viewportCalls int
	lastHideMedia bool
}

func (r *simRenderer) Available() bool { return true }

func (r *simRenderer) RenderTest(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.blank {
		return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
	}
	return testFrame(8, 8), nil
}

func (r *simRenderer) CaptureViewport(ctx context.Context, hideMedia bool) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.viewportCalls++
	r.lastHideMedia = hideMedia
	r.mu.Unlock()
	if r.blank {
		return image.NewRGBA(image.Rect(0, 0, 1024, 768)), nil
	}
	return testFrame(1024, 768), nil
}

// ViewportCalls сообщает, сколько раз снимали экран и с каким hideMedia.
func (r *simRenderer) ViewportCalls() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewportCalls, r.lastHideMedia
}

// testFrame — детерминированная картинка с ненулевыми пикселями.
func testFrame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7 % 255), G: uint8(y * 13 % 255), B: 0x40, A: 0xff})
		}
	}
	return img
}

// --- UI ---

// SimUI пишет все показанное кандидату, тесты читают через аксессоры.
type SimUI struct {
	mu         sync.Mutex
	warnings   []string
	alerts     []string
	advisories []string
	failures   []failureScreen
	frozen     bool
}

type failureScreen struct {
	title    string
	problems []string
}

func (u *SimUI) Warn(msg string) {
	u.mu.Lock()
	u.warnings = append(u.warnings, msg)
	u.mu.Unlock()
}

func (u *SimUI) Alert(msg string) {
	u.mu.Lock()
	u.alerts = append(u.alerts, msg)
	u.mu.Unlock()
}

func (u *SimUI) Advise(msg string) {
	u.mu.Lock()
	u.advisories = append(u.advisories, msg)
	u.mu.Unlock()
}

func (u *SimUI) ShowFailures(title string, problems []string) {
	u.mu.Lock()
	u.failures = append(u.failures, failureScreen{title: title, problems: append([]string(nil), problems...)})
	u.mu.Unlock()
}

func (u *SimUI) Freeze() {
	u.mu.Lock()
	u.frozen = true
	u.mu.Unlock()
}

func (u *SimUI) Warnings() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.warnings...)
}

func (u *SimUI) Alerts() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.alerts...)
}

func (u *SimUI) Advisories() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.advisories...)
}

func (u *SimUI) LastFailure() (string, []string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.failures) == 0 {
		return "", nil, false
	}
	last := u.failures[len(u.failures)-1]
	return last.title, append([]string(nil), last.problems...), true
}

func (u *SimUI) Frozen() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.frozen
}
