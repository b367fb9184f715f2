package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/examguard/internal/browser"
	"github.com/xela07ax/examguard/internal/capture"
	"github.com/xela07ax/examguard/internal/domain"
	"github.com/xela07ax/examguard/internal/probe"
	"github.com/xela07ax/examguard/internal/proctor"
	"github.com/xela07ax/examguard/internal/telemetry"
)

/*
Контроллер сессии: собирает прокторинг в рабочее состояние и разбирает
обратно.

Порядок старта жесткий: преflight -> камера -> публичный IP -> подписки ->
fullscreen -> таймеры. Камера не запрашивается, пока окружение не прошло
жесткие проверки: нечего дергать разрешение, если сессия все равно не
стартует.

Cleanup идемпотентен: все подписки живут в одном наборе, таймеры гасятся
отменой контекста, повторный вызов — no-op.
*/

// ErrPreflightFailed — окружение не прошло жесткие проверки, сессия не начата.
var ErrPreflightFailed = errors.New("preflight checks failed")

// EventSink принимает события сессии без блокировки
type EventSink interface {
	Log(ev domain.Event)
}

type Config struct {
	SnapshotInterval     time.Duration
	DevtoolsPollInterval time.Duration
	IPLookupURL          string
	Probe                probe.Config
}

type Controller struct {
	platform  browser.Platform
	engine    *proctor.Engine
	snap      *capture.Snapshotter
	preflight *probe.Runner
	sink      EventSink
	cfg       Config
	logger    *zap.Logger

	mu      sync.Mutex
	unsubs  []browser.Unsubscribe
	track   browser.MediaTrack
	cancel  context.CancelFunc
	started bool
	cleaned bool

	wg sync.WaitGroup
}

func NewController(
	platform browser.Platform,
	engine *proctor.Engine,
	snap *capture.Snapshotter,
	preflight *probe.Runner,
	sink EventSink,
	cfg Config,
	logger *zap.Logger,
) *Controller {
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = 30 * time.Second
	}
	if cfg.DevtoolsPollInterval <= 0 {
		cfg.DevtoolsPollInterval = time.Second
	}
	return &Controller{
		platform:  platform,
		engine:    engine,
		snap:      snap,
		preflight: preflight,
		sink:      sink,
		cfg:       cfg,
		logger:    logger.With(zap.String("mod", "session")),
	}
}

// Start поднимает сессию. Ошибка возвращается только если окружение
// непригодно: все остальные отказы (камера, IP) деградируют мягко.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("session already started")
	}
	c.started = true
	c.mu.Unlock()

	// 1. Преflight: стоп-экран и отбой при жестких провалах
	report := c.preflight.Run(ctx)
	if !report.OK() {
		problems := report.Problems()
		c.platform.UI().ShowFailures("Your environment is not ready for a proctored exam", problems)
		c.sink.Log(domain.Event{
			Type:     domain.EventProbeFailed,
			Severity: domain.SeverityCritical,
			At:       time.Now(),
			Metadata: map[string]interface{}{"problems": problems},
		})
		return fmt.Errorf("%w: %d hard failures", ErrPreflightFailed, len(problems))
	}
	for _, adv := range report.Advisories() {
		c.platform.UI().Advise(advisoryMessage(adv))
	}

	// 2. Камера. Отказ не блокирует экзамен — попытка лишь помечается
	track, err := c.platform.Camera().Acquire(ctx)
	switch {
	case err == nil:
		c.mu.Lock()
		c.track = track
		c.mu.Unlock()
		c.snap.SetTrack(track)
		c.addUnsub(track.OnEnded(c.engine.HandleCameraDead))
	case errors.Is(err, browser.ErrPermissionDenied):
		c.platform.UI().Warn("Camera access was denied. The attempt has been flagged for review")
		c.sink.Log(domain.Event{
			Type:     domain.EventCameraDenied,
			Severity: domain.SeverityCritical,
			At:       time.Now(),
		})
	default:
		c.platform.UI().Warn("Camera is not available. The attempt has been flagged for review")
		c.sink.Log(domain.Event{
			Type:     domain.EventCameraDenied,
			Severity: domain.SeverityCritical,
			At:       time.Now(),
			Metadata: map[string]interface{}{"error": err.Error()},
		})
	}

	// 3. Публичный IP — для привязки сессии к сети, отказ не фатален
	ip := telemetry.LookupPublicIP(ctx, nil, c.cfg.IPLookupURL, c.logger)
	c.sink.Log(domain.Event{
		Type:     domain.EventSessionStart,
		Severity: domain.SeverityInfo,
		At:       time.Now(),
		Metadata: map[string]interface{}{
			"public_ip":  ip,
			"user_agent": c.platform.Window().UserAgent(),
		},
	})

	// 4. Подписки на браузерные события — все в один teardown-набор
	win := c.platform.Window()
	c.addUnsub(win.OnVisibilityChange(c.engine.HandleVisibility))
	c.addUnsub(win.OnFocusChange(c.engine.HandleFocus))
	c.addUnsub(win.OnKeyDown(c.engine.HandleKeyDown))
	c.addUnsub(win.OnClipboard(c.engine.HandleClipboard))
	c.addUnsub(win.OnContextMenu(c.engine.HandleContextMenu))
	c.addUnsub(c.platform.Fullscreen().OnChange(c.engine.HandleFullscreenChange))

	// 5. Стартовый вход в fullscreen (best-effort, дальше следит движок)
	if c.platform.Fullscreen().Supported() {
		if err := c.platform.Fullscreen().Enter(ctx); err != nil {
			c.logger.Warn("initial fullscreen enter failed", zap.Error(err))
		}
	}

	// 6. Два независимых таймера: вебкамера и поллинг DevTools
	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(2)
	go c.snapshotLoop(runCtx)
	go c.devtoolsLoop(runCtx)

	c.logger.Info("session started", zap.String("public_ip", ip))
	return nil
}

// Cleanup разбирает сессию: таймеры, подписки, трек, хвосты съемок.
// Повторный вызов — no-op.
func (c *Controller) Cleanup() {
	c.mu.Lock()
	if c.cleaned {
		c.mu.Unlock()
		return
	}
	c.cleaned = true
	cancel := c.cancel
	unsubs := c.unsubs
	c.unsubs = nil
	track := c.track
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	for _, u := range unsubs {
		u()
	}
	if track != nil {
		track.Stop()
	}
	c.snap.Wait()

	c.sink.Log(domain.Event{
		Type:     domain.EventSessionEnd,
		Severity: domain.SeverityInfo,
		At:       time.Now(),
		Metadata: map[string]interface{}{"counters": c.engine.Counters()},
	})
	c.logger.Info("session cleaned up")
}

func (c *Controller) addUnsub(u browser.Unsubscribe) {
	c.mu.Lock()
	c.unsubs = append(c.unsubs, u)
	c.mu.Unlock()
}

func (c *Controller) snapshotLoop(ctx context.Context) {
	defer c.wg.Done()
	t := time.NewTicker(c.cfg.SnapshotInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if c.snap.CaptureWebcam(domain.TriggerPeriodic) {
				continue
			}
			// Кадр не снялся. Если трек мертв — это уже не осечка, а сигнал
			c.mu.Lock()
			tr := c.track
			c.mu.Unlock()
			if tr != nil && !tr.Live() {
				c.engine.HandleCameraDead(time.Now())
			}
		}
	}
}

func (c *Controller) devtoolsLoop(ctx context.Context) {
	defer c.wg.Done()
	t := time.NewTicker(c.cfg.DevtoolsPollInterval)
	defer t.Stop()

	win := c.platform.Window()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if open, detail := probe.EvaluateDevtools(win.Metrics(), win.DevtoolsProbe(), c.cfg.Probe); open {
				c.engine.HandleDevtoolsDetected(detail, time.Now())
			}
		}
	}
}

func advisoryMessage(c probe.CheckResult) string {
	switch c.Name {
	case "ad_blocker":
		return "An ad or script blocker was detected. It may interfere with exam monitoring; please disable it"
	case "fullscreen_api":
		return "Your browser does not support fullscreen enforcement; stay on the exam page"
	default:
		return fmt.Sprintf("Environment notice: %s", c.Detail)
	}
}
