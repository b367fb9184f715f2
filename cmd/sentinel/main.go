package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/examguard/internal/browser"
	"github.com/xela07ax/examguard/internal/capture"
	"github.com/xela07ax/examguard/internal/infra"
	"github.com/xela07ax/examguard/internal/probe"
	"github.com/xela07ax/examguard/internal/proctor"
	"github.com/xela07ax/examguard/internal/session"
	"github.com/xela07ax/examguard/internal/telemetry"
)

// sentinel — демонстрационный прогон агента против живого коллектора.
// Регистрирует попытку, собирает полный стек (probe, engine, capture,
// session) поверх симулятора браузера и, по желанию, проигрывает
// сценарий нарушений вплоть до дисквалификации.

func main() {
	// 1. Флаги и конфигурация
	candidate := flag.String("candidate", "demo-candidate", "candidate identifier for the attempt")
	exam := flag.String("exam", "demo-exam", "exam identifier for the attempt")
	misbehave := flag.Bool("misbehave", false, "replay a violation scenario up to disqualification")
	metricsAddr := flag.String("metrics-addr", "", "expose agent metrics on this address (empty = off)")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Регистрация попытки
	// Токен попытки выдается один раз при создании, дальше все запросы
	// агента ходят только с ним.
	attemptID, token, err := createAttempt(appCtx, cfg.Agent.CollectorURL, *candidate, *exam)
	if err != nil {
		logger.Fatal("failed to register attempt", zap.Error(err))
	}
	logger.Info("attempt registered",
		zap.String("attempt_id", attemptID),
		zap.String("candidate", *candidate),
		zap.String("exam", *exam))

	// 3. Телеметрия
	hc := &http.Client{Timeout: 10 * time.Second}
	client := telemetry.NewClient(cfg.Agent.CollectorURL, attemptID, token, hc, logger)
	sink := telemetry.NewEventLogger(client, cfg.Agent.EventBufferSize, logger)
	sink.Start()
	submitter := telemetry.NewSubmitter(cfg.Agent.CollectorURL, attemptID, token, cfg.Agent.SubmitTimeout, logger)

	// 4. Браузерная среда
	sim := browser.NewSim(browser.SimOptions{
		UserAgent: "examguard-sentinel/1.0",
		Metrics: browser.WindowMetrics{
			OuterWidth:  1920,
			OuterHeight: 1080,
			InnerWidth:  1920,
			InnerHeight: 1040,
		},
	})

	// Метрики агента. В браузере их не бывает, но у бинарника pull-модель
	// работает как у любого сервиса.
	var metrics *proctor.Metrics
	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = proctor.NewMetrics(reg)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			log.Fatal(http.ListenAndServe(*metricsAddr, mux))
		}()
	}

	// 5. Сборка агента
	snap := capture.NewSnapshotter(client, sim.Renderer(), capture.Config{
		Cooldown:    cfg.Agent.ScreenshotCooldown,
		SettleDelay: cfg.Agent.SettleDelay,
	}, logger)

	engine := proctor.NewEngine(
		proctor.PolicyFromConfig(cfg.Agent),
		sink,
		snap,
		submitter,
		sim.UI(),
		sim.Fullscreen(),
		metrics,
		logger,
	)

	probeCfg := probe.Config{
		DevtoolsSizeDelta: cfg.Agent.DevtoolsSizeDelta,
		DevtoolsTimingMin: cfg.Agent.DevtoolsTimingMin,
	}
	preflight := probe.NewRunner(sim, client, probeCfg, logger)

	ctrl := session.NewController(sim, engine, snap, preflight, sink, session.Config{
		SnapshotInterval:     cfg.Agent.SnapshotInterval,
		DevtoolsPollInterval: cfg.Agent.DevtoolsPollInterval,
		IPLookupURL:          cfg.Agent.IPLookupURL,
		Probe:                probeCfg,
	}, logger)

	// 6. Запуск сессии
	if err := ctrl.Start(appCtx); err != nil {
		sink.Stop()
		logger.Fatal("session start failed", zap.Error(err))
	}
	logger.Info("session started", zap.String("attempt_id", attemptID))

	// 7. Сценарий
	if *misbehave {
		runViolationScenario(sim, engine, logger)
	} else {
		// Честный кандидат: сидим до Ctrl+C, вебкам-таймер работает
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
		logger.Info("session running, press Ctrl+C to finish")
		<-stop
	}

	// 8. Завершение
	ctrl.Cleanup()
	sink.Stop()

	logger.Info("session finished",
		zap.String("attempt_id", attemptID),
		zap.String("final_state", engine.State().String()),
		zap.Int("live_subscriptions", sim.SubscriberCount()))
}

// createAttempt регистрирует попытку на коллекторе. В реальной интеграции
// это делает бэкенд экзамена при старте, агент получает готовую пару
// attempt_id + token.
func createAttempt(ctx context.Context, baseURL, candidate, exam string) (string, string, error) {
	body, err := json.Marshal(map[string]string{
		"candidate": candidate,
		"exam":      exam,
	})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/attempts", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return "", "", fmt.Errorf("collector unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", "", fmt.Errorf("create attempt: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		AttemptID string `json:"attempt_id"`
		Token     string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("create attempt: bad response: %w", err)
	}
	return out.AttemptID, out.Token, nil
}

// runViolationScenario проигрывает типичный набор нарушений. Паузы между
// шагами дают асинхронной очереди время дослать события, чтобы в консоли
// коллектора таймлайн читался по порядку.
func runViolationScenario(sim *browser.Sim, engine *proctor.Engine, logger *zap.Logger) {
	step := func(name string, fn func()) {
		logger.Info("scenario step", zap.String("step", name))
		fn()
		time.Sleep(700 * time.Millisecond)
	}

	step("tab switch, short absence", func() {
		sim.HideTab(time.Now())
		time.Sleep(2 * time.Second)
		sim.ShowTab(time.Now())
	})

	step("copy attempt", func() {
		sim.FireClipboard(browser.ClipboardEvent{Op: browser.ClipCopy, At: time.Now()})
	})

	step("paste attempt", func() {
		sim.FireClipboard(browser.ClipboardEvent{Op: browser.ClipPaste, At: time.Now()})
	})

	step("right click", func() {
		sim.FireContextMenu(browser.PointerEvent{At: time.Now()})
	})

	step("devtools shortcut", func() {
		sim.PressKey(browser.KeyEvent{Key: "F12", At: time.Now()})
	})

	// Выходы из fullscreen до дисквалификации. Порог по умолчанию 3,
	// третий выход добивает.
	for i := 1; i <= 3 && !engine.Disqualified(); i++ {
		step(fmt.Sprintf("fullscreen exit #%d", i), func() {
			sim.ExitFullscreen(time.Now())
		})
	}

	if engine.Disqualified() {
		logger.Info("scenario reached disqualification",
			zap.Strings("operator_alerts", sim.Console().Alerts()))
	} else {
		logger.Warn("scenario finished without disqualification")
	}
}
