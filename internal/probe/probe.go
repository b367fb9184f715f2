package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/examguard/internal/browser"
	"github.com/xela07ax/examguard/internal/telemetry"
)

/*
Преflight-проверка окружения перед стартом сессии.

Жесткие проверки (Gating) блокируют экзамен: без рендера не будет
снапшотов, без достижимого endpoint'а — телеметрии, а открытые DevTools —
прямой запрет. Мягкие проверки (блокировщик рекламы, fullscreen API)
дают только совет кандидату.
*/

type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Gating bool   `json:"gating"` // false — совет, не блокирует
	Detail string `json:"detail,omitempty"`
}

type Report struct {
	Checks []CheckResult `json:"checks"`
	At     time.Time     `json:"at"`
}

// OK — ни одна жесткая проверка не провалена.
func (r *Report) OK() bool {
	return len(r.HardFailures()) == 0
}

func (r *Report) HardFailures() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if c.Gating && !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

func (r *Report) Advisories() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if !c.Gating && !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// Problems собирает строки для стоп-экрана.
func (r *Report) Problems() []string {
	var out []string
	for _, c := range r.HardFailures() {
		out = append(out, fmt.Sprintf("%s: %s", c.Name, c.Detail))
	}
	return out
}

// UploadProber — кусочек sink-клиента, который нужен преflight'у
type UploadProber interface {
	ProbeUpload(ctx context.Context) error
}

type Config struct {
	DevtoolsSizeDelta int           // Порог дельты outer/inner размеров окна, px
	DevtoolsTimingMin time.Duration // Порог паузы вокруг debugger-стейтмента
}

type Runner struct {
	platform browser.Platform
	sink     UploadProber
	cfg      Config
	logger   *zap.Logger
}

func NewRunner(platform browser.Platform, sink UploadProber, cfg Config, logger *zap.Logger) *Runner {
	return &Runner{
		platform: platform,
		sink:     sink,
		cfg:      cfg,
		logger:   logger.With(zap.String("mod", "probe")),
	}
}

// Run прогоняет все проверки и собирает отчет. Сам решений не принимает:
// блокировать сессию или нет — дело контроллера.
func (r *Runner) Run(ctx context.Context) Report {
	report := Report{At: time.Now()}

	report.Checks = append(report.Checks,
		r.checkRenderer(),
		r.checkRenderTest(ctx),
		r.checkUpload(ctx),
		r.checkAdBlock(ctx),
		r.checkDevtools(),
		r.checkFullscreen(),
	)

	for _, c := range report.Checks {
		if !c.Passed {
			r.logger.Warn("probe check failed",
				zap.String("check", c.Name),
				zap.Bool("gating", c.Gating),
				zap.String("detail", c.Detail),
			)
		}
	}
	return report
}

func (r *Runner) checkRenderer() CheckResult {
	res := CheckResult{Name: "renderer", Gating: true}
	rend := r.platform.Renderer()
	if rend == nil || !rend.Available() {
		res.Detail = "screen renderer is not loaded"
		return res
	}
	res.Passed = true
	return res
}

func (r *Runner) checkRenderTest(ctx context.Context) CheckResult {
	res := CheckResult{Name: "render_test", Gating: true}
	rend := r.platform.Renderer()
	if rend == nil || !rend.Available() {
		res.Detail = "skipped: renderer missing"
		return res
	}

	img, err := rend.RenderTest(ctx)
	if err != nil {
		res.Detail = fmt.Sprintf("test render failed: %v", err)
		return res
	}
	if !hasInk(img) {
		// Рендер "работает", но отдает пустые пиксели — снапшоты будут черными
		res.Detail = "test render produced empty pixels"
		return res
	}
	res.Passed = true
	return res
}

func (r *Runner) checkUpload(ctx context.Context) CheckResult {
	res := CheckResult{Name: "upload_endpoint", Gating: true}

	err := r.sink.ProbeUpload(ctx)
	var vErr *telemetry.ValidationError
	switch {
	case err == nil:
		res.Passed = true
	case errors.As(err, &vErr):
		// Endpoint жив и валидирует — именно это и проверяем
		res.Passed = true
		res.Detail = fmt.Sprintf("endpoint validating (status %d)", vErr.Status)
	default:
		res.Detail = fmt.Sprintf("endpoint unreachable: %v", err)
	}
	return res
}

func (r *Runner) checkAdBlock(ctx context.Context) CheckResult {
	res := CheckResult{Name: "ad_blocker", Gating: false}

	bait, err := r.platform.Window().ProbeAdBait(ctx)
	if err != nil {
		// Не смогли проверить — не делаем выводов
		res.Passed = true
		res.Detail = fmt.Sprintf("bait probe failed: %v", err)
		return res
	}
	switch {
	case bait.BaitRemoved:
		res.Detail = "bait element removed or hidden"
	case bait.ScriptBlocked:
		res.Detail = "known script blocked"
	default:
		res.Passed = true
	}
	return res
}

func (r *Runner) checkDevtools() CheckResult {
	res := CheckResult{Name: "devtools", Gating: true}
	win := r.platform.Window()

	open, detail := EvaluateDevtools(win.Metrics(), win.DevtoolsProbe(), r.cfg)
	if open {
		res.Detail = detail
		return res
	}
	res.Passed = true
	return res
}

func (r *Runner) checkFullscreen() CheckResult {
	res := CheckResult{Name: "fullscreen_api", Gating: false}
	if !r.platform.Fullscreen().Supported() {
		res.Detail = "fullscreen API not available, enforcement degraded"
		return res
	}
	res.Passed = true
	return res
}
