package probe

import (
	"fmt"
	"image"
	"time"

	"github.com/xela07ax/examguard/internal/browser"
)

const (
	defaultSizeDelta = 160 // px; тулбары браузера дают ~80-120, док DevTools — заметно больше
	defaultTimingMin = 120 * time.Millisecond
)

// EvaluateDevtools интерпретирует сырые сигналы окна. Используется и в
// преflight, и в периодическом поллинге во время сессии.
//
// Ни одна эвристика не надежна сама по себе (отсоединенное окно DevTools
// не меняет размеры), поэтому проверяем несколько независимых следов.
func EvaluateDevtools(m browser.WindowMetrics, sig browser.DevtoolsSignals, cfg Config) (bool, string) {
	sizeDelta := cfg.DevtoolsSizeDelta
	if sizeDelta <= 0 {
		sizeDelta = defaultSizeDelta
	}
	timingMin := cfg.DevtoolsTimingMin
	if timingMin <= 0 {
		timingMin = defaultTimingMin
	}

	if sig.ConsoleGetterFired {
		return true, "console inspection hook fired"
	}
	if sig.DebuggerPause >= timingMin {
		return true, fmt.Sprintf("debugger pause %v", sig.DebuggerPause)
	}
	if d := m.OuterWidth - m.InnerWidth; d >= sizeDelta {
		return true, fmt.Sprintf("window width delta %dpx", d)
	}
	if d := m.OuterHeight - m.InnerHeight; d >= sizeDelta {
		return true, fmt.Sprintf("window height delta %dpx", d)
	}
	return false, ""
}

// hasInk — есть ли в картинке хоть один непустой пиксель.
func hasInk(img image.Image) bool {
	if img == nil {
		return false
	}
	b := img.Bounds()
	if b.Empty() {
		return false
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			if a != 0 && (r != 0 || g != 0 || bl != 0) {
				return true
			}
		}
	}
	return false
}
