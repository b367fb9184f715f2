package proctor

import (
	"testing"
	"time"

	"github.com/xela07ax/examguard/internal/browser"
	"github.com/xela07ax/examguard/internal/domain"
)

func TestTabReturnSeverityByAbsence(t *testing.T) {
	t.Parallel()
	f := newFixture(DefaultPolicy(), browser.SimOptions{})
	t0 := time.Now()

	// Долгое отсутствие: больше порога 30s — warning
	f.engine.HandleVisibility(true, t0)
	f.engine.HandleVisibility(false, t0.Add(45*time.Second))

	returns := f.sink.byType(domain.EventTabReturn)
	if len(returns) != 1 {
		t.Fatalf("got %d tab_return events, want 1", len(returns))
	}
	if returns[0].Severity != domain.SeverityWarning {
		t.Errorf("45s absence severity = %s, want warning", returns[0].Severity)
	}
	if got := returns[0].Metadata["hidden_seconds"]; got != 45.0 {
		t.Errorf("hidden_seconds = %v, want 45", got)
	}

	// Короткое отсутствие — info
	t1 := t0.Add(time.Minute)
	f.engine.HandleVisibility(true, t1)
	f.engine.HandleVisibility(false, t1.Add(5*time.Second))

	returns = f.sink.byType(domain.EventTabReturn)
	if len(returns) != 2 {
		t.Fatalf("got %d tab_return events, want 2", len(returns))
	}
	if returns[1].Severity != domain.SeverityInfo {
		t.Errorf("5s absence severity = %s, want info", returns[1].Severity)
	}

	// Каждый уход — полноценное нарушение tab_switch
	if got := f.engine.Count(domain.CategoryTabSwitch); got != 2 {
		t.Errorf("tab_switch count = %d, want 2", got)
	}
}

func TestTabReturnWithoutHideIsSilent(t *testing.T) {
	t.Parallel()
	f := newFixture(DefaultPolicy(), browser.SimOptions{})

	f.engine.HandleVisibility(false, time.Now())

	if got := len(f.sink.byType(domain.EventTabReturn)); got != 0 {
		t.Errorf("got %d tab_return events without a prior hide, want 0", got)
	}
	if got := f.engine.Count(domain.CategoryTabSwitch); got != 0 {
		t.Errorf("tab_switch count = %d, want 0", got)
	}
}

func TestWindowFocusAwayDuration(t *testing.T) {
	t.Parallel()
	f := newFixture(DefaultPolicy(), browser.SimOptions{})
	t0 := time.Now()

	f.engine.HandleFocus(false, t0)

	blurs := f.sink.byType(domain.EventWindowBlur)
	if len(blurs) != 1 || blurs[0].Severity != domain.SeverityInfo {
		t.Fatalf("blur events = %v", blurs)
	}

	f.engine.HandleFocus(true, t0.Add(31*time.Second))

	focuses := f.sink.byType(domain.EventWindowFocus)
	if len(focuses) != 1 {
		t.Fatalf("got %d focus events, want 1", len(focuses))
	}
	if focuses[0].Severity != domain.SeverityWarning {
		t.Errorf("31s blur severity = %s, want warning", focuses[0].Severity)
	}
	if got := focuses[0].Metadata["away_seconds"]; got != 31.0 {
		t.Errorf("away_seconds = %v, want 31", got)
	}

	// Blur не двигает категорийные счетчики: окно могли перекрыть системным диалогом
	if got := f.engine.Count(domain.CategoryTabSwitch); got != 0 {
		t.Errorf("tab_switch count = %d, want 0", got)
	}
}

func TestFocusWithoutBlurIsInfo(t *testing.T) {
	t.Parallel()
	f := newFixture(DefaultPolicy(), browser.SimOptions{})

	f.engine.HandleFocus(true, time.Now())

	focuses := f.sink.byType(domain.EventWindowFocus)
	if len(focuses) != 1 {
		t.Fatalf("got %d focus events, want 1", len(focuses))
	}
	if focuses[0].Severity != domain.SeverityInfo {
		t.Errorf("severity = %s, want info", focuses[0].Severity)
	}
	if focuses[0].Metadata != nil {
		t.Errorf("focus without blur must not report a duration: %v", focuses[0].Metadata)
	}
}

func TestAwayThresholdIsConfigurable(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()
	p.AwayWarning = 5 * time.Second
	f := newFixture(p, browser.SimOptions{})
	t0 := time.Now()

	f.engine.HandleVisibility(true, t0)
	f.engine.HandleVisibility(false, t0.Add(6*time.Second))

	returns := f.sink.byType(domain.EventTabReturn)
	if len(returns) != 1 || returns[0].Severity != domain.SeverityWarning {
		t.Errorf("6s absence with 5s threshold: events = %v", returns)
	}
}
