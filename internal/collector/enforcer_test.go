package collector

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/examguard/internal/domain"
)

type fakeFlagger struct {
	mu    sync.Mutex
	calls []domain.AttemptStatus
}

func (f *fakeFlagger) UpdateStatus(_ context.Context, _ string, status domain.AttemptStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, status)
	return nil
}

func (f *fakeFlagger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSignaler struct {
	mu      sync.Mutex
	signals []bool
}

func (f *fakeSignaler) SignalFlag(_ context.Context, _ string, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, on)
	return nil
}

func newTestEnforcer(cfg EnforcerConfig) (*Enforcer, *fakeFlagger, *fakeSignaler) {
	repo := &fakeFlagger{}
	signal := &fakeSignaler{}
	return NewEnforcer(repo, signal, nil, cfg, zap.NewNop()), repo, signal
}

func TestEnforcerFlagsAtThreshold(t *testing.T) {
	t.Parallel()
	e, repo, signal := newTestEnforcer(EnforcerConfig{Window: 10 * time.Minute, Threshold: 3})
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 2; i++ {
		if w := e.Observe(ctx, "att-1", "tab_switch", now.Add(time.Duration(i)*time.Second)); w != "" {
			t.Fatalf("event #%d warned early: %q", i+1, w)
		}
	}

	w := e.Observe(ctx, "att-1", "fullscreen_exit", now.Add(2*time.Second))
	if !strings.Contains(w, "3 focus violations within") {
		t.Fatalf("threshold warning = %q", w)
	}
	if repo.count() != 1 || repo.calls[0] != domain.AttemptFlagged {
		t.Errorf("status writes = %v", repo.calls)
	}
	if len(signal.signals) != 1 || !signal.signals[0] {
		t.Errorf("flag signals = %v", signal.signals)
	}

	// Над порогом предупреждение повторяется, запись в БД нет
	w = e.Observe(ctx, "att-1", "tab_switch", now.Add(3*time.Second))
	if !strings.Contains(w, "4 focus violations") {
		t.Errorf("post-flag warning = %q", w)
	}
	if repo.count() != 1 {
		t.Errorf("flag persisted twice: %v", repo.calls)
	}
}

func TestEnforcerIgnoresNoisyCategories(t *testing.T) {
	t.Parallel()
	e, repo, _ := newTestEnforcer(EnforcerConfig{Window: time.Minute, Threshold: 2})
	ctx := context.Background()
	now := time.Now()

	for _, kind := range []string{"copy", "paste", "right_click", "devtools_shortcut", "select_all"} {
		for i := 0; i < 5; i++ {
			if w := e.Observe(ctx, "att-1", kind, now); w != "" {
				t.Fatalf("%s produced warning %q", kind, w)
			}
		}
	}
	if repo.count() != 0 {
		t.Errorf("noisy categories flagged the attempt: %v", repo.calls)
	}
}

func TestEnforcerWindowSlides(t *testing.T) {
	t.Parallel()
	e, repo, _ := newTestEnforcer(EnforcerConfig{Window: time.Minute, Threshold: 3})
	ctx := context.Background()
	now := time.Now()

	e.Observe(ctx, "att-1", "tab_switch", now)
	e.Observe(ctx, "att-1", "tab_switch", now.Add(10*time.Second))

	// Третье событие приходит, когда первые два уже выпали из окна
	if w := e.Observe(ctx, "att-1", "tab_switch", now.Add(2*time.Minute)); w != "" {
		t.Errorf("expired events still counted: %q", w)
	}
	if repo.count() != 0 {
		t.Errorf("status writes = %v", repo.calls)
	}
}

func TestEnforcerWindowsAreIndependent(t *testing.T) {
	t.Parallel()
	e, repo, _ := newTestEnforcer(EnforcerConfig{Window: time.Minute, Threshold: 2})
	ctx := context.Background()
	now := time.Now()

	e.Observe(ctx, "att-1", "tab_switch", now)
	if w := e.Observe(ctx, "att-2", "tab_switch", now); w != "" {
		t.Errorf("attempts share a window: %q", w)
	}
	if repo.count() != 0 {
		t.Errorf("status writes = %v", repo.calls)
	}
}

func TestEnforcerForgetResets(t *testing.T) {
	t.Parallel()
	e, repo, _ := newTestEnforcer(EnforcerConfig{Window: time.Minute, Threshold: 2})
	ctx := context.Background()
	now := time.Now()

	e.Observe(ctx, "att-1", "tab_switch", now)
	e.Observe(ctx, "att-1", "tab_switch", now.Add(time.Second))
	if repo.count() != 1 {
		t.Fatalf("first cross writes = %d", repo.count())
	}

	e.Forget("att-1")

	// После Forget счет и флаг начинаются заново
	e.Observe(ctx, "att-1", "tab_switch", now.Add(2*time.Second))
	e.Observe(ctx, "att-1", "tab_switch", now.Add(3*time.Second))
	if repo.count() != 2 {
		t.Errorf("re-cross after Forget writes = %d, want 2", repo.count())
	}
}

func TestEnforcerApplyExternalFlag(t *testing.T) {
	t.Parallel()
	e, repo, _ := newTestEnforcer(EnforcerConfig{Window: time.Minute, Threshold: 2})
	ctx := context.Background()
	now := time.Now()

	// Флаг поставил соседний узел: локально предупреждаем, в БД не пишем
	e.Apply("att-1", true)
	e.Observe(ctx, "att-1", "tab_switch", now)
	w := e.Observe(ctx, "att-1", "tab_switch", now.Add(time.Second))
	if !strings.Contains(w, "focus violations") {
		t.Errorf("warning = %q", w)
	}
	if repo.count() != 0 {
		t.Errorf("externally flagged attempt was re-persisted: %v", repo.calls)
	}
}

func TestEnforcerApplyUnflagClearsWindow(t *testing.T) {
	t.Parallel()
	e, repo, _ := newTestEnforcer(EnforcerConfig{Window: time.Minute, Threshold: 2})
	ctx := context.Background()
	now := time.Now()

	e.Observe(ctx, "att-1", "tab_switch", now)
	e.Observe(ctx, "att-1", "tab_switch", now.Add(time.Second))
	if repo.count() != 1 {
		t.Fatalf("first cross writes = %d", repo.count())
	}

	// Ревьюер снял флаг: окно обнуляется, одиночное событие снова тихое
	e.Apply("att-1", false)
	if w := e.Observe(ctx, "att-1", "tab_switch", now.Add(2*time.Second)); w != "" {
		t.Errorf("warning after unflag = %q", w)
	}
}

func TestEnforcerConfigDefaults(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEnforcer(EnforcerConfig{})
	if e.cfg.Window != 10*time.Minute || e.cfg.Threshold != 5 {
		t.Errorf("defaults = %+v", e.cfg)
	}
}
