package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/examguard/internal/browser"
	"github.com/xela07ax/examguard/internal/domain"
)

// recordUploader копит загруженные кадры в памяти вместо сети.
type recordUploader struct {
	mu    sync.Mutex
	fail  error
	shots []uploadedShot
}

type uploadedShot struct {
	kind    domain.SnapshotKind
	trigger string
	size    int
	meta    map[string]interface{}
}

func (r *recordUploader) UploadSnapshot(_ context.Context, kind domain.SnapshotKind, trigger string, jpg []byte, meta map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.shots = append(r.shots, uploadedShot{kind: kind, trigger: trigger, size: len(jpg), meta: meta})
	return nil
}

func (r *recordUploader) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shots)
}

func (r *recordUploader) all() []uploadedShot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uploadedShot(nil), r.shots...)
}

// viewportCounter дает доступ к счетчику съемок симулятора.
type viewportCounter interface {
	ViewportCalls() (int, bool)
}

func TestTriggerEventCooldownPerCategory(t *testing.T) {
	t.Parallel()
	sim := browser.NewSim(browser.SimOptions{})
	up := &recordUploader{}
	s := NewSnapshotter(up, sim.Renderer(), Config{Cooldown: 2 * time.Second, SettleDelay: time.Millisecond}, zap.NewNop())

	t0 := time.Now()
	if !s.TriggerEvent("copy", t0, nil) {
		t.Fatal("first copy snapshot rejected")
	}
	if s.TriggerEvent("copy", t0.Add(time.Second), nil) {
		t.Error("copy snapshot inside cooldown was allowed")
	}
	// Cooldown считается на категорию: paste живет своим лимитером
	if !s.TriggerEvent("paste", t0.Add(time.Second), nil) {
		t.Error("paste snapshot rejected by foreign cooldown")
	}
	if !s.TriggerEvent("copy", t0.Add(2*time.Second), nil) {
		t.Error("copy snapshot after cooldown rejected")
	}

	s.Wait()
	if got := up.count(); got != 3 {
		t.Fatalf("uploaded %d shots, want 3", got)
	}
	for _, shot := range up.all() {
		if shot.kind != domain.SnapshotScreen {
			t.Errorf("kind = %s, want screen", shot.kind)
		}
		if shot.size == 0 {
			t.Error("empty JPEG payload")
		}
	}
}

func TestTriggerEventHidesMediaAndMergesMeta(t *testing.T) {
	t.Parallel()
	sim := browser.NewSim(browser.SimOptions{})
	up := &recordUploader{}
	s := NewSnapshotter(up, sim.Renderer(), Config{SettleDelay: time.Millisecond}, zap.NewNop())

	if !s.TriggerEvent("copy", time.Now(), map[string]interface{}{"count": 3}) {
		t.Fatal("snapshot rejected")
	}
	s.Wait()

	shots := up.all()
	if len(shots) != 1 {
		t.Fatalf("uploaded %d shots, want 1", len(shots))
	}
	meta := shots[0].meta
	if meta["width"] != 1024 || meta["height"] != 768 {
		t.Errorf("frame meta = %v, want 1024x768", meta)
	}
	if meta["count"] != 3 {
		t.Errorf("caller meta lost: %v", meta)
	}

	rc, ok := sim.Renderer().(viewportCounter)
	if !ok {
		t.Fatal("sim renderer does not expose viewport calls")
	}
	calls, hideMedia := rc.ViewportCalls()
	if calls != 1 {
		t.Errorf("viewport calls = %d, want 1", calls)
	}
	if !hideMedia {
		t.Error("viewport captured with media visible")
	}
}

func TestTriggerEventWithoutRenderer(t *testing.T) {
	t.Parallel()
	up := &recordUploader{}
	s := NewSnapshotter(up, nil, Config{SettleDelay: time.Millisecond}, zap.NewNop())

	if s.TriggerEvent("copy", time.Now(), nil) {
		t.Error("snapshot accepted without renderer")
	}
	s.Wait()
	if got := up.count(); got != 0 {
		t.Errorf("uploaded %d shots, want 0", got)
	}
}

func TestWebcamCaptureLifecycle(t *testing.T) {
	t.Parallel()
	sim := browser.NewSim(browser.SimOptions{})
	up := &recordUploader{}
	s := NewSnapshotter(up, sim.Renderer(), Config{SettleDelay: time.Millisecond}, zap.NewNop())

	// До привязки трека кадров нет
	if s.CaptureWebcam("interval") {
		t.Error("webcam capture succeeded without a track")
	}

	track, err := sim.Camera().Acquire(context.Background())
	if err != nil {
		t.Fatalf("camera acquire: %v", err)
	}
	s.SetTrack(track)

	if !s.CaptureWebcam("interval") {
		t.Fatal("webcam capture failed with live track")
	}
	shots := up.all()
	if len(shots) != 1 {
		t.Fatalf("uploaded %d shots, want 1", len(shots))
	}
	if shots[0].kind != domain.SnapshotWebcam || shots[0].trigger != "interval" {
		t.Errorf("shot = %+v", shots[0])
	}
	if shots[0].meta["width"] != 320 || shots[0].meta["height"] != 240 {
		t.Errorf("webcam meta = %v, want 320x240", shots[0].meta)
	}

	// Остановленный трек больше не отдает кадры
	track.Stop()
	if s.CaptureWebcam("interval") {
		t.Error("webcam capture succeeded on a stopped track")
	}
	if got := up.count(); got != 1 {
		t.Errorf("uploaded %d shots after stop, want 1", got)
	}
}

func TestUploadFailureIsSoft(t *testing.T) {
	t.Parallel()
	sim := browser.NewSim(browser.SimOptions{})
	up := &recordUploader{fail: errors.New("collector unreachable")}
	s := NewSnapshotter(up, sim.Renderer(), Config{SettleDelay: time.Millisecond}, zap.NewNop())

	// Неудачный upload не должен ронять обработку события
	if !s.TriggerEvent("tab_switch", time.Now(), nil) {
		t.Fatal("snapshot rejected before upload even started")
	}
	s.Wait()
	if got := up.count(); got != 0 {
		t.Errorf("recorded %d shots despite upload failure, want 0", got)
	}
}
