package probe

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/xela07ax/examguard/internal/browser"
	"github.com/xela07ax/examguard/internal/telemetry"
)

type fakeProber struct{ err error }

func (f fakeProber) ProbeUpload(context.Context) error { return f.err }

func runProbe(t *testing.T, opts browser.SimOptions, upErr error, cfg Config) Report {
	t.Helper()
	sim := browser.NewSim(opts)
	r := NewRunner(sim, fakeProber{err: upErr}, cfg, zap.NewNop())
	return r.Run(context.Background())
}

func findCheck(t *testing.T, rep Report, name string) CheckResult {
	t.Helper()
	for _, c := range rep.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q missing from report", name)
	return CheckResult{}
}

func TestCleanEnvironmentPasses(t *testing.T) {
	t.Parallel()
	rep := runProbe(t, browser.SimOptions{}, nil, Config{})

	if !rep.OK() {
		t.Fatalf("clean environment failed preflight: %v", rep.Problems())
	}
	if adv := rep.Advisories(); len(adv) != 0 {
		t.Errorf("unexpected advisories: %v", adv)
	}
	want := []string{"renderer", "render_test", "upload_endpoint", "ad_blocker", "devtools", "fullscreen_api"}
	if len(rep.Checks) != len(want) {
		t.Fatalf("got %d checks, want %d", len(rep.Checks), len(want))
	}
	for i, name := range want {
		if rep.Checks[i].Name != name {
			t.Errorf("check[%d] = %s, want %s", i, rep.Checks[i].Name, name)
		}
	}
}

func TestMissingRendererBlocks(t *testing.T) {
	t.Parallel()
	rep := runProbe(t, browser.SimOptions{NoRenderer: true}, nil, Config{})

	if rep.OK() {
		t.Fatal("preflight passed without a renderer")
	}
	if got := len(rep.HardFailures()); got != 2 {
		t.Errorf("hard failures = %d, want 2 (renderer + render_test)", got)
	}

	problems := rep.Problems()
	joined := strings.Join(problems, "; ")
	if !strings.Contains(joined, "renderer: screen renderer is not loaded") {
		t.Errorf("problems = %v", problems)
	}
}

func TestBlankRenderBlocks(t *testing.T) {
	t.Parallel()
	rep := runProbe(t, browser.SimOptions{BlankRender: true}, nil, Config{})

	if findCheck(t, rep, "renderer").Passed != true {
		t.Error("renderer check failed although renderer is loaded")
	}
	rt := findCheck(t, rep, "render_test")
	if rt.Passed {
		t.Fatal("render_test passed on blank pixels")
	}
	if rt.Detail != "test render produced empty pixels" {
		t.Errorf("detail = %q", rt.Detail)
	}
	if rep.OK() {
		t.Error("preflight passed with a blank renderer")
	}
}

func TestUploadValidationErrorCountsAsReachable(t *testing.T) {
	t.Parallel()
	vErr := &telemetry.ValidationError{Status: 400, Body: "snapshot file is required"}
	rep := runProbe(t, browser.SimOptions{}, vErr, Config{})

	up := findCheck(t, rep, "upload_endpoint")
	if !up.Passed {
		t.Fatalf("validation response treated as outage: %q", up.Detail)
	}
	if up.Detail != "endpoint validating (status 400)" {
		t.Errorf("detail = %q", up.Detail)
	}
	if !rep.OK() {
		t.Errorf("preflight blocked: %v", rep.Problems())
	}
}

func TestUploadNetworkErrorBlocks(t *testing.T) {
	t.Parallel()
	rep := runProbe(t, browser.SimOptions{}, errors.New("dial tcp 10.0.0.1:443: connection refused"), Config{})

	up := findCheck(t, rep, "upload_endpoint")
	if up.Passed {
		t.Fatal("unreachable endpoint passed preflight")
	}
	if !strings.HasPrefix(up.Detail, "endpoint unreachable:") {
		t.Errorf("detail = %q", up.Detail)
	}
	if rep.OK() {
		t.Error("preflight passed with unreachable endpoint")
	}
}

func TestAdBlockerIsAdvisoryOnly(t *testing.T) {
	t.Parallel()
	rep := runProbe(t, browser.SimOptions{BaitRemoved: true}, nil, Config{})

	if !rep.OK() {
		t.Fatalf("ad blocker blocked the exam: %v", rep.Problems())
	}
	adv := rep.Advisories()
	if len(adv) != 1 || adv[0].Name != "ad_blocker" {
		t.Fatalf("advisories = %v", adv)
	}
	if adv[0].Detail != "bait element removed or hidden" {
		t.Errorf("detail = %q", adv[0].Detail)
	}

	rep = runProbe(t, browser.SimOptions{ScriptBlocked: true}, nil, Config{})
	if got := findCheck(t, rep, "ad_blocker").Detail; got != "known script blocked" {
		t.Errorf("script-blocked detail = %q", got)
	}
}

func TestOpenDevtoolsBlocks(t *testing.T) {
	t.Parallel()
	sim := browser.NewSim(browser.SimOptions{})
	sim.OpenDevtoolsDock(300)

	r := NewRunner(sim, fakeProber{}, Config{}, zap.NewNop())
	rep := r.Run(context.Background())

	dt := findCheck(t, rep, "devtools")
	if dt.Passed {
		t.Fatal("devtools dock passed preflight")
	}
	if dt.Detail != "window width delta 300px" {
		t.Errorf("detail = %q", dt.Detail)
	}
	if rep.OK() {
		t.Error("preflight passed with devtools open")
	}
}

func TestFullscreenUnsupportedIsAdvisory(t *testing.T) {
	t.Parallel()
	rep := runProbe(t, browser.SimOptions{FullscreenUnsupported: true}, nil, Config{})

	if !rep.OK() {
		t.Fatalf("missing fullscreen API blocked the exam: %v", rep.Problems())
	}
	fs := findCheck(t, rep, "fullscreen_api")
	if fs.Passed {
		t.Fatal("fullscreen_api passed although unsupported")
	}
	if fs.Detail != "fullscreen API not available, enforcement degraded" {
		t.Errorf("detail = %q", fs.Detail)
	}
}
