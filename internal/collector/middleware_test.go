package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xela07ax/examguard/internal/domain"
)

func eventBody(t *testing.T, ev domain.Event) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return bytes.NewReader(b)
}

func TestAttemptAuthMissingToken(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ts.seed("att-1", "tok-1", domain.AttemptInProgress)

	rec := ts.do(http.MethodPost, "/v1/attempts/att-1/events", "", "application/json",
		eventBody(t, domain.Event{Type: "tab_switch"}))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := errorField(t, rec); got != "attempt token is required" {
		t.Errorf("error = %q", got)
	}
}

func TestAttemptAuthWrongToken(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ts.seed("att-1", "tok-1", domain.AttemptInProgress)

	rec := ts.do(http.MethodPost, "/v1/attempts/att-1/events", "tok-wrong", "application/json",
		eventBody(t, domain.Event{Type: "tab_switch"}))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := errorField(t, rec); got != "invalid attempt token" {
		t.Errorf("error = %q", got)
	}
}

func TestAttemptAuthUnknownAttempt(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/v1/attempts/ghost/events", "tok-1", "application/json",
		eventBody(t, domain.Event{Type: "tab_switch"}))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := errorField(t, rec); got != "attempt not found" {
		t.Errorf("error = %q", got)
	}
}

func TestAttemptAuthQueryTokenFallback(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ts.seed("att-1", "tok-1", domain.AttemptInProgress)

	// GET-фолбэк сабмита несет токен в query, заголовков у навигации нет
	rec := ts.do(http.MethodPost, "/v1/attempts/att-1/events?token=tok-1", "", "application/json",
		eventBody(t, domain.Event{Type: "tab_switch"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestTracingMiddlewareEchoesTraceID(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Trace-ID"); got != "trace-123" {
		t.Errorf("echoed trace id = %q, want trace-123", got)
	}
}

func TestTracingMiddlewareGeneratesTraceID(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/healthz", "", "", nil)
	got := rec.Header().Get("X-Trace-ID")
	if got == "" {
		t.Fatal("no trace id generated")
	}
	if strings.Count(got, "-") != 4 {
		t.Errorf("trace id %q does not look like a uuid", got)
	}
}

func TestTraceIDFromContextFallback(t *testing.T) {
	t.Parallel()
	if got := TraceIDFromContext(context.Background()); got != "00000000-0000-0000-0000-000000000000" {
		t.Errorf("fallback trace id = %q", got)
	}
}

func TestKillSwitchCutsBeforeAuth(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ts.seed("att-1", "tok-1", domain.AttemptInProgress)
	ts.blocklist.MarkTerminated("att-1")

	rec := ts.do(http.MethodPost, "/v1/attempts/att-1/events", "tok-1", "application/json",
		eventBody(t, domain.Event{Type: "tab_switch"}))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "attempt_terminated") {
		t.Errorf("body = %s", body)
	}
	// Kill-switch режет запрос до похода в базу за попыткой
	if n := ts.attempts.lookupCount(); n != 0 {
		t.Errorf("attempt lookups = %d, want 0", n)
	}
}

func TestKillSwitchIgnoresOtherAttempts(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ts.seed("att-1", "tok-1", domain.AttemptInProgress)
	ts.blocklist.MarkTerminated("att-other")

	rec, resp := ts.postEvent(t, "att-1", "tok-1", domain.Event{Type: "tab_switch"})
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("status = %d, resp = %+v", rec.Code, resp)
	}
}
