package collector

import (
	"bytes"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/xela07ax/examguard/internal/domain"
)

func TestIngestEventHappyPath(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ts.seed("att-1", "tok-1", domain.AttemptStarted)

	sent := time.Now().Add(-2 * time.Second).UTC().Truncate(time.Millisecond)
	rec, resp := ts.postEvent(t, "att-1", "tok-1", domain.Event{
		Type:     string(domain.CategoryTabSwitch),
		Severity: domain.SeverityWarning,
		At:       sent,
		Metadata: map[string]interface{}{"count": 1},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !resp.Success || resp.EventID == "" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Warning != "" {
		t.Errorf("unexpected warning on first event: %q", resp.Warning)
	}

	// Первое событие активирует попытку
	statuses := ts.attempts.statusLog()
	if len(statuses) != 1 || statuses[0] != domain.AttemptInProgress {
		t.Errorf("status transitions = %v, want [in_progress]", statuses)
	}

	events := ts.waitWritten(t, 1)
	ev := events[0]
	if ev.ID != resp.EventID {
		t.Errorf("stored id = %s, response id = %s", ev.ID, resp.EventID)
	}
	if ev.AttemptID != "att-1" || ev.Type != "tab_switch" || ev.Severity != domain.SeverityWarning {
		t.Errorf("stored event = %+v", ev)
	}
	if !ev.ClientAt.Equal(sent) {
		t.Errorf("client timestamp = %v, want %v", ev.ClientAt, sent)
	}
	if ev.ReceivedAt.IsZero() {
		t.Error("received_at not set")
	}
	// Серверное обогащение контекстом запроса
	if ev.UserAgent != "examguard-test/1.0" {
		t.Errorf("user_agent = %q", ev.UserAgent)
	}
	if ev.RemoteAddr == "" {
		t.Error("remote_addr not captured")
	}
}

func TestIngestEventBadJSON(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ts.seed("att-1", "tok-1", domain.AttemptInProgress)

	rec := ts.do(http.MethodPost, "/v1/attempts/att-1/events", "tok-1", "application/json",
		bytes.NewReader([]byte(`{"event_type": `)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := errorField(t, rec); got != "invalid event json" {
		t.Errorf("error = %q", got)
	}
}

func TestIngestEventRequiresType(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ts.seed("att-1", "tok-1", domain.AttemptInProgress)

	rec, _ := ts.postEvent(t, "att-1", "tok-1", domain.Event{Severity: domain.SeverityInfo})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := errorField(t, rec); got != "event_type is required" {
		t.Errorf("error = %q", got)
	}
}

func TestIngestEventDefaultsSeverityAndTimestamp(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ts.seed("att-1", "tok-1", domain.AttemptInProgress)

	before := time.Now()
	rec, _ := ts.postEvent(t, "att-1", "tok-1", domain.Event{Type: "window_blur"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	events := ts.waitWritten(t, 1)
	if events[0].Severity != domain.SeverityInfo {
		t.Errorf("severity = %s, want info default", events[0].Severity)
	}
	if events[0].ClientAt.Before(before) {
		t.Errorf("missing client timestamp must be filled with server clock, got %v", events[0].ClientAt)
	}
}

func TestIngestEventOnClosedAttemptAccepted(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ts.seed("att-1", "tok-1", domain.AttemptCompleted)

	// Очередь агента асинхронная: хвост событий штатно приезжает после сабмита
	rec, resp := ts.postEvent(t, "att-1", "tok-1", domain.Event{
		Type:     domain.EventSessionEnd,
		Severity: domain.SeverityInfo,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (late events are welcome)", rec.Code)
	}
	if !resp.Success {
		t.Errorf("response = %+v", resp)
	}

	// Закрытую попытку события не реанимируют
	if got := ts.attempts.statusLog(); len(got) != 0 {
		t.Errorf("status transitions on closed attempt = %v", got)
	}
	ts.waitWritten(t, 1)
}

func TestIngestFocusViolationsFlagAttempt(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ts.seed("att-1", "tok-1", domain.AttemptStarted)

	now := time.Now()
	var lastWarning string
	for i := 0; i < 5; i++ {
		ev := domain.Event{Type: string(domain.CategoryTabSwitch), Severity: domain.SeverityWarning, At: now.Add(time.Duration(i) * time.Second)}
		rec, resp := ts.postEvent(t, "att-1", "tok-1", ev)
		if rec.Code != http.StatusOK {
			t.Fatalf("event #%d status = %d", i+1, rec.Code)
		}
		if i < 4 && resp.Warning != "" {
			t.Errorf("event #%d warned early: %q", i+1, resp.Warning)
		}
		lastWarning = resp.Warning
	}

	if !strings.Contains(lastWarning, "Suspicious activity detected: 5 focus violations within 10m0s") {
		t.Errorf("threshold warning = %q", lastWarning)
	}

	statuses := ts.attempts.statusLog()
	if len(statuses) != 2 || statuses[0] != domain.AttemptInProgress || statuses[1] != domain.AttemptFlagged {
		t.Fatalf("status transitions = %v, want [in_progress flagged]", statuses)
	}

	// Шестое событие: предупреждение остается, повторной записи флага нет
	_, resp := ts.postEvent(t, "att-1", "tok-1", domain.Event{
		Type: string(domain.CategoryFullscreenExit), Severity: domain.SeverityWarning, At: now.Add(6 * time.Second),
	})
	if !strings.Contains(resp.Warning, "6 focus violations") {
		t.Errorf("post-flag warning = %q", resp.Warning)
	}
	if got := ts.attempts.statusLog(); len(got) != 2 {
		t.Errorf("extra status transitions after flag: %v", got)
	}
}

func TestIngestEventCopyDoesNotFlag(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ts.seed("att-1", "tok-1", domain.AttemptInProgress)

	for i := 0; i < 10; i++ {
		_, resp := ts.postEvent(t, "att-1", "tok-1", domain.Event{
			Type: string(domain.CategoryCopy), Severity: domain.SeverityWarning, At: time.Now(),
		})
		if resp.Warning != "" {
			t.Fatalf("copy event #%d produced focus warning: %q", i+1, resp.Warning)
		}
	}
	if got := ts.attempts.statusLog(); len(got) != 0 {
		t.Errorf("copy events changed status: %v", got)
	}
}
