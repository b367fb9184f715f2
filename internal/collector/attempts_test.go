package collector

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/xela07ax/examguard/internal/domain"
)

func TestCreateAttempt(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/v1/attempts", "", "application/json",
		bytes.NewReader([]byte(`{"candidate":"alice","exam":"go-101"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp createAttemptResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AttemptID == "" || resp.Token == "" {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Status != "started" {
		t.Errorf("status = %q, want started", resp.Status)
	}

	ts.attempts.mu.Lock()
	stored := ts.attempts.store[resp.AttemptID]
	ts.attempts.mu.Unlock()
	if stored == nil {
		t.Fatal("attempt not persisted")
	}
	if stored.Candidate != "alice" || stored.Exam != "go-101" {
		t.Errorf("stored attempt = %+v", stored)
	}
	if stored.Token != resp.Token || stored.Status != domain.AttemptStarted {
		t.Errorf("stored token/status = %s/%s", stored.Token, stored.Status)
	}
}

func TestCreateAttemptBadJSON(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/v1/attempts", "", "application/json",
		bytes.NewReader([]byte(`{"candidate`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := errorField(t, rec); got != "invalid json body" {
		t.Errorf("error = %q", got)
	}
}

func TestCreateAttemptRequiresCandidateAndExam(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	for _, body := range []string{`{"candidate":"alice"}`, `{"exam":"go-101"}`, `{}`} {
		rec := ts.do(http.MethodPost, "/v1/attempts", "", "application/json", bytes.NewReader([]byte(body)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d, want 400", body, rec.Code)
		}
		if got := errorField(t, rec); got != "candidate and exam are required" {
			t.Errorf("body %s: error = %q", body, got)
		}
	}
}
