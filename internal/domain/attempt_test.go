package domain

import (
	"errors"
	"testing"
)

func TestAttemptStatusClosed(t *testing.T) {
	t.Parallel()
	closed := []AttemptStatus{AttemptCompleted, AttemptExpired, AttemptTerminated}
	for _, s := range closed {
		if !s.Closed() {
			t.Errorf("%s.Closed() = false", s)
		}
	}
	open := []AttemptStatus{AttemptStarted, AttemptInProgress, AttemptFlagged}
	for _, s := range open {
		if s.Closed() {
			t.Errorf("%s.Closed() = true", s)
		}
	}
}

func TestAttemptCanTransitionTo(t *testing.T) {
	t.Parallel()
	cases := []struct {
		from, to AttemptStatus
		wantErr  error
	}{
		{AttemptStarted, AttemptInProgress, nil},
		{AttemptStarted, AttemptStarted, ErrInvalidTransition},
		{AttemptInProgress, AttemptFlagged, nil},
		{AttemptInProgress, AttemptCompleted, nil},
		{AttemptInProgress, AttemptStarted, ErrInvalidTransition},
		// Снятие флага ревьюером — единственный разрешенный возврат
		{AttemptFlagged, AttemptInProgress, nil},
		{AttemptFlagged, AttemptTerminated, nil},
		{AttemptFlagged, AttemptStarted, ErrInvalidTransition},
		{AttemptCompleted, AttemptInProgress, ErrAttemptClosed},
		{AttemptTerminated, AttemptCompleted, ErrAttemptClosed},
		{AttemptExpired, AttemptInProgress, ErrAttemptClosed},
	}
	for _, tc := range cases {
		a := &Attempt{Status: tc.from}
		err := a.CanTransitionTo(tc.to)
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("%s -> %s: err = %v, want %v", tc.from, tc.to, err, tc.wantErr)
		}
	}
}

func TestCategoriesStableOrder(t *testing.T) {
	t.Parallel()
	got := Categories()
	want := []Category{
		CategoryTabSwitch,
		CategoryFullscreenExit,
		CategoryCopy,
		CategoryPaste,
		CategorySelectAll,
		CategoryRightClick,
		CategoryDevtoolsShortcut,
	}
	if len(got) != len(want) {
		t.Fatalf("Categories() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Categories()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
