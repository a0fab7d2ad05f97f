package guard

import (
	"testing"
	"time"
)

func newTestLimiter(max int) (*Limiter, *time.Time) {
	l := NewLimiter(max)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAdmitWithinBudget(t *testing.T) {
	l, _ := newTestLimiter(20)
	for i := 1; i <= 20; i++ {
		if !l.Admit("sender") {
			t.Fatalf("attempt %d rejected, want admit", i)
		}
	}
}

func TestTwentyFirstAttemptRejected(t *testing.T) {
	l, _ := newTestLimiter(20)
	for i := 0; i < 20; i++ {
		l.Admit("sender")
	}
	if l.Admit("sender") {
		t.Fatal("21st attempt within the window must be rejected")
	}
}

func TestWindowExpiryReadmits(t *testing.T) {
	l, now := newTestLimiter(20)
	for i := 0; i < 25; i++ {
		l.Admit("sender")
	}
	if l.Admit("sender") {
		t.Fatal("expected rejection before expiry")
	}
	*now = now.Add(61 * time.Second)
	if !l.Admit("sender") {
		t.Fatal("expected admission after the window elapsed")
	}
}

func TestRejectedAttemptStillCounts(t *testing.T) {
	l, now := newTestLimiter(20)
	for i := 0; i < 21; i++ {
		l.Admit("sender")
	}
	// 30s later, the first 21 stamps are still inside the window, and the
	// rejected attempts above widened it. Still over budget.
	*now = now.Add(30 * time.Second)
	if l.Admit("sender") {
		t.Fatal("rejected attempts must keep counting against the sender")
	}
}

func TestSendersIsolated(t *testing.T) {
	l, _ := newTestLimiter(20)
	for i := 0; i < 30; i++ {
		l.Admit("noisy")
	}
	if !l.Admit("quiet") {
		t.Fatal("unrelated sender must not be throttled")
	}
}
