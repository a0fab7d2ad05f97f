package batch

import (
	"testing"
	"time"

	"github.com/bluemele/SurfaBabe/conversation"
	"github.com/bluemele/SurfaBabe/transport"
)

// manualTimers replaces the real clock so tests fire windows on demand.
type manualTimers struct {
	fns []func()
}

func (m *manualTimers) afterFunc(_ time.Duration, f func()) *time.Timer {
	m.fns = append(m.fns, f)
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

func (m *manualTimers) fireLast() {
	m.fns[len(m.fns)-1]()
}

func unit(chatID, text string) transport.Unit {
	return transport.Unit{ChatID: chatID, Kind: conversation.KindText, Text: text}
}

func TestSingleMessageFlushesAsPrimary(t *testing.T) {
	mt := &manualTimers{}
	b := New(2 * time.Second)
	b.afterFunc = mt.afterFunc

	ch := b.Enqueue(unit("chat1", "hello"))
	mt.fireLast()

	f := <-ch
	if !f.Primary {
		t.Fatal("sole waiter must be primary")
	}
	if len(f.Units) != 1 || f.Units[0].Text != "hello" {
		t.Fatalf("units = %+v", f.Units)
	}
}

func TestBurstResolvesAllWaitersWithOnePrimary(t *testing.T) {
	mt := &manualTimers{}
	b := New(2 * time.Second)
	b.afterFunc = mt.afterFunc

	ch1 := b.Enqueue(unit("chat1", "one"))
	ch2 := b.Enqueue(unit("chat1", "two"))
	ch3 := b.Enqueue(unit("chat1", "three"))
	mt.fireLast()

	primaries := 0
	for _, ch := range []<-chan Flush{ch1, ch2, ch3} {
		f := <-ch
		if len(f.Units) != 3 {
			t.Fatalf("waiter saw %d units, want 3", len(f.Units))
		}
		if f.Units[0].Text != "one" || f.Units[2].Text != "three" {
			t.Fatalf("arrival order lost: %+v", f.Units)
		}
		if f.Primary {
			primaries++
		}
	}
	if primaries != 1 {
		t.Fatalf("primaries = %d, want exactly 1", primaries)
	}
}

func TestStaleTimerDoesNotFlushRestartedWindow(t *testing.T) {
	mt := &manualTimers{}
	b := New(2 * time.Second)
	b.afterFunc = mt.afterFunc

	ch1 := b.Enqueue(unit("chat1", "one"))
	stale := mt.fns[0]
	ch2 := b.Enqueue(unit("chat1", "two"))

	// The first window's callback racing a restart must be a no-op.
	stale()
	select {
	case <-ch1:
		t.Fatal("stale timer flushed the batch")
	default:
	}

	mt.fireLast()
	f1, f2 := <-ch1, <-ch2
	if len(f1.Units) != 2 || len(f2.Units) != 2 {
		t.Fatalf("batch sizes = %d, %d, want 2, 2", len(f1.Units), len(f2.Units))
	}
	if f1.Primary || !f2.Primary {
		t.Fatalf("primary flags = %v, %v, want false, true", f1.Primary, f2.Primary)
	}
}

func TestChatsBatchIndependently(t *testing.T) {
	mt := &manualTimers{}
	b := New(2 * time.Second)
	b.afterFunc = mt.afterFunc

	chA := b.Enqueue(unit("chatA", "a"))
	chB := b.Enqueue(unit("chatB", "b"))

	mt.fns[0]() // chatA's window
	f := <-chA
	if len(f.Units) != 1 || f.Units[0].ChatID != "chatA" {
		t.Fatalf("chatA flush = %+v", f.Units)
	}
	select {
	case <-chB:
		t.Fatal("chatB flushed with chatA's window")
	default:
	}
	mt.fns[1]()
	<-chB
}
