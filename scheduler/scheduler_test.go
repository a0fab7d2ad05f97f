package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bluemele/SurfaBabe/transport"
)

type captureSender struct {
	mu    sync.Mutex
	texts []string
	chats []string
}

func (c *captureSender) SendText(_ context.Context, chatID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	c.chats = append(c.chats, chatID)
	return nil
}

func (c *captureSender) SendMedia(context.Context, string, transport.MediaKind, string, string) error {
	return nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *captureSender) {
	t.Helper()
	sender := &captureSender{}
	path := filepath.Join(t.TempDir(), "schedules.json")
	return New(path, sender, "admin@s.whatsapp.net"), sender
}

func TestValidateCron(t *testing.T) {
	if !ValidateCron("0 9 * * 1") {
		t.Fatal("valid expression rejected")
	}
	if ValidateCron("not a cron") || ValidateCron("* * * * * *") {
		t.Fatal("invalid expression accepted")
	}
}

func TestAddPersistsAndListFilters(t *testing.T) {
	s, _ := newTestScheduler(t)

	r1, err := s.Add("chat1", "0 9 * * *", "water the plants", false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add("", "30 8 * * 1", "weekly stock check", true); err != nil {
		t.Fatal(err)
	}

	all, err := s.List("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("reminders = %d, want 2", len(all))
	}
	if all[1].ChatID != "admin@s.whatsapp.net" {
		t.Fatalf("default chat not applied: %q", all[1].ChatID)
	}

	one, err := s.List("chat1")
	if err != nil {
		t.Fatal(err)
	}
	if len(one) != 1 || one[0].ID != r1.ID {
		t.Fatalf("filtered list = %+v", one)
	}

	// Fresh scheduler on the same file sees the persisted reminders.
	s2, _ := newTestScheduler(t)
	s2.path = s.path
	restored, err := s2.List("")
	if err != nil {
		t.Fatal(err)
	}
	if len(restored) != 2 {
		t.Fatalf("restored = %d, want 2", len(restored))
	}
}

func TestAddRejectsInvalidCron(t *testing.T) {
	s, _ := newTestScheduler(t)
	if _, err := s.Add("chat1", "bogus", "x", false); err == nil {
		t.Fatal("invalid cron accepted")
	}
	if all, _ := s.List(""); len(all) != 0 {
		t.Fatal("invalid reminder persisted")
	}
}

func TestRemove(t *testing.T) {
	s, _ := newTestScheduler(t)
	r, err := s.Add("chat1", "0 9 * * *", "x", false)
	if err != nil {
		t.Fatal(err)
	}

	removed, err := s.Remove(r.ID)
	if err != nil || !removed {
		t.Fatalf("remove = %v, %v", removed, err)
	}
	removed, err = s.Remove(r.ID)
	if err != nil || removed {
		t.Fatalf("second remove = %v, %v", removed, err)
	}
	if all, _ := s.List(""); len(all) != 0 {
		t.Fatal("reminder still listed after remove")
	}
}

func TestOneshotRemovesItselfAfterFiring(t *testing.T) {
	s, sender := newTestScheduler(t)
	r, err := s.Add("chat1", "0 9 * * *", "one time thing", true)
	if err != nil {
		t.Fatal(err)
	}

	// Fire directly instead of waiting on the cron clock.
	s.fire(r)

	sender.mu.Lock()
	if len(sender.texts) != 1 || sender.texts[0] != "Reminder: one time thing" {
		t.Fatalf("sends = %v", sender.texts)
	}
	sender.mu.Unlock()

	if all, _ := s.List(""); len(all) != 0 {
		t.Fatal("oneshot reminder survived its firing")
	}
}
