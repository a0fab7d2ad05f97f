// Package scheduler runs cron-backed reminders. Reminders persist in
// schedules.json so a restart picks them up, and one-shot reminders remove
// themselves after firing.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/bluemele/SurfaBabe/internal/fsstore"
	"github.com/bluemele/SurfaBabe/transport"
)

// Reminder is one persisted schedule entry.
type Reminder struct {
	ID        string `json:"id"`
	Cron      string `json:"cron"`
	Text      string `json:"text"`
	ChatID    string `json:"chatJid"`
	Oneshot   bool   `json:"oneshot"`
	CreatedAt string `json:"createdAt"`
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCron reports whether expr is a usable five-field cron expression.
func ValidateCron(expr string) bool {
	_, err := cronParser.Parse(expr)
	return err == nil
}

// Scheduler owns the cron runner and the schedules file.
type Scheduler struct {
	mu          sync.Mutex
	path        string
	sender      transport.Sender
	defaultChat string
	cron        *cron.Cron
	jobs        map[string]cron.EntryID
	now         func() time.Time
}

// New builds a scheduler that delivers reminders through sender.
// defaultChat receives reminders created without an explicit chat.
func New(path string, sender transport.Sender, defaultChat string) *Scheduler {
	return &Scheduler{
		path:        path,
		sender:      sender,
		defaultChat: defaultChat,
		cron:        cron.New(cron.WithParser(cronParser)),
		jobs:        make(map[string]cron.EntryID),
		now:         time.Now,
	}
}

// Start restores persisted reminders and begins running them.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reminders, err := s.loadLocked()
	if err != nil {
		return err
	}
	restored := 0
	for _, r := range reminders {
		if err := s.armLocked(r); err != nil {
			slog.Error("reminder_restore_failed", "reminder_id", r.ID, "cron", r.Cron, "error", err.Error())
			continue
		}
		restored++
	}
	s.cron.Start()
	slog.Info("scheduler_started", "reminders", restored)
	return nil
}

// Stop halts the cron runner and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) loadLocked() ([]Reminder, error) {
	var reminders []Reminder
	if _, err := fsstore.ReadJSON(s.path, &reminders); err != nil {
		return nil, fmt.Errorf("scheduler: load %s: %w", s.path, err)
	}
	return reminders, nil
}

func (s *Scheduler) saveLocked(reminders []Reminder) {
	if reminders == nil {
		reminders = []Reminder{}
	}
	if err := fsstore.WriteJSON(s.path, reminders); err != nil {
		slog.Error("schedules_persist_failed", "error", err.Error())
	}
}

func (s *Scheduler) armLocked(r Reminder) error {
	if existing, ok := s.jobs[r.ID]; ok {
		s.cron.Remove(existing)
	}
	id, err := s.cron.AddFunc(r.Cron, func() { s.fire(r) })
	if err != nil {
		return err
	}
	s.jobs[r.ID] = id
	return nil
}

func (s *Scheduler) fire(r Reminder) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.sender.SendText(ctx, r.ChatID, "Reminder: "+r.Text); err != nil {
		slog.Error("reminder_send_failed", "reminder_id", r.ID, "chat_id", r.ChatID, "error", err.Error())
		return
	}
	slog.Info("reminder_fired", "reminder_id", r.ID, "chat_id", r.ChatID)

	if r.Oneshot {
		if _, err := s.Remove(r.ID); err != nil {
			slog.Error("reminder_cleanup_failed", "reminder_id", r.ID, "error", err.Error())
		}
	}
}

// Add persists and arms a new reminder. An empty chatID targets the
// default chat.
func (s *Scheduler) Add(chatID, cronExpr, text string, oneshot bool) (Reminder, error) {
	if !ValidateCron(cronExpr) {
		return Reminder{}, fmt.Errorf("scheduler: invalid cron expression %q", cronExpr)
	}
	if chatID == "" {
		chatID = s.defaultChat
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := Reminder{
		ID:        uuid.NewString()[:8],
		Cron:      cronExpr,
		Text:      text,
		ChatID:    chatID,
		Oneshot:   oneshot,
		CreatedAt: s.now().UTC().Format(time.RFC3339),
	}
	reminders, err := s.loadLocked()
	if err != nil {
		return Reminder{}, err
	}
	reminders = append(reminders, r)
	s.saveLocked(reminders)
	if err := s.armLocked(r); err != nil {
		return Reminder{}, err
	}
	return r, nil
}

// Remove disarms and forgets a reminder. The bool reports whether it
// existed.
func (s *Scheduler) Remove(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.jobs[id]; ok {
		s.cron.Remove(entry)
		delete(s.jobs, id)
	}

	reminders, err := s.loadLocked()
	if err != nil {
		return false, err
	}
	kept := reminders[:0]
	removed := false
	for _, r := range reminders {
		if r.ID == id {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	if removed {
		s.saveLocked(kept)
	}
	return removed, nil
}

// List returns reminders, filtered to one chat when chatID is non-empty.
func (s *Scheduler) List(chatID string) ([]Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reminders, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	if chatID == "" {
		return reminders, nil
	}
	var out []Reminder
	for _, r := range reminders {
		if r.ChatID == chatID {
			out = append(out, r)
		}
	}
	return out, nil
}
