// Package conversation keeps the bounded per-chat message history that feeds
// the reasoning prompt. History is best-effort context, never a source of
// truth: a missing or corrupt record is treated as an empty conversation.
package conversation

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bluemele/SurfaBabe/internal/fsstore"
	"github.com/bluemele/SurfaBabe/internal/statepaths"
)

const EmptyTranscript = "[No recent messages]"

// Store is the conversation context store. Contexts are loaded lazily on
// first access per chat and cached for the process lifetime; every append is
// persisted synchronously.
type Store struct {
	mu       sync.Mutex
	dataDir  string
	botName  string
	capacity int
	now      func() time.Time
	cache    map[string][]Entry
}

func NewStore(dataDir, botName string, capacity int) *Store {
	if capacity <= 0 {
		capacity = 50
	}
	return &Store{
		dataDir:  dataDir,
		botName:  botName,
		capacity: capacity,
		now:      time.Now,
		cache:    make(map[string][]Entry),
	}
}

func (s *Store) contextPath(chatID string) string {
	return filepath.Join(statepaths.ChatDir(s.dataDir, chatID), statepaths.ContextFilename)
}

// loadLocked populates the cache for chatID from disk. Corrupt or missing
// records become an empty context.
func (s *Store) loadLocked(chatID string) []Entry {
	if entries, ok := s.cache[chatID]; ok {
		return entries
	}
	var entries []Entry
	if _, err := fsstore.ReadJSON(s.contextPath(chatID), &entries); err != nil {
		slog.Debug("context_load_failed", "chat_id", chatID, "error", err.Error())
		entries = nil
	}
	s.cache[chatID] = entries
	return entries
}

// Append stamps the entry with the store clock, pushes it, evicts from the
// front past capacity, and persists. Persistence failures are logged, not
// returned: losing a history line must never fail the pipeline.
func (s *Store) Append(chatID string, entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.loadLocked(chatID)
	entry.Timestamp = s.now().UTC().Format(time.RFC3339)
	entries = append(entries, entry)
	if overflow := len(entries) - s.capacity; overflow > 0 {
		entries = append([]Entry(nil), entries[overflow:]...)
	}
	s.cache[chatID] = entries

	if err := fsstore.WriteJSON(s.contextPath(chatID), entries); err != nil {
		slog.Warn("context_persist_failed", "chat_id", chatID, "error", err.Error())
	}
}

// Recent returns up to limit entries, most recent last.
func (s *Store) Recent(chatID string, limit int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.loadLocked(chatID)
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	out := make([]Entry, limit)
	copy(out, entries[len(entries)-limit:])
	return out
}

// Render produces the transcript block embedded in the reasoning prompt: one
// line per entry, actor-tagged, with bracketed placeholders for non-text
// kinds and a quoted-reply prefix where the entry references an earlier
// message.
func (s *Store) Render(chatID string, limit int) string {
	entries := s.Recent(chatID, limit)
	if len(entries) == 0 {
		return EmptyTranscript
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, s.renderEntry(e))
	}
	return strings.Join(lines, "\n")
}

func (s *Store) renderEntry(e Entry) string {
	who := e.SenderName
	if who == "" {
		who = e.Sender
	}
	if e.Role == RoleBot {
		who = s.botName
	}

	line := fmt.Sprintf("[%s] %s", e.Timestamp, who)
	switch e.Kind {
	case KindText:
		line += ": " + e.Text
	case KindImage:
		line += ": " + captionedPlaceholder("Image", e.Caption)
	case KindVideo:
		line += ": " + captionedPlaceholder("Video", e.Caption)
	case KindAudio, KindVoice:
		line += ": [Voice message]"
	case KindDocument:
		name := e.FileName
		if name == "" {
			name = "Document"
		}
		line += ": [" + name + "]"
	case KindLocation:
		place := e.Location
		if place == "" {
			place = fmt.Sprintf("%v, %v", e.Latitude, e.Longitude)
		}
		line += ": [Location: " + place + "]"
	case KindContact:
		line += ": [Contact: " + e.Contact + "]"
	case KindReaction:
		line += ": [reacted " + e.Emoji + "]"
	default:
		line += ": [" + e.Kind + "]"
	}

	if e.QuotedText != "" {
		line = fmt.Sprintf("  replying to: %q — %s", truncateRunes(e.QuotedText, 80), line)
	}
	return line
}

// truncateRunes caps s at n bytes without splitting a multi-byte rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func captionedPlaceholder(kind, caption string) string {
	if caption == "" {
		return "[" + kind + "]"
	}
	return "[" + kind + ": " + caption + "]"
}
