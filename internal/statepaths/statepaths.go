// Package statepaths resolves the on-disk layout for per-chat state. Every
// chat identity maps to one directory under data_dir; the mapping is the only
// place chat IDs are turned into filesystem names.
package statepaths

import (
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	ContextFilename   = "context.json"
	OrderFilename     = "order.json"
	MemoryFilename    = "memory.md"
	SessionFilename   = "session_id"
	SchedulesFilename = "schedules.json"
)

/// DataDir is always absolute: stored media paths, the engine's --add-dir
// grant, and the dispatcher's attachment roots all derive from it, and the
// engine runs with a different working directory than this process.
func DataDir() string {
	dir := strings.TrimSpace(viper.GetString("data_dir"))
	if dir == "" {
		dir = "./data"
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}

func LogsDir() string {
	dir := strings.TrimSpace(viper.GetString("logs_dir"))
	if dir == "" {
		dir = "./logs"
	}
	return filepath.Clean(dir)
}

func KnowledgeDir() string {
	dir := strings.TrimSpace(viper.GetString("knowledge_dir"))
	if dir == "" {
		dir = "./knowledge"
	}
	return filepath.Clean(dir)
}

// SanitizeChatID collapses anything outside [a-zA-Z0-9] to underscores so a
// chat identity is always a safe single path segment.
func SanitizeChatID(chatID string) string {
	var b strings.Builder
	b.Grow(len(chatID))
	for _, r := range chatID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func ChatDir(dataDir, chatID string) string {
	return filepath.Join(dataDir, SanitizeChatID(chatID))
}

func MediaDir(dataDir, chatID string) string {
	return filepath.Join(ChatDir(dataDir, chatID), "media")
}

func CompletedOrdersDir(dataDir string) string {
	return filepath.Join(dataDir, "orders")
}

func SchedulesPath(dataDir string) string {
	return filepath.Join(dataDir, SchedulesFilename)
}
