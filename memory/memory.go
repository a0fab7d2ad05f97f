// Package memory manages the per-chat customer memory file. The file is
// markdown with a YAML frontmatter block; the engine rewrites the body
// through its file tools while the frontmatter carries the fields this
// process reads back.
package memory

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bluemele/SurfaBabe/internal/fsstore"
	"github.com/bluemele/SurfaBabe/internal/statepaths"
)

const frontmatterFence = "---"

// Profile is the structured head of a memory file.
type Profile struct {
	ChatID    string `yaml:"chat_id"`
	Name      string `yaml:"name,omitempty"`
	Phone     string `yaml:"phone,omitempty"`
	FirstSeen string `yaml:"first_seen,omitempty"`
	UpdatedAt string `yaml:"updated_at,omitempty"`
}

// Manager reads and initializes memory files under the data directory.
type Manager struct {
	mu      sync.Mutex
	dataDir string
	now     func() time.Time
}

func NewManager(dataDir string) *Manager {
	return &Manager{dataDir: dataDir, now: time.Now}
}

// Path returns where the chat's memory file lives. The engine receives
// this path and edits the file directly.
func (m *Manager) Path(chatID string) string {
	return filepath.Join(statepaths.ChatDir(m.dataDir, chatID), statepaths.MemoryFilename)
}

// Load returns the memory file's full text, creating a skeleton file on
// first contact so the engine always has something to edit.
func (m *Manager) Load(chatID, senderName string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.Path(chatID)
	text, found, err := fsstore.ReadText(path)
	if err == nil && found && strings.TrimSpace(text) != "" {
		return text
	}

	text = m.skeleton(chatID, senderName)
	if err := fsstore.WriteText(path, text); err != nil {
		slog.Warn("memory_init_failed", "chat_id", chatID, "error", err.Error())
	}
	return text
}

func (m *Manager) skeleton(chatID, senderName string) string {
	now := m.now().UTC().Format(time.RFC3339)
	p := Profile{ChatID: chatID, Name: senderName, FirstSeen: now, UpdatedAt: now}
	head, err := yaml.Marshal(p)
	if err != nil {
		head = []byte(fmt.Sprintf("chat_id: %s\n", chatID))
	}
	var sb strings.Builder
	sb.WriteString(frontmatterFence + "\n")
	sb.Write(head)
	sb.WriteString(frontmatterFence + "\n\n")
	sb.WriteString("## Preferences\n\n(none recorded)\n\n## Notes\n\n(none recorded)\n")
	return sb.String()
}

// ParseProfile decodes the frontmatter of a memory file's text. A file
// without a frontmatter block yields a zero Profile and no error.
func ParseProfile(text string) (Profile, error) {
	var p Profile
	body := strings.TrimLeft(text, "\n")
	if !strings.HasPrefix(body, frontmatterFence+"\n") {
		return p, nil
	}
	body = strings.TrimPrefix(body, frontmatterFence+"\n")
	head, _, found := strings.Cut(body, "\n"+frontmatterFence)
	if !found {
		return p, fmt.Errorf("memory: unterminated frontmatter")
	}
	if err := yaml.Unmarshal([]byte(head), &p); err != nil {
		return p, fmt.Errorf("memory: decode frontmatter: %w", err)
	}
	return p, nil
}
