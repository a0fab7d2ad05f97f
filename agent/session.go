package agent

import (
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/bluemele/SurfaBabe/internal/fsstore"
	"github.com/bluemele/SurfaBabe/internal/statepaths"
)

// Engine builds report the resumed session on stderr in slightly varying
// shapes; this matches "session: <id>" and "session <id>" alike.
var sessionTokenRe = regexp.MustCompile(`(?i)session[:\s]+([a-f0-9-]+)`)

// ParseSessionToken extracts a session identifier from engine stderr.
// Returns "" when no token is present. The stderr format is not a stable
// contract, so callers treat a miss as "start fresh next time", never as
// an error.
func ParseSessionToken(stderr string) string {
	m := sessionTokenRe.FindStringSubmatch(stderr)
	if m == nil {
		return ""
	}
	return m[1]
}

// SessionStore persists the per-chat engine session id so conversations
// resume across process restarts.
type SessionStore struct {
	mu      sync.Mutex
	dataDir string
}

func NewSessionStore(dataDir string) *SessionStore {
	return &SessionStore{dataDir: dataDir}
}

func (s *SessionStore) path(chatID string) string {
	return filepath.Join(statepaths.ChatDir(s.dataDir, chatID), statepaths.SessionFilename)
}

// Get returns the saved session id for the chat, "" when none exists.
func (s *SessionStore) Get(chatID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, found, err := fsstore.ReadText(s.path(chatID))
	if err != nil || !found {
		return ""
	}
	return strings.TrimSpace(text)
}

// Save records the session id, overwriting any previous one.
func (s *SessionStore) Save(chatID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fsstore.WriteText(s.path(chatID), sessionID+"\n")
}

// Clear forgets the chat's session, forcing the next invocation to start
// a fresh engine conversation.
func (s *SessionStore) Clear(chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fsstore.WriteText(s.path(chatID), "")
}
