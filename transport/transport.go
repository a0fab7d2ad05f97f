// Package transport defines the channel-neutral message surface. Concrete
// channels (Telegram today) live in subpackages and normalize their wire
// formats into Unit before anything downstream sees them.
package transport

import "context"

// Unit is one normalized inbound message.
type Unit struct {
	ChatID     string
	MessageID  string
	SenderID   string
	SenderName string
	IsGroup    bool

	// Kind uses the conversation package's kind names.
	Kind    string
	Text    string
	Caption string

	// Media, when the channel downloaded an attachment to local disk.
	FilePath string
	FileName string
	MimeType string
	FileSize int64

	// Location payloads.
	Latitude     float64
	Longitude    float64
	LocationName string

	// Contact cards and reactions.
	ContactName string
	Emoji       string

	// QuotedText is the quoted portion of a reply, truncated by the channel.
	QuotedText string
}

// MediaKind selects the outbound upload endpoint.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
)

// Sender is the outbound half of a channel.
type Sender interface {
	SendText(ctx context.Context, chatID, text string) error
	SendMedia(ctx context.Context, chatID string, kind MediaKind, path, caption string) error
}
