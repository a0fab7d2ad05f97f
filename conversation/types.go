package conversation

// Role identifies which side of the conversation produced an entry.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Entry kinds mirror the inbound unit kinds the transport can produce.
const (
	KindText     = "text"
	KindImage    = "image"
	KindVideo    = "video"
	KindAudio    = "audio"
	KindVoice    = "ptt"
	KindDocument = "document"
	KindSticker  = "sticker"
	KindLocation = "location"
	KindContact  = "contact"
	KindReaction = "reaction"
)

// Entry is one immutable line of conversation history. JSON field names are
// the on-disk contract for context.json and must stay stable.
type Entry struct {
	Timestamp  string  `json:"timestamp"`
	MessageID  string  `json:"messageId,omitempty"`
	Sender     string  `json:"sender"`
	SenderName string  `json:"senderName,omitempty"`
	Role       Role    `json:"role"`
	Kind       string  `json:"type"`
	Text       string  `json:"text,omitempty"`
	Caption    string  `json:"caption,omitempty"`
	FilePath   string  `json:"filePath,omitempty"`
	FileName   string  `json:"fileName,omitempty"`
	Latitude   float64 `json:"latitude,omitempty"`
	Longitude  float64 `json:"longitude,omitempty"`
	Location   string  `json:"locationName,omitempty"`
	Contact    string  `json:"contactName,omitempty"`
	Emoji      string  `json:"emoji,omitempty"`
	QuotedText string  `json:"quotedText,omitempty"`
}
