// Package telegram is the Telegram Bot API channel. It long-polls
// getUpdates, downloads attachments into the chat's media directory, and
// normalizes everything into transport units.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bluemele/SurfaBabe/internal/fsstore"
	"github.com/bluemele/SurfaBabe/internal/statepaths"
	"github.com/bluemele/SurfaBabe/transport"
)

const maxQuotedLen = 200

type Config struct {
	Token        string
	BaseURL      string
	PollTimeout  time.Duration
	MaxFileBytes int64
	DataDir      string
}

// Channel connects one bot token to the orchestrator.
type Channel struct {
	api     *api
	cfg     Config
	botUser *user
}

func New(cfg Config) (*Channel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("telegram: missing bot token")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = 20 * 1024 * 1024
	}
	return &Channel{
		api: newAPI(&http.Client{Timeout: cfg.PollTimeout + 15*time.Second}, cfg.BaseURL, cfg.Token),
		cfg: cfg,
	}, nil
}

// Connect verifies the token and learns the bot's own identity, which the
// group trigger logic needs.
func (c *Channel) Connect(ctx context.Context) error {
	me, err := c.api.getMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram: getMe: %w", err)
	}
	c.botUser = me
	slog.Info("telegram_connected", "bot_username", me.Username, "bot_id", me.ID)
	return nil
}

// BotUsername returns the connected bot's username, "" before Connect.
func (c *Channel) BotUsername() string {
	if c.botUser == nil {
		return ""
	}
	return c.botUser.Username
}

// Poll runs the long-poll loop until ctx is done, invoking handle for each
// normalized inbound unit. Transport errors back off and retry; the loop
// only ends with the context.
func (c *Channel) Poll(ctx context.Context, handle func(transport.Unit)) error {
	var offset int64
	for {
		updates, next, err := c.api.getUpdates(ctx, offset, c.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("telegram_poll_failed", "error", err.Error())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}
		offset = next

		for _, u := range updates {
			if u.Message == nil {
				continue
			}
			unit, ok := c.normalize(ctx, u.Message)
			if !ok {
				continue
			}
			handle(unit)
		}
	}
}

func (c *Channel) normalize(ctx context.Context, msg *message) (transport.Unit, bool) {
	if msg.Chat == nil {
		return transport.Unit{}, false
	}
	if msg.From != nil && msg.From.IsBot {
		return transport.Unit{}, false
	}

	unit := transport.Unit{
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		MessageID: strconv.FormatInt(msg.MessageID, 10),
		IsGroup:   msg.Chat.Type == "group" || msg.Chat.Type == "supergroup",
		Text:      msg.Text,
		Caption:   msg.Caption,
	}
	if msg.From != nil {
		unit.SenderID = strconv.FormatInt(msg.From.ID, 10)
		unit.SenderName = displayName(msg.From)
	}
	if msg.ReplyTo != nil {
		quoted := msg.ReplyTo.Text
		if quoted == "" {
			quoted = msg.ReplyTo.Caption
		}
		unit.QuotedText = truncateQuoted(quoted, maxQuotedLen)
	}

	switch {
	case len(msg.Photo) > 0:
		unit.Kind = "image"
		// Telegram sends every thumbnail size; the last entry is the
		// original.
		photo := msg.Photo[len(msg.Photo)-1]
		unit.Text = msg.Caption
		c.attach(ctx, &unit, photo.FileID, "", "image/jpeg", photo.FileSize)
	case msg.Voice != nil:
		unit.Kind = "ptt"
		c.attach(ctx, &unit, msg.Voice.FileID, "", orDefault(msg.Voice.MimeType, "audio/ogg"), msg.Voice.FileSize)
	case msg.Audio != nil:
		unit.Kind = "audio"
		c.attach(ctx, &unit, msg.Audio.FileID, "", orDefault(msg.Audio.MimeType, "audio/mpeg"), msg.Audio.FileSize)
	case msg.Video != nil:
		unit.Kind = "video"
		unit.Text = msg.Caption
		c.attach(ctx, &unit, msg.Video.FileID, msg.Video.FileName, orDefault(msg.Video.MimeType, "video/mp4"), msg.Video.FileSize)
	case msg.Document != nil:
		unit.Kind = "document"
		unit.Text = msg.Caption
		unit.FileName = msg.Document.FileName
		c.attach(ctx, &unit, msg.Document.FileID, msg.Document.FileName, msg.Document.MimeType, msg.Document.FileSize)
	case msg.Sticker != nil:
		unit.Kind = "sticker"
		unit.Text = "[sticker]"
		if msg.Sticker.Emoji != "" {
			unit.Emoji = msg.Sticker.Emoji
		}
	case msg.Location != nil:
		unit.Kind = "location"
		unit.Latitude = msg.Location.Latitude
		unit.Longitude = msg.Location.Longitude
		unit.Text = fmt.Sprintf("Location: %v, %v", msg.Location.Latitude, msg.Location.Longitude)
	case msg.Contact != nil:
		unit.Kind = "contact"
		name := strings.TrimSpace(msg.Contact.FirstName + " " + msg.Contact.LastName)
		unit.ContactName = name
		unit.Text = "Shared contact: " + name
	case msg.Text != "":
		unit.Kind = "text"
	default:
		return transport.Unit{}, false
	}

	return unit, true
}

// attach downloads the file into the chat's media directory. Download
// failures are logged and leave the unit without a file path; the message
// still flows through as text.
func (c *Channel) attach(ctx context.Context, unit *transport.Unit, fileID, fileName, mimeType string, size int64) {
	info, err := c.api.getFile(ctx, fileID)
	if err != nil {
		slog.Warn("telegram_get_file_failed", "chat_id", unit.ChatID, "error", err.Error())
		return
	}

	if fileName == "" {
		fileName = filepath.Base(info.FilePath)
	}
	if fileName == "" || fileName == "." {
		fileName = uuid.NewString()[:8]
	}

	mediaDir := statepaths.MediaDir(c.cfg.DataDir, unit.ChatID)
	if err := fsstore.EnsureDir(mediaDir); err != nil {
		slog.Warn("telegram_media_dir_failed", "chat_id", unit.ChatID, "error", err.Error())
		return
	}
	dst := filepath.Join(mediaDir, fmt.Sprintf("%d_%s", time.Now().UnixMilli(), fileName))

	n, err := c.api.downloadFileTo(ctx, info.FilePath, dst, c.cfg.MaxFileBytes)
	if err != nil {
		slog.Warn("telegram_download_failed", "chat_id", unit.ChatID, "file_id", fileID, "error", err.Error())
		return
	}

	unit.FilePath = dst
	unit.FileName = fileName
	unit.MimeType = mimeType
	unit.FileSize = n
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: bad chat id %q: %w", chatID, err)
	}
	return id, nil
}

// SendText implements transport.Sender.
func (c *Channel) SendText(ctx context.Context, chatID, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	return c.api.sendMessage(ctx, id, text)
}

var mediaMethods = map[transport.MediaKind]struct{ method, field string }{
	transport.MediaImage:    {"sendPhoto", "photo"},
	transport.MediaVideo:    {"sendVideo", "video"},
	transport.MediaAudio:    {"sendAudio", "audio"},
	transport.MediaDocument: {"sendDocument", "document"},
}

// SendMedia implements transport.Sender.
func (c *Channel) SendMedia(ctx context.Context, chatID string, kind transport.MediaKind, path, caption string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	m, ok := mediaMethods[kind]
	if !ok {
		m = mediaMethods[transport.MediaDocument]
	}
	return c.api.sendFile(ctx, m.method, m.field, id, path, caption)
}

// truncateQuoted caps s at n bytes without splitting a multi-byte rune.
func truncateQuoted(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
