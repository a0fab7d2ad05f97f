// Package bot is the orchestrator. It owns the inbound pipeline: context
// tracking, rate limiting, response-mode and group gating, slash commands,
// message batching, engine invocation, and response dispatch.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bluemele/SurfaBabe/agent"
	"github.com/bluemele/SurfaBabe/batch"
	"github.com/bluemele/SurfaBabe/conversation"
	"github.com/bluemele/SurfaBabe/dispatch"
	"github.com/bluemele/SurfaBabe/guard"
	"github.com/bluemele/SurfaBabe/internal/fsstore"
	"github.com/bluemele/SurfaBabe/internal/statepaths"
	"github.com/bluemele/SurfaBabe/knowledge"
	"github.com/bluemele/SurfaBabe/memory"
	"github.com/bluemele/SurfaBabe/orders"
	"github.com/bluemele/SurfaBabe/scheduler"
	"github.com/bluemele/SurfaBabe/transport"
)

// Transcriber converts a voice note to text, "" on failure.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) string
}

// CRM is the optional durable interaction log.
type CRM interface {
	LogInteraction(ctx context.Context, phone, kind, summary string, metadata map[string]any) error
}

// Invoker runs one reasoning invocation and returns the reply text.
type Invoker interface {
	Invoke(ctx context.Context, inv agent.Invocation) string
}

type Config struct {
	BotName           string
	AdminIDs          []string
	AdminChatID       string
	ResponseMode      string // "all" or "silent"
	GroupTriggerWords []string
	CooldownMessage   string
	DataDir           string
	LogsDir           string
	ModelAdmin        string
	ModelCustomer     string
	MaxConcurrency    int
}

// Bot wires the pipeline stages together.
type Bot struct {
	cfg Config

	mu   sync.Mutex
	mode string

	conv        *conversation.Store
	orders      *orders.Store
	batcher     *batch.Batcher
	engine      Invoker
	sessions    *agent.SessionStore
	dispatcher  *dispatch.Dispatcher
	limiter     *guard.Limiter
	kb          *knowledge.Base
	mem         *memory.Manager
	sched       *scheduler.Scheduler
	transcriber Transcriber
	crm         CRM
	sender      transport.Sender

	sem chan struct{}
	now func() time.Time
}

// Deps carries the pipeline stages. Transcriber, Scheduler, and CRM may be
// nil; the corresponding features degrade quietly.
type Deps struct {
	Conversations *conversation.Store
	Orders        *orders.Store
	Batcher       *batch.Batcher
	Engine        Invoker
	Sessions      *agent.SessionStore
	Dispatcher    *dispatch.Dispatcher
	Limiter       *guard.Limiter
	Knowledge     *knowledge.Base
	Memory        *memory.Manager
	Scheduler     *scheduler.Scheduler
	Transcriber   Transcriber
	CRM           CRM
	Sender        transport.Sender
}

func New(cfg Config, deps Deps) *Bot {
	if cfg.ResponseMode == "" {
		cfg.ResponseMode = "silent"
	}
	if cfg.CooldownMessage == "" {
		cfg.CooldownMessage = "You're sending messages a bit fast! Give me a minute to catch up."
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	return &Bot{
		cfg:         cfg,
		mode:        cfg.ResponseMode,
		conv:        deps.Conversations,
		orders:      deps.Orders,
		batcher:     deps.Batcher,
		engine:      deps.Engine,
		sessions:    deps.Sessions,
		dispatcher:  deps.Dispatcher,
		limiter:     deps.Limiter,
		kb:          deps.Knowledge,
		mem:         deps.Memory,
		sched:       deps.Scheduler,
		transcriber: deps.Transcriber,
		crm:         deps.CRM,
		sender:      deps.Sender,
		sem:         make(chan struct{}, cfg.MaxConcurrency),
		now:         time.Now,
	}
}

func (b *Bot) isAdmin(senderID string) bool {
	for _, id := range b.cfg.AdminIDs {
		if id == senderID {
			return true
		}
	}
	return false
}

func (b *Bot) responseMode() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

func (b *Bot) setResponseMode(mode string) {
	b.mu.Lock()
	b.mode = mode
	b.mu.Unlock()
}

// HandleUnit runs one inbound message through the pipeline. It blocks for
// the batch window plus the engine invocation, so channels call it from a
// per-message goroutine.
func (b *Bot) HandleUnit(ctx context.Context, u transport.Unit) {
	isAdmin := b.isAdmin(u.SenderID)

	// Reactions are tracked but never answered.
	if u.Kind == conversation.KindReaction {
		b.appendUserContext(u)
		return
	}

	if (u.Kind == conversation.KindVoice || u.Kind == conversation.KindAudio) && u.FilePath != "" && b.transcriber != nil {
		if text := b.transcriber.Transcribe(ctx, u.FilePath); text != "" {
			u.Text = text
			slog.Info("voice_transcribed", "chat_id", u.ChatID, "preview", truncate(text, 100))
		}
	}

	b.appendUserContext(u)
	b.logInteraction(ctx, u.ChatID, u.SenderID, "user", u.Kind, u.Text)

	if !b.limiter.Admit(u.SenderID) {
		slog.Warn("rate_limited", "chat_id", u.ChatID, "sender_id", u.SenderID)
		b.send(ctx, u.ChatID, b.cfg.CooldownMessage)
		return
	}

	// Silent mode listens and learns; only admin slash commands answer.
	if b.responseMode() == "silent" {
		if !(isAdmin && u.Kind == conversation.KindText && strings.HasPrefix(u.Text, "/")) {
			return
		}
	}

	if u.IsGroup && !b.groupTriggered(u) {
		return
	}

	if u.Kind == conversation.KindText && strings.HasPrefix(u.Text, "/") {
		if reply, handled := b.handleCommand(ctx, u, isAdmin); handled {
			if reply != "" {
				b.reply(ctx, u, reply)
			}
			return
		}
	}

	flush := <-b.batcher.Enqueue(u)
	if !flush.Primary {
		return
	}
	if len(flush.Units) > 1 {
		slog.Info("batch_merged", "chat_id", u.ChatID, "size", len(flush.Units))
	}

	b.sem <- struct{}{}
	defer func() { <-b.sem }()

	response := b.invoke(ctx, flush.Units, isAdmin)
	b.reply(ctx, u, response)
}

// groupTriggered mirrors DM-style addressing in groups: a trigger word or
// a reply to the bot's own message.
func (b *Bot) groupTriggered(u transport.Unit) bool {
	textLower := strings.ToLower(u.Text)
	for _, w := range b.cfg.GroupTriggerWords {
		if w != "" && strings.Contains(textLower, strings.ToLower(w)) {
			return true
		}
	}
	return u.QuotedText != "" && strings.Contains(strings.ToLower(u.QuotedText), strings.ToLower(b.cfg.BotName))
}

// invoke builds the prompt from the batch and runs the engine. The most
// recent unit drives the media and message framing; earlier units are
// folded into the current-message text.
func (b *Bot) invoke(ctx context.Context, units []transport.Unit, isAdmin bool) string {
	last := units[len(units)-1]
	text := last.Text
	if len(units) > 1 {
		var parts []string
		for _, u := range units {
			if u.Text != "" {
				parts = append(parts, u.Text)
			}
		}
		text = strings.Join(parts, "\n")
	}
	merged := last
	merged.Text = text

	contactDir := statepaths.ChatDir(b.cfg.DataDir, last.ChatID)
	in := agent.PromptInput{
		BotName:       b.cfg.BotName,
		Now:           b.now(),
		IsGroup:       last.IsGroup,
		SenderID:      last.SenderID,
		IsAdmin:       isAdmin,
		ContactDir:    contactDir,
		Catalog:       b.kb.CatalogText(),
		FAQ:           b.kb.FAQ(),
		Policies:      b.kb.Policies(),
		Order:         b.orders.Get(last.ChatID),
		Memory:        b.mem.Load(last.ChatID, last.SenderName),
		Transcript:    b.conv.Render(last.ChatID, 30),
		Unit:          merged,
		Transcription: transcriptionFor(merged),
		MediaPath:     last.FilePath,
		MediaMIME:     last.MimeType,
		MediaSize:     last.FileSize,
	}

	model := b.cfg.ModelCustomer
	if isAdmin {
		model = b.cfg.ModelAdmin
	}
	return b.engine.Invoke(ctx, agent.Invocation{
		ChatID:       last.ChatID,
		Prompt:       agent.BuildPrompt(in),
		SystemPrompt: agent.SystemPrompt(b.cfg.BotName, contactDir, b.kb.Voice()),
		Model:        model,
		AllowedTools: agent.ToolsFor(isAdmin),
		WorkDir:      contactDir,
	})
}

func transcriptionFor(u transport.Unit) string {
	if u.Kind == conversation.KindVoice || u.Kind == conversation.KindAudio {
		return u.Text
	}
	return ""
}

// reply dispatches the response and records it as a bot context entry.
func (b *Bot) reply(ctx context.Context, u transport.Unit, response string) {
	if response == "" {
		return
	}
	if err := b.dispatcher.Dispatch(ctx, u.ChatID, response); err != nil {
		slog.Error("dispatch_failed", "chat_id", u.ChatID, "error", err.Error())
		return
	}
	b.conv.Append(u.ChatID, conversation.Entry{
		Sender:     "bot",
		SenderName: b.cfg.BotName,
		Role:       conversation.RoleBot,
		Kind:       conversation.KindText,
		Text:       response,
	})
	b.logInteraction(ctx, u.ChatID, u.SenderID, "bot", conversation.KindText, response)
}

// send delivers service text (cooldown notices, admin pings) without
// touching conversation context.
func (b *Bot) send(ctx context.Context, chatID, text string) {
	if err := b.sender.SendText(ctx, chatID, text); err != nil {
		slog.Error("send_failed", "chat_id", chatID, "error", err.Error())
	}
}

func (b *Bot) appendUserContext(u transport.Unit) {
	b.conv.Append(u.ChatID, conversation.Entry{
		MessageID:  u.MessageID,
		Sender:     u.SenderID,
		SenderName: u.SenderName,
		Role:       conversation.RoleUser,
		Kind:       u.Kind,
		Text:       u.Text,
		Caption:    u.Caption,
		FilePath:   u.FilePath,
		FileName:   u.FileName,
		Latitude:   u.Latitude,
		Longitude:  u.Longitude,
		Location:   u.LocationName,
		Contact:    u.ContactName,
		Emoji:      u.Emoji,
		QuotedText: u.QuotedText,
	})
}

type interactionRecord struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Sender    string `json:"sender"`
	Role      string `json:"role"`
	Kind      string `json:"type"`
	Text      string `json:"text,omitempty"`
}

// logInteraction appends to the per-chat JSONL log and, when a CRM store
// is wired, mirrors the interaction there. Neither write gates the
// pipeline.
func (b *Bot) logInteraction(ctx context.Context, chatID, senderID, role, kind, text string) {
	rec := interactionRecord{
		ID:        uuid.NewString(),
		Timestamp: b.now().UTC().Format(time.RFC3339),
		Sender:    senderID,
		Role:      role,
		Kind:      kind,
		Text:      text,
	}
	logPath := filepath.Join(b.cfg.LogsDir, statepaths.SanitizeChatID(chatID)+".jsonl")
	if err := fsstore.AppendJSONLine(logPath, rec); err != nil {
		slog.Warn("interaction_log_failed", "chat_id", chatID, "error", err.Error())
	}

	if b.crm != nil {
		phone := chatID
		if senderID != "" {
			phone = senderID
		}
		if err := b.crm.LogInteraction(ctx, phone, role+"_message", truncate(text, 500), map[string]any{"kind": kind}); err != nil {
			slog.Debug("crm_log_failed", "chat_id", chatID, "error", err.Error())
		}
	}
}

// notifyAdminOrder pings the admin chat once per confirmed order.
func (b *Bot) notifyAdminOrder(ctx context.Context, u transport.Unit, rec orders.Record) {
	if b.cfg.AdminChatID == "" {
		return
	}
	var items []string
	for _, item := range rec.Items {
		items = append(items, fmt.Sprintf("%s x%d", item.Name, item.Quantity))
	}
	notification := strings.Join([]string{
		"New order completed!",
		fmt.Sprintf("Customer: %s (%s)", u.SenderName, u.SenderID),
		"Items: " + strings.Join(items, ", "),
		"Address: " + orEmpty(rec.Address, "Not provided"),
		"Payment: " + orEmpty(rec.PaymentMethod, "Not specified"),
		fmt.Sprintf("Total: $%.2f", rec.Total()),
	}, "\n")
	b.send(ctx, b.cfg.AdminChatID, notification)
}

func orEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// truncate caps s at n bytes without splitting a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
