// Package dispatch turns raw engine output into outbound sends. The engine
// signals attachments by mentioning absolute file paths in its reply; the
// dispatcher lifts those out, uploads the ones that exist, and sends the
// remaining text in paced, size-capped chunks.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bluemele/SurfaBabe/transport"
)

const (
	defaultMaxChunk   = 3900
	defaultChunkDelay = 500 * time.Millisecond
)

var mediaExtKinds = map[string]transport.MediaKind{
	".png": transport.MediaImage, ".jpg": transport.MediaImage, ".jpeg": transport.MediaImage,
	".gif": transport.MediaImage, ".webp": transport.MediaImage,
	".mp4": transport.MediaVideo,
	".mp3": transport.MediaAudio, ".ogg": transport.MediaAudio,
	".pdf": transport.MediaDocument,
}

// Dispatcher sends engine replies through a channel sender.
type Dispatcher struct {
	sender     transport.Sender
	maxChunk   int
	chunkDelay time.Duration
	pathRe     *regexp.Regexp
	sleep      func(time.Duration)
}

// New builds a dispatcher. roots are the directory prefixes the engine is
// allowed to reference as attachments; paths outside them are left in the
// text untouched.
func New(sender transport.Sender, maxChunk int, chunkDelay time.Duration, roots []string) *Dispatcher {
	if maxChunk <= 0 {
		maxChunk = defaultMaxChunk
	}
	if chunkDelay < 0 {
		chunkDelay = defaultChunkDelay
	}
	if len(roots) == 0 {
		roots = []string{"/app", "/tmp"}
	}
	return &Dispatcher{
		sender:     sender,
		maxChunk:   maxChunk,
		chunkDelay: chunkDelay,
		pathRe:     buildPathRegexp(roots),
		sleep:      time.Sleep,
	}
}

func buildPathRegexp(roots []string) *regexp.Regexp {
	alts := make([]string, 0, len(roots))
	for _, r := range roots {
		// A relative root would otherwise be quoted as "/<root>" and never
		// match the absolute paths the pipeline stores and emits.
		if abs, err := filepath.Abs(r); err == nil {
			r = abs
		}
		r = strings.TrimSuffix(strings.TrimPrefix(r, "/"), "/")
		if r != "" {
			alts = append(alts, regexp.QuoteMeta(r))
		}
	}
	pattern := `(?i)(?:^|\s)(/(?:` + strings.Join(alts, "|") + `)[^\s"'` + "`" + `,)}\]]+\.(?:png|jpg|jpeg|gif|webp|mp4|mp3|ogg|pdf))\b`
	return regexp.MustCompile(pattern)
}

// KindForPath maps a file extension to its upload kind.
func KindForPath(path string) transport.MediaKind {
	if kind, ok := mediaExtKinds[strings.ToLower(filepath.Ext(path))]; ok {
		return kind
	}
	return transport.MediaDocument
}

// ExtractMediaPaths pulls attachment paths out of the text and returns the
// cleaned text alongside them.
func (d *Dispatcher) ExtractMediaPaths(text string) (clean string, paths []string) {
	clean = d.pathRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := d.pathRe.FindStringSubmatch(m)
		paths = append(paths, sub[1])
		return ""
	})
	return strings.TrimSpace(clean), paths
}

// SplitText chunks text at the cap, preferring paragraph breaks, then
// sentence ends, then line breaks, as long as the boundary falls in the
// back half of the chunk.
func SplitText(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var chunks []string
	remaining := text
	for len(remaining) > maxLen {
		splitAt := maxLen
		if para := strings.LastIndex(remaining[:maxLen], "\n\n"); para > maxLen/2 {
			splitAt = para
		} else if sent := strings.LastIndex(remaining[:maxLen], ". "); sent > maxLen/2 {
			splitAt = sent + 1
		} else if line := strings.LastIndex(remaining[:maxLen], "\n"); line > maxLen/2 {
			splitAt = line
		}
		chunks = append(chunks, strings.TrimSpace(remaining[:splitAt]))
		remaining = strings.TrimSpace(remaining[splitAt:])
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

// Dispatch sends one engine reply to the chat. Missing or unsendable
// attachments are logged and skipped; the text is always attempted. Text
// longer than the cap goes out as numbered parts with a pause between
// them.
func (d *Dispatcher) Dispatch(ctx context.Context, chatID, text string) error {
	clean, paths := d.ExtractMediaPaths(text)

	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			slog.Warn("dispatch_media_missing", "chat_id", chatID, "path", p)
			continue
		}
		kind := KindForPath(p)
		if err := d.sender.SendMedia(ctx, chatID, kind, p, ""); err != nil {
			slog.Error("dispatch_media_failed", "chat_id", chatID, "path", p, "error", err.Error())
			continue
		}
		slog.Info("dispatch_media_sent", "chat_id", chatID, "file", filepath.Base(p), "kind", string(kind))
	}

	if clean == "" {
		return nil
	}

	chunks := SplitText(clean, d.maxChunk)
	for i, chunk := range chunks {
		if len(chunks) > 1 {
			chunk = fmt.Sprintf("(%d/%d) %s", i+1, len(chunks), chunk)
		}
		if err := d.sender.SendText(ctx, chatID, chunk); err != nil {
			return fmt.Errorf("dispatch: send chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if i < len(chunks)-1 {
			d.sleep(d.chunkDelay)
		}
	}
	return nil
}
