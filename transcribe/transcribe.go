// Package transcribe converts voice notes to text through the Groq Whisper
// endpoint. Transcription is strictly best-effort; every failure path
// returns empty text so the caller falls back to its no-transcript prompt.
package transcribe

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	defaultEndpoint = "https://api.groq.com/openai/v1/audio/transcriptions"
	whisperModel    = "whisper-large-v3-turbo"
)

// Client calls the transcription API. A zero API key disables it.
type Client struct {
	apiKey   string
	endpoint string
	http     *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

// Transcribe uploads the audio file and returns its transcript, or "" on
// any failure.
func (c *Client) Transcribe(ctx context.Context, path string) string {
	if !c.Enabled() {
		slog.Warn("transcribe_disabled_no_api_key")
		return ""
	}

	audio, err := os.ReadFile(path)
	if err != nil {
		slog.Error("transcribe_read_failed", "path", path, "error", err.Error())
		return ""
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err == nil {
		_, err = part.Write(audio)
	}
	if err == nil {
		err = mw.WriteField("model", whisperModel)
	}
	if err == nil {
		err = mw.WriteField("response_format", "text")
	}
	if err == nil {
		err = mw.Close()
	}
	if err != nil {
		slog.Error("transcribe_form_build_failed", "error", err.Error())
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		slog.Error("transcribe_request_build_failed", "error", err.Error())
		return ""
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("transcribe_request_failed", "error", err.Error())
		return ""
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		slog.Error("transcribe_response_read_failed", "error", err.Error())
		return ""
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("transcribe_api_error", "status", resp.StatusCode, "body", truncate(string(text), 300))
		return ""
	}
	return strings.TrimSpace(string(text))
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
