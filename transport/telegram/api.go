package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type api struct {
	http    *http.Client
	baseURL string
	token   string
}

func newAPI(httpClient *http.Client, baseURL, token string) *api {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &api{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message,omitempty"`
}

type message struct {
	MessageID int64    `json:"message_id"`
	Chat      *chat    `json:"chat,omitempty"`
	From      *user    `json:"from,omitempty"`
	ReplyTo   *message `json:"reply_to_message,omitempty"`
	Text      string   `json:"text,omitempty"`
	Caption   string   `json:"caption,omitempty"`

	Photo    []photoSize `json:"photo,omitempty"`
	Document *document   `json:"document,omitempty"`
	Voice    *audioFile  `json:"voice,omitempty"`
	Audio    *audioFile  `json:"audio,omitempty"`
	Video    *document   `json:"video,omitempty"`
	Sticker  *document   `json:"sticker,omitempty"`
	Location *location   `json:"location,omitempty"`
	Contact  *contact    `json:"contact,omitempty"`
}

type chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type,omitempty"` // private|group|supergroup|channel
	Title string `json:"title,omitempty"`
}

type user struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

func displayName(u *user) string {
	if u == nil {
		return ""
	}
	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)
	username := strings.TrimSpace(u.Username)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	case username != "":
		return "@" + username
	default:
		return ""
	}
}

type photoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

type document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
	Emoji    string `json:"emoji,omitempty"`
}

type audioFile struct {
	FileID   string `json:"file_id"`
	MimeType string `json:"mime_type,omitempty"`
	Duration int    `json:"duration,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

type location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type contact struct {
	PhoneNumber string `json:"phone_number,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
}

type getUpdatesResponse struct {
	OK     bool     `json:"ok"`
	Result []update `json:"result"`
}

type getMeResponse struct {
	OK     bool `json:"ok"`
	Result user `json:"result"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type fileInfo struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size,omitempty"`
	FilePath string `json:"file_path,omitempty"`
}

type getFileResponse struct {
	OK     bool     `json:"ok"`
	Result fileInfo `json:"result"`
}

func (a *api) getMe(ctx context.Context) (*user, error) {
	endpoint := fmt.Sprintf("%s/bot%s/getMe", a.baseURL, a.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("telegram http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out getMeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("telegram getMe: ok=false")
	}
	return &out.Result, nil
}

func (a *api) getUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]update, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	endpoint := fmt.Sprintf("%s/bot%s/getUpdates?timeout=%d", a.baseURL, a.token, secs)
	if offset > 0 {
		endpoint += fmt.Sprintf("&offset=%d", offset)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, offset, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, offset, err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, offset, fmt.Errorf("telegram http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out getUpdatesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, offset, err
	}
	if !out.OK {
		return nil, offset, fmt.Errorf("telegram getUpdates: ok=false")
	}

	next := offset
	for _, u := range out.Result {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return out.Result, next, nil
}

func (a *api) getFile(ctx context.Context, fileID string) (*fileInfo, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return nil, fmt.Errorf("missing file_id")
	}
	endpoint := fmt.Sprintf("%s/bot%s/getFile?file_id=%s", a.baseURL, a.token, url.QueryEscape(fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("telegram http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out getFileResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("telegram getFile: ok=false")
	}
	if strings.TrimSpace(out.Result.FilePath) == "" {
		return nil, fmt.Errorf("telegram getFile: missing file_path")
	}
	return &out.Result, nil
}

func (a *api) downloadFileTo(ctx context.Context, filePath, dstPath string, maxBytes int64) (int64, error) {
	if filePath == "" || dstPath == "" {
		return 0, fmt.Errorf("missing file_path or dst_path")
	}
	if maxBytes <= 0 {
		maxBytes = 20 * 1024 * 1024
	}

	endpoint := fmt.Sprintf("%s/file/bot%s/%s", a.baseURL, a.token, strings.TrimLeft(filePath, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("telegram download http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	f, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return n, err
	}
	if n > maxBytes {
		return n, fmt.Errorf("telegram file too large (>%d bytes)", maxBytes)
	}
	return n, f.Close()
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

// sendMessage tries richer formatting first and falls back to plain text;
// Telegram rejects the whole message when its Markdown is malformed.
func (a *api) sendMessage(ctx context.Context, chatID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "(empty)"
	}
	text = escapeMarkdownUnderscores(text)

	if err := a.sendMessageWithParseMode(ctx, chatID, text, "MarkdownV2"); err == nil {
		return nil
	}
	if err := a.sendMessageWithParseMode(ctx, chatID, text, "Markdown"); err == nil {
		return nil
	}
	return a.sendMessageWithParseMode(ctx, chatID, text, "")
}

// escapeMarkdownUnderscores escapes underscores outside code spans so
// identifiers like order_number do not render as italics.
func escapeMarkdownUnderscores(text string) string {
	if !strings.Contains(text, "_") {
		return text
	}

	var b strings.Builder
	b.Grow(len(text) + 8)

	inCodeBlock := false
	inInlineCode := false

	for i := 0; i < len(text); i++ {
		if !inInlineCode && strings.HasPrefix(text[i:], "```") {
			inCodeBlock = !inCodeBlock
			b.WriteString("```")
			i += 2
			continue
		}

		ch := text[i]
		if !inCodeBlock && ch == '`' {
			inInlineCode = !inInlineCode
			b.WriteByte(ch)
			continue
		}

		if !inCodeBlock && !inInlineCode && ch == '_' {
			if i > 0 && text[i-1] == '\\' {
				b.WriteByte('_')
				continue
			}
			b.WriteByte('\\')
			b.WriteByte('_')
			continue
		}

		b.WriteByte(ch)
	}
	return b.String()
}

func (a *api) sendMessageWithParseMode(ctx context.Context, chatID int64, text, parseMode string) error {
	reqBody := sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             parseMode,
		DisableWebPagePreview: true,
	}
	b, _ := json.Marshal(reqBody)
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", a.baseURL, a.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var ok okResponse
	_ = json.Unmarshal(raw, &ok)
	if !ok.OK {
		return fmt.Errorf("telegram sendMessage: ok=false")
	}
	return nil
}

// sendFile uploads a local file through the given method ("sendPhoto",
// "sendDocument", ...) with the matching form field name.
func (a *api) sendFile(ctx context.Context, method, field string, chatID int64, filePath, caption string) error {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return fmt.Errorf("missing file path")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("path is a directory: %s", filePath)
	}

	filename := filepath.Base(filePath)
	caption = strings.TrimSpace(caption)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer pw.Close()
		defer mw.Close()

		_ = mw.WriteField("chat_id", strconv.FormatInt(chatID, 10))
		if caption != "" {
			_ = mw.WriteField("caption", caption)
		}

		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
	}()

	endpoint := fmt.Sprintf("%s/bot%s/%s", a.baseURL, a.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var ok okResponse
	_ = json.Unmarshal(raw, &ok)
	if !ok.OK {
		return fmt.Errorf("telegram %s: ok=false", method)
	}
	return nil
}
