package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bluemele/SurfaBabe/transport"
)

type recordedSend struct {
	kind string
	text string
	path string
}

type stubSender struct {
	sends   []recordedSend
	textErr error
}

func (s *stubSender) SendText(_ context.Context, _ string, text string) error {
	s.sends = append(s.sends, recordedSend{kind: "text", text: text})
	return s.textErr
}

func (s *stubSender) SendMedia(_ context.Context, _ string, kind transport.MediaKind, path, _ string) error {
	s.sends = append(s.sends, recordedSend{kind: string(kind), path: path})
	return nil
}

func newTestDispatcher(sender transport.Sender, roots []string) *Dispatcher {
	d := New(sender, 3900, 500*time.Millisecond, roots)
	d.sleep = func(time.Duration) {}
	return d
}

func TestSplitTextShortPassthrough(t *testing.T) {
	got := SplitText("hello", 3900)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %v", got)
	}
}

func TestSplitTextPrefersParagraphBoundary(t *testing.T) {
	text := strings.Repeat("a", 70) + "\n\n" + strings.Repeat("b", 60)
	got := SplitText(text, 100)
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2", len(got))
	}
	if got[0] != strings.Repeat("a", 70) || got[1] != strings.Repeat("b", 60) {
		t.Fatalf("bad boundary: %q | %q", got[0], got[1])
	}
}

func TestSplitTextFallsBackToSentenceThenLine(t *testing.T) {
	text := strings.Repeat("a", 70) + ". " + strings.Repeat("b", 60)
	got := SplitText(text, 100)
	if got[0] != strings.Repeat("a", 70)+"." {
		t.Fatalf("sentence boundary missed: %q", got[0])
	}

	text = strings.Repeat("a", 70) + "\n" + strings.Repeat("b", 60)
	got = SplitText(text, 100)
	if got[0] != strings.Repeat("a", 70) {
		t.Fatalf("line boundary missed: %q", got[0])
	}
}

func TestSplitTextHardSplitWhenBoundaryTooEarly(t *testing.T) {
	// The only break sits in the front half, so the split is at the cap.
	text := "ab\n\n" + strings.Repeat("c", 150)
	got := SplitText(text, 100)
	if len(got[0]) != 100 {
		t.Fatalf("first chunk len = %d, want 100", len(got[0]))
	}
}

func TestExtractMediaPaths(t *testing.T) {
	d := newTestDispatcher(&stubSender{}, []string{"/app", "/tmp"})

	clean, paths := d.ExtractMediaPaths("Here it is /tmp/media/photo.jpg and also /app/data/doc.pdf thanks")
	if len(paths) != 2 || paths[0] != "/tmp/media/photo.jpg" || paths[1] != "/app/data/doc.pdf" {
		t.Fatalf("paths = %v", paths)
	}
	if strings.Contains(clean, "/tmp/") || strings.Contains(clean, "/app/") {
		t.Fatalf("paths left in text: %q", clean)
	}

	// Paths outside the allowed roots stay in the text.
	clean, paths = d.ExtractMediaPaths("see /etc/passwd.png here")
	if len(paths) != 0 || !strings.Contains(clean, "/etc/passwd.png") {
		t.Fatalf("foreign path handling: %q %v", clean, paths)
	}
}

func TestRelativeRootResolvedBeforeMatching(t *testing.T) {
	t.Chdir(t.TempDir())

	mediaDir := filepath.Join("data", "chat1", "media")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		t.Fatal(err)
	}
	abs, err := filepath.Abs(filepath.Join(mediaDir, "photo.png"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	sender := &stubSender{}
	d := newTestDispatcher(sender, []string{"data"})

	if err := d.Dispatch(context.Background(), "chat1", "Here you go "+abs+" enjoy!"); err != nil {
		t.Fatal(err)
	}
	if len(sender.sends) != 2 {
		t.Fatalf("sends = %+v, want media then text", sender.sends)
	}
	if sender.sends[0].kind != string(transport.MediaImage) || sender.sends[0].path != abs {
		t.Fatalf("media send = %+v", sender.sends[0])
	}
	if got := sender.sends[1].text; got != "Here you go enjoy!" {
		t.Fatalf("text = %q, path leaked into user-visible reply", got)
	}
}

func TestKindForPath(t *testing.T) {
	cases := map[string]transport.MediaKind{
		"/tmp/a.JPG": transport.MediaImage,
		"/tmp/a.mp4": transport.MediaVideo,
		"/tmp/a.ogg": transport.MediaAudio,
		"/tmp/a.pdf": transport.MediaDocument,
		"/tmp/a.bin": transport.MediaDocument,
	}
	for path, want := range cases {
		if got := KindForPath(path); got != want {
			t.Fatalf("KindForPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestDispatchSendsExistingMediaAndSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(real, []byte("png"), 0o600); err != nil {
		t.Fatal(err)
	}

	sender := &stubSender{}
	d := newTestDispatcher(sender, []string{dir})

	text := fmt.Sprintf("Sending now %s and %s done", real, filepath.Join(dir, "ghost.png"))
	if err := d.Dispatch(context.Background(), "chat1", text); err != nil {
		t.Fatal(err)
	}

	if len(sender.sends) != 2 {
		t.Fatalf("sends = %d, want media + text", len(sender.sends))
	}
	if sender.sends[0].kind != "image" || sender.sends[0].path != real {
		t.Fatalf("media send = %+v", sender.sends[0])
	}
	if sender.sends[1].text != "Sending now and done" {
		t.Fatalf("clean text = %q", sender.sends[1].text)
	}
}

func TestDispatchNumbersMultipartText(t *testing.T) {
	sender := &stubSender{}
	d := New(sender, 100, 0, []string{"/tmp"})
	slept := 0
	d.sleep = func(time.Duration) { slept++ }

	text := strings.Repeat("a", 70) + "\n\n" + strings.Repeat("b", 70) + "\n\n" + strings.Repeat("c", 70)
	if err := d.Dispatch(context.Background(), "chat1", text); err != nil {
		t.Fatal(err)
	}

	if len(sender.sends) != 3 {
		t.Fatalf("sends = %d, want 3", len(sender.sends))
	}
	for i, s := range sender.sends {
		wantPrefix := fmt.Sprintf("(%d/3) ", i+1)
		if !strings.HasPrefix(s.text, wantPrefix) {
			t.Fatalf("chunk %d = %q, want prefix %q", i, s.text, wantPrefix)
		}
	}
	if slept != 2 {
		t.Fatalf("pauses = %d, want between chunks only", slept)
	}
}

func TestDispatchSinglePartHasNoPrefix(t *testing.T) {
	sender := &stubSender{}
	d := newTestDispatcher(sender, []string{"/tmp"})

	if err := d.Dispatch(context.Background(), "chat1", "short reply"); err != nil {
		t.Fatal(err)
	}
	if sender.sends[0].text != "short reply" {
		t.Fatalf("got %q", sender.sends[0].text)
	}
}
