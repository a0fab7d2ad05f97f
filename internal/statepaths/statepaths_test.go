package statepaths

import (
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestDataDirIsAbsolute(t *testing.T) {
	viper.Set("data_dir", "./data")
	defer viper.Set("data_dir", "")

	if got := DataDir(); !filepath.IsAbs(got) {
		t.Fatalf("DataDir() = %q, want absolute", got)
	}
}

func TestSanitizeChatID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"84901234567@s.whatsapp.net", "84901234567_s_whatsapp_net"},
		{"tg:12345", "tg_12345"},
		{"plain", "plain"},
		{"../escape", "___escape"},
	}
	for _, c := range cases {
		if got := SanitizeChatID(c.in); got != c.want {
			t.Errorf("SanitizeChatID(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestChatDirIsSingleSegment(t *testing.T) {
	dir := ChatDir("/data", "a/b/../../etc")
	if filepath.Dir(dir) != "/data" {
		t.Fatalf("chat dir escaped data dir: %s", dir)
	}
}
