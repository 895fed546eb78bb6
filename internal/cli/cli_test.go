package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/mgpai22/lipistudio/internal/config"
	"github.com/mgpai22/lipistudio/internal/subtitle"
	"github.com/mgpai22/lipistudio/internal/syncengine"
)

func TestOutputFor(t *testing.T) {
	tests := []struct {
		input  string
		tag    string
		format subtitle.Format
		want   string
	}{
		{"talk.mp4", "", subtitle.FormatSRT, "talk.srt"},
		{"talk.mp4", "", subtitle.FormatVTT, "talk.vtt"},
		{"dir/talk.final.srt", "ja", subtitle.FormatSRT, "dir/talk.final.ja.srt"},
		{"talk.ass", "english.overlay", subtitle.FormatASS, "talk.english.overlay.ass"},
		{"noext", "", subtitle.FormatSRT, "noext.srt"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := outputFor(tt.input, tt.tag, tt.format); got != tt.want {
				t.Errorf("outputFor(%q, %q, %s) = %q, want %q", tt.input, tt.tag, tt.format, got, tt.want)
			}
		})
	}
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		output  string
		want    subtitle.Format
		wantErr bool
	}{
		{"default", "", "", subtitle.FormatSRT, false},
		{"flag wins", "vtt", "out.srt", subtitle.FormatVTT, false},
		{"from extension", "", "out.ass", subtitle.FormatASS, false},
		{"ssa extension", "", "OUT.SSA", subtitle.FormatASS, false},
		{"unknown extension", "", "out.txt", "", true},
		{"bad flag", "docx", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatFor(tt.flag, tt.output)
			if (err != nil) != tt.wantErr {
				t.Fatalf("formatFor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("formatFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSameLanguage(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"hi", "hi", true},
		{" Hindi ", "hindi", true},
		{"", "", false},
		{"", "english", false},
		{"hi", "en", false},
	}

	for _, tt := range tests {
		if got := sameLanguage(tt.a, tt.b); got != tt.want {
			t.Errorf("sameLanguage(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestOverlaySegments(t *testing.T) {
	original := []subtitle.Segment{
		{ID: "1", Text: "namaste"},
		{ID: "2", Text: "ok"},
	}
	translated := []subtitle.Segment{
		{ID: "1", Text: "hello"},
		{ID: "2", Text: "ok"},
	}

	got := overlaySegments(translated, original)
	if got[0].Text != "hello\nnamaste" {
		t.Errorf("overlay[0] = %q", got[0].Text)
	}
	if got[1].Text != "ok" {
		t.Errorf("identical text should not be doubled, got %q", got[1].Text)
	}
	if translated[0].Text != "hello" {
		t.Error("overlaySegments modified its input")
	}
}

func TestLastEnd(t *testing.T) {
	segs := []subtitle.Segment{
		{StartTime: 0, EndTime: 9 * time.Second},
		{StartTime: 2 * time.Second, EndTime: 4 * time.Second},
	}
	if got := lastEnd(segs); got != 9*time.Second {
		t.Errorf("lastEnd() = %v, want 9s", got)
	}
	if got := lastEnd(nil); got != 0 {
		t.Errorf("lastEnd(nil) = %v", got)
	}
}

func TestDescribeFrame(t *testing.T) {
	frame := syncengine.Frame{
		Duration: 131 * time.Second,
		Clock:    "0:05",
		Active:   &subtitle.Segment{ID: "1", Text: "line one\nline two"},
	}
	if got, want := describeFrame(frame), "0:05 / 2:11  line one line two"; got != want {
		t.Errorf("describeFrame() = %q, want %q", got, want)
	}

	frame.Active = nil
	if got, want := describeFrame(frame), "0:05 / 2:11  "; got != want {
		t.Errorf("describeFrame() = %q, want %q", got, want)
	}
}

func TestApplyFlags(t *testing.T) {
	c, err := config.FromEnv(func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatal(err)
	}

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringP("language", "l", "", "")
	cmd.Flags().String("provider", "", "")
	cmd.Flags().String("model", "", "")
	cmd.Flags().StringP("api-key", "k", "", "")
	if err := cmd.Flags().Parse([]string{"--provider", "Gemini", "-k", "g-key", "-l", "en"}); err != nil {
		t.Fatal(err)
	}
	applyFlags(cmd, c)

	if c.Provider != "gemini" || c.GeminiKey != "g-key" || c.Language != "en" {
		t.Errorf("config after flags = provider %q key %q language %q", c.Provider, c.GeminiKey, c.Language)
	}
	if c.OpenAIKey != "" {
		t.Errorf("OpenAI key should be untouched, got %q", c.OpenAIKey)
	}
}

func TestRequireFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.srt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := requireFile(file); err != nil {
		t.Errorf("requireFile(file) = %v", err)
	}
	if err := requireFile(dir); err == nil {
		t.Error("requireFile(dir) should fail")
	}
	if err := requireFile(filepath.Join(dir, "missing.srt")); err == nil {
		t.Error("requireFile(missing) should fail")
	}
}

func TestUploadSummary(t *testing.T) {
	tests := []struct {
		size   int64
		length string
		want   string
	}{
		{3 << 20, "12:40", "talk.audio.mp3  12:40  3.0 MB  fits one transcription request"},
		{30 << 20, "", "talk.audio.mp3  ?  30.0 MB  over the 25 MB upload limit"},
	}

	for _, tt := range tests {
		if got := uploadSummary("talk.audio.mp3", tt.size, tt.length); got != tt.want {
			t.Errorf("uploadSummary(%d) = %q, want %q", tt.size, got, tt.want)
		}
	}
}
