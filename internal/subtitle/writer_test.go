package subtitle

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestSRTEncodeSingleSegment(t *testing.T) {
	segments := []Segment{
		{ID: "1", StartTime: 0, EndTime: 4 * time.Second, Text: "Hey"},
	}

	got, err := Marshal(FormatSRT, segments)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := "1\n00:00:00,000 --> 00:00:04,000\nHey\n"
	if string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSRTEncodeKeepsListOrder(t *testing.T) {
	segments := []Segment{
		{ID: "2", StartTime: 5 * time.Second, EndTime: 6 * time.Second, Text: "later"},
		{ID: "1", StartTime: time.Second, EndTime: 7 * time.Second, Text: "earlier, overlapping"},
	}

	got, err := Marshal(FormatSRT, segments)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := "1\n00:00:05,000 --> 00:00:06,000\nlater\n" +
		"\n" +
		"2\n00:00:01,000 --> 00:00:07,000\nearlier, overlapping\n"
	if string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSRTEncodeIsIdempotent(t *testing.T) {
	segments := []Segment{
		{ID: "1", StartTime: 0, EndTime: 4 * time.Second, Text: "a"},
		{ID: "2", StartTime: 4 * time.Second, EndTime: 8500 * time.Millisecond, Text: "b"},
	}

	first, err := Marshal(FormatSRT, segments)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	second, err := Marshal(FormatSRT, segments)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("exports differ:\n%q\n%q", first, second)
	}
}

func TestFormatSRTTime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00,000"},
		{4 * time.Second, "00:00:04,000"},
		{1500*time.Millisecond + 999*time.Microsecond, "00:00:01,500"},
		{time.Hour + 2*time.Minute + 3*time.Second + 45*time.Millisecond, "01:02:03,045"},
		{100 * time.Hour, "100:00:00,000"},
		{-time.Second, "00:00:00,000"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatSRTTime(tt.in); got != tt.want {
				t.Errorf("formatSRTTime(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestVTTAndASSEncode(t *testing.T) {
	segments := []Segment{
		{ID: "1", StartTime: 1500 * time.Millisecond, EndTime: 3 * time.Second, Text: "one\ntwo"},
	}

	vtt, err := Marshal(FormatVTT, segments)
	if err != nil {
		t.Fatalf("Marshal(vtt) failed: %v", err)
	}
	if !strings.HasPrefix(string(vtt), "WEBVTT\n\n") {
		t.Errorf("missing WEBVTT header: %q", vtt)
	}
	if !strings.Contains(string(vtt), "00:00:01.500 --> 00:00:03.000") {
		t.Errorf("unexpected VTT timing: %q", vtt)
	}

	ass, err := Marshal(FormatASS, segments)
	if err != nil {
		t.Fatalf("Marshal(ass) failed: %v", err)
	}
	if !strings.Contains(string(ass), "Dialogue: 0,0:00:01.50,0:00:03.00,Default,,0,0,0,,one\\Ntwo") {
		t.Errorf("unexpected ASS dialogue: %q", ass)
	}
}

func TestExportFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Marketing_Strategy_Q4_Draft.mp4", "Marketing_Strategy_Q4_Draft.srt"},
		{"multiple dots", "talk.final.mov", "talk.final.srt"},
		{"no extension", "recording", "recording.srt"},
		{"trailing dot", "video.", "video..srt"},
		{"directory stripped", "uploads/clip.webm", "clip.srt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExportFilename(tt.in, FormatSRT); got != tt.want {
				t.Errorf("ExportFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	if got := ExportFilename("clip.mp4", FormatVTT); got != "clip.vtt" {
		t.Errorf("ExportFilename vtt = %q, want clip.vtt", got)
	}
}

func TestSegmentJSONUsesSeconds(t *testing.T) {
	seg := Segment{ID: "2", StartTime: 4 * time.Second, EndTime: 8500 * time.Millisecond, Text: "b"}

	data, err := json.Marshal(seg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"id":"2","startTime":4,"endTime":8.5,"text":"b"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}

	var back Segment
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if back != seg {
		t.Errorf("got %+v, want %+v", back, seg)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatSRT, "SRT": FormatSRT, "webvtt": FormatVTT, "ssa": FormatASS} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("docx"); err == nil {
		t.Error("expected error for unknown format")
	}
}
