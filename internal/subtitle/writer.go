package subtitle

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SubRip format
type SRTEncoder struct{}

// WebVTT format
type VTTEncoder struct{}

// Advanced SubStation Alpha format
type ASSEncoder struct {
	Title    string
	FontName string
	FontSize int
}

func NewEncoder(format Format) (Encoder, error) {
	switch format {
	case FormatSRT:
		return &SRTEncoder{}, nil
	case FormatVTT:
		return &VTTEncoder{}, nil
	case FormatASS:
		return &ASSEncoder{
			Title:    "Lipi Studio Subtitles",
			FontName: "Arial",
			FontSize: 20,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// Encode writes one block per segment in list order. Blocks are
// "<index>\n<start> --> <end>\n<text>\n" joined by a single newline.
// Nothing is sorted or validated; overlapping edits export as they are.
func (e *SRTEncoder) Encode(w io.Writer, segments []Segment) error {
	bw := bufio.NewWriter(w)
	for i, seg := range segments {
		if i > 0 {
			bw.WriteString("\n")
		}
		fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n",
			i+1,
			formatSRTTime(seg.StartTime),
			formatSRTTime(seg.EndTime),
			seg.Text)
	}
	return bw.Flush()
}

func (e *VTTEncoder) Encode(w io.Writer, segments []Segment) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("WEBVTT\n\n")

	for i, seg := range segments {
		// cue identifier
		fmt.Fprintf(bw, "%d\n", i+1)
		fmt.Fprintf(bw, "%s --> %s\n",
			formatVTTTime(seg.StartTime),
			formatVTTTime(seg.EndTime))
		bw.WriteString(seg.Text)
		bw.WriteString("\n\n")
	}
	return bw.Flush()
}

func (e *ASSEncoder) Encode(w io.Writer, segments []Segment) error {
	bw := bufio.NewWriter(w)

	// script info section
	bw.WriteString("[Script Info]\n")
	fmt.Fprintf(bw, "Title: %s\n", e.Title)
	bw.WriteString("ScriptType: v4.00+\n")
	bw.WriteString("Collisions: Normal\n")
	bw.WriteString("PlayDepth: 0\n\n")

	// v4+ styles section
	bw.WriteString("[V4+ Styles]\n")
	bw.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(bw, "Style: Default,%s,%d,&H00FFFFFF,&H000000FF,&H00000000,&H00000000,0,0,0,0,100,100,0,0,1,2,2,2,10,10,10,1\n\n",
		e.FontName, e.FontSize)

	// events section
	bw.WriteString("[Events]\n")
	bw.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	for _, seg := range segments {
		fmt.Fprintf(bw, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			formatASSTime(seg.StartTime),
			formatASSTime(seg.EndTime),
			escapeASSText(seg.Text))
	}
	return bw.Flush()
}

// encodes segments into memory
func Marshal(format Format, segments []Segment) ([]byte, error) {
	enc, err := NewEncoder(format)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := enc.Encode(&buf, segments); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writes segments to path, creating parent directories
func WriteFile(path string, format Format, segments []Segment) error {
	data, err := Marshal(format, segments)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// millisecond fields are truncated toward zero
func splitDuration(d time.Duration) (hours, minutes, seconds, millis int64) {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return ms / 3600000, (ms / 60000) % 60, (ms / 1000) % 60, ms % 1000
}

func formatSRTTime(d time.Duration) string {
	h, m, s, ms := splitDuration(d)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func formatVTTTime(d time.Duration) string {
	h, m, s, ms := splitDuration(d)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func formatASSTime(d time.Duration) string {
	h, m, s, ms := splitDuration(d)
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, ms/10)
}

func escapeASSText(text string) string {
	return strings.ReplaceAll(text, "\n", "\\N")
}

// ExportFilename replaces the extension of the uploaded file name,
// e.g. "talk.final.mp4" -> "talk.final.srt".
func ExportFilename(sourceName string, format Format) string {
	base := filepath.Base(sourceName)
	if base == "." || base == string(filepath.Separator) {
		base = ""
	}
	if ext := filepath.Ext(base); len(ext) > 1 {
		base = strings.TrimSuffix(base, ext)
	}
	return base + GetExtensionForFormat(format)
}

// subtitle format based on file extension
func GetFormatFromExtension(path string) Format {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".srt":
		return FormatSRT
	case ".vtt":
		return FormatVTT
	case ".ass", ".ssa":
		return FormatASS
	default:
		return FormatSRT
	}
}

// file extension for a format
func GetExtensionForFormat(format Format) string {
	switch format {
	case FormatSRT:
		return ".srt"
	case FormatVTT:
		return ".vtt"
	case FormatASS:
		return ".ass"
	default:
		return ".srt"
	}
}

// parses a user supplied format name
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "srt":
		return FormatSRT, nil
	case "vtt", "webvtt":
		return FormatVTT, nil
	case "ass", "ssa":
		return FormatASS, nil
	default:
		return "", fmt.Errorf("unsupported format %q: use srt, vtt, or ass", name)
	}
}
