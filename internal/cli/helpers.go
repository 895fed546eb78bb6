package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mgpai22/lipistudio/internal/subtitle"
)

func normalizeProvider(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("file not found: %s", path)
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

// outputFor swaps the extension of input, optionally inserting a tag:
// ("talk.mp4", "ja", .srt) -> "talk.ja.srt".
func outputFor(input, tag string, format subtitle.Format) string {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	if tag != "" {
		base += "." + tag
	}
	return base + subtitle.GetExtensionForFormat(format)
}

// formatFor picks the export format from an explicit flag or the output
// path's extension, defaulting to SRT.
func formatFor(flag, outputPath string) (subtitle.Format, error) {
	if flag != "" {
		return subtitle.ParseFormat(flag)
	}
	if outputPath != "" {
		switch strings.ToLower(filepath.Ext(outputPath)) {
		case ".srt", ".vtt", ".ass", ".ssa":
			return subtitle.GetFormatFromExtension(outputPath), nil
		default:
			return "", fmt.Errorf("cannot infer subtitle format from %q", outputPath)
		}
	}
	return subtitle.FormatSRT, nil
}

func sameLanguage(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}
