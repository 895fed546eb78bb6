package subtitle

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

func NewDecoder(format Format) (Decoder, error) {
	switch format {
	case FormatSRT:
		return &SRTDecoder{}, nil
	case FormatVTT:
		return &VTTDecoder{}, nil
	case FormatASS:
		return &ASSDecoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported subtitle format for import: %s", format)
	}
}

// decodes r using the format implied by name's extension
func Decode(r io.Reader, name string) ([]Segment, Format, error) {
	ext := strings.ToLower(filepath.Ext(name))
	var format Format
	switch ext {
	case ".srt":
		format = FormatSRT
	case ".vtt":
		format = FormatVTT
	case ".ass", ".ssa":
		format = FormatASS
	default:
		return nil, "", fmt.Errorf("unsupported subtitle format: %s", ext)
	}

	dec, err := NewDecoder(format)
	if err != nil {
		return nil, "", err
	}
	segments, err := dec.Decode(r)
	if err != nil {
		return nil, "", err
	}
	return segments, format, nil
}

func Open(path string) ([]Segment, Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open subtitle file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	return Decode(file, path)
}
