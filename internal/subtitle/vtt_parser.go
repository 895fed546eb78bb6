package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var (
	vttTimestampRegex = regexp.MustCompile(
		`(\d{2,}):(\d{2}):(\d{2})\.(\d{3})\s*-->\s*(\d{2,}):(\d{2}):(\d{2})\.(\d{3})`,
	)
	vttShortTimestampRegex = regexp.MustCompile(
		`(\d{2}):(\d{2})\.(\d{3})\s*-->\s*(\d{2}):(\d{2})\.(\d{3})`,
	)
)

type VTTDecoder struct{}

// Decode reads WebVTT cues, skipping NOTE, STYLE and REGION blocks.
func (d *VTTDecoder) Decode(r io.Reader) ([]Segment, error) {
	var (
		segments  []Segment
		current   *Segment
		textLines []string
		lineNum   int
		skipBlock bool
	)

	flush := func() {
		if current != nil {
			current.Text = strings.Join(textLines, "\n")
			current.ID = strconv.Itoa(len(segments) + 1)
			segments = append(segments, *current)
		}
		current = nil
		textLines = nil
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		lineNum++

		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
			if !strings.HasPrefix(line, "WEBVTT") {
				return nil, fmt.Errorf("missing WEBVTT header")
			}
			continue
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			skipBlock = false
			flush()
			continue
		}
		if skipBlock {
			continue
		}

		if current == nil {
			if isVTTMetaBlock(trimmed) {
				skipBlock = true
				continue
			}
			if matches := vttTimestampRegex.FindStringSubmatch(line); matches != nil {
				start, end, err := parseTimestampPair(matches[1:])
				if err != nil {
					return nil, fmt.Errorf("invalid timestamp at line %d: %w", lineNum, err)
				}
				current = &Segment{StartTime: start, EndTime: end}
				continue
			}
			if m := vttShortTimestampRegex.FindStringSubmatch(line); m != nil {
				start, end, err := parseTimestampPair([]string{
					"0", m[1], m[2], m[3], "0", m[4], m[5], m[6],
				})
				if err != nil {
					return nil, fmt.Errorf("invalid timestamp at line %d: %w", lineNum, err)
				}
				current = &Segment{StartTime: start, EndTime: end}
			}
			// cue identifiers are skipped
			continue
		}

		textLines = append(textLines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading VTT: %w", err)
	}
	flush()

	return segments, nil
}

func isVTTMetaBlock(line string) bool {
	for _, prefix := range []string{"NOTE", "STYLE", "REGION"} {
		if line == prefix || strings.HasPrefix(line, prefix+" ") {
			return true
		}
	}
	return false
}
