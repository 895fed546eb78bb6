package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var srtTimestampRegex = regexp.MustCompile(
	`(\d{1,2}):(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*(\d{1,2}):(\d{2}):(\d{2})[,.](\d{3})`,
)

type SRTDecoder struct{}

// Decode reads SubRip blocks. Segment IDs are the 1-based block position,
// independent of the numbering found in the file.
func (d *SRTDecoder) Decode(r io.Reader) ([]Segment, error) {
	var (
		segments  []Segment
		current   *Segment
		textLines []string
		lineNum   int
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
		}

		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}

		if current == nil {
			if matches := srtTimestampRegex.FindStringSubmatch(line); matches != nil {
				start, end, err := parseTimestampPair(matches[1:])
				if err != nil {
					return nil, fmt.Errorf("invalid timestamp at line %d: %w", lineNum, err)
				}
				current = &Segment{StartTime: start, EndTime: end}
			}
			// counter lines and stray text before a timing line are skipped
			continue
		}

		textLines = append(textLines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading SRT: %w", err)
	}
	flush()

	return segments, nil
}

// parses h, m, s, ms for start then end
func parseTimestampPair(parts []string) (time.Duration, time.Duration, error) {
	start, err := parseClockParts(parts[0], parts[1], parts[2], parts[3])
	if err != nil {
		return 0, 0, err
	}
	end, err := parseClockParts(parts[4], parts[5], parts[6], parts[7])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseClockParts(hours, minutes, seconds, millis string) (time.Duration, error) {
	var fields [4]int
	for i, s := range []string{hours, minutes, seconds, millis} {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, err
		}
		fields[i] = v
	}

	return time.Duration(fields[0])*time.Hour +
		time.Duration(fields[1])*time.Minute +
		time.Duration(fields[2])*time.Second +
		time.Duration(fields[3])*time.Millisecond, nil
}
