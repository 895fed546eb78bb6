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

// ASSDecoder reads the Dialogue events of an ASS/SSA script. Style data is
// dropped; leading override tags are stripped and \N becomes a newline.
type ASSDecoder struct{}

var leadingTags = regexp.MustCompile(`^(\{[^}]*\})+`)

// column positions taken from the [Events] Format line
type assColumns struct {
	count int
	start int
	end   int
	text  int
}

func (d *ASSDecoder) Decode(r io.Reader) ([]Segment, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		segments []Segment
		cols     *assColumns
		inEvents bool
		lineNum  int
	)

	for scanner.Scan() {
		line := scanner.Text()
		lineNum++
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			inEvents = strings.EqualFold(trimmed, "[events]")
			continue
		}
		if !inEvents {
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "Format:"):
			c, err := parseASSFormat(strings.TrimPrefix(trimmed, "Format:"))
			if err != nil {
				return nil, err
			}
			cols = c

		case strings.HasPrefix(trimmed, "Dialogue:"):
			if cols == nil {
				return nil, fmt.Errorf("Dialogue before Format line at line %d", lineNum)
			}
			seg, err := cols.parseDialogue(strings.TrimPrefix(trimmed, "Dialogue:"))
			if err != nil {
				return nil, fmt.Errorf("failed to parse Dialogue at line %d: %w", lineNum, err)
			}
			seg.ID = strconv.Itoa(len(segments) + 1)
			segments = append(segments, seg)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading ASS file: %w", err)
	}
	if cols == nil {
		return nil, fmt.Errorf("ASS file missing Format line in [Events] section")
	}

	return segments, nil
}

func parseASSFormat(spec string) (*assColumns, error) {
	columns := strings.Split(spec, ",")
	cols := &assColumns{count: len(columns), start: -1, end: -1, text: -1}
	for i, col := range columns {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "start":
			cols.start = i
		case "end":
			cols.end = i
		case "text":
			cols.text = i
		}
	}
	if cols.text == -1 || cols.start == -1 || cols.end == -1 {
		return nil, fmt.Errorf("ASS Format line needs Start, End and Text columns")
	}
	return cols, nil
}

func (c *assColumns) parseDialogue(content string) (Segment, error) {
	parts := splitASSFields(strings.TrimSpace(content), c.count)
	if len(parts) < c.count {
		return Segment{}, fmt.Errorf("expected %d fields, got %d", c.count, len(parts))
	}

	start, err := parseASSTimestamp(parts[c.start])
	if err != nil {
		return Segment{}, err
	}
	end, err := parseASSTimestamp(parts[c.end])
	if err != nil {
		return Segment{}, err
	}

	text := leadingTags.ReplaceAllString(parts[c.text], "")
	text = strings.ReplaceAll(text, "\\N", "\n")
	text = strings.ReplaceAll(text, "\\n", "\n")

	return Segment{StartTime: start, EndTime: end, Text: text}, nil
}

// the text column is last and may itself contain commas
func splitASSFields(content string, numFields int) []string {
	if numFields <= 0 {
		return nil
	}
	return strings.SplitN(content, ",", numFields)
}

// h:mm:ss.cc
func parseASSTimestamp(ts string) (time.Duration, error) {
	ts = strings.TrimSpace(ts)
	hms := strings.Split(ts, ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid ASS timestamp %q", ts)
	}
	secParts := strings.Split(hms[2], ".")
	if len(secParts) != 2 {
		return 0, fmt.Errorf("invalid ASS timestamp %q", ts)
	}

	var vals [4]int
	for i, s := range []string{hms[0], hms[1], secParts[0], secParts[1]} {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid ASS timestamp %q", ts)
		}
		vals[i] = v
	}

	return time.Duration(vals[0])*time.Hour +
		time.Duration(vals[1])*time.Minute +
		time.Duration(vals[2])*time.Second +
		time.Duration(vals[3])*10*time.Millisecond, nil
}
