// Package timecode converts between media positions and the text forms used
// by the editor: the "m:ss" player clock and the "m:ss.s" time input.
package timecode

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidTime = errors.New("invalid time value")

var (
	intPrefix   = regexp.MustCompile(`^[+-]?\d+`)
	floatPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	strictInput = regexp.MustCompile(`^(?:(\d+):)?(\d+(?:\.\d+)?)$`)
)

// converts float seconds to a duration, rounded to the nearest nanosecond and
// saturated at the duration range
func FromSeconds(seconds float64) time.Duration {
	if math.IsNaN(seconds) {
		return 0
	}
	ns := math.Round(seconds * float64(time.Second))
	switch {
	case ns >= math.MaxInt64:
		return math.MaxInt64
	case ns <= math.MinInt64:
		return math.MinInt64
	}
	return time.Duration(ns)
}

func Seconds(d time.Duration) float64 {
	return d.Seconds()
}

// FormatClock renders the player clock: whole minutes, then seconds floored
// and zero padded to two digits.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// FormatInput renders the editable time field, e.g. 75.26s -> "1:15.3".
func FormatInput(d time.Duration) string {
	total := d.Seconds()
	mins := math.Floor(total / 60)
	secs := strconv.FormatFloat(math.Mod(total, 60), 'f', 1, 64)
	if len(secs) < 4 {
		secs = strings.Repeat("0", 4-len(secs)) + secs
	}
	return fmt.Sprintf("%d:%s", int64(mins), secs)
}

// ParseInput reads a time field permissively. Two colon separated parts are
// minutes and seconds; anything else is raw seconds. Unparseable parts count
// as zero, so garbage input yields 0.
func ParseInput(value string) time.Duration {
	parts := strings.Split(value, ":")
	if len(parts) == 2 {
		mins := parseIntPrefix(parts[0])
		secs := parseFloatPrefix(parts[1])
		return FromSeconds(float64(mins)*60 + secs)
	}
	return FromSeconds(parseFloatPrefix(value))
}

// ParseInputStrict accepts only "m:ss.s" or plain seconds and reports
// anything else as ErrInvalidTime.
func ParseInputStrict(value string) (time.Duration, error) {
	m := strictInput.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}

	var mins int64
	if m[1] != "" {
		v, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
		}
		mins = v
	}

	secs, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}

	return FromSeconds(float64(mins)*60 + secs), nil
}

func parseIntPrefix(s string) int64 {
	match := intPrefix.FindString(strings.TrimLeft(s, " \t\n\r"))
	if match == "" {
		return 0
	}
	v, err := strconv.ParseInt(match, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseFloatPrefix(s string) float64 {
	match := floatPrefix.FindString(strings.TrimLeft(s, " \t\n\r"))
	if match == "" {
		return 0
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil || math.IsNaN(v) {
		return 0
	}
	return v
}
