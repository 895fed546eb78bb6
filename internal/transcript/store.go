// Package transcript holds the editable segment list of one editor session.
//
// Every mutation is a list-map replacement: a new slice is built in which only
// the matching segment differs, so snapshots handed out earlier never change
// underneath their holders. Times are not validated, segments are never
// re-sorted or renumbered, and nothing can be inserted or deleted.
package transcript

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mgpai22/lipistudio/internal/subtitle"
)

var (
	ErrSegmentNotFound = errors.New("segment not found")
	ErrUnknownField    = errors.New("unknown time field")
)

// which time of a segment an edit targets
type Field string

const (
	FieldStartTime Field = "startTime"
	FieldEndTime   Field = "endTime"
)

func ParseField(name string) (Field, error) {
	switch Field(name) {
	case FieldStartTime, FieldEndTime:
		return Field(name), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
}

type Store struct {
	mu       sync.RWMutex
	segments []subtitle.Segment
	version  uint64
}

// copies segments; the caller keeps ownership of its slice
func NewStore(segments []subtitle.Segment) *Store {
	owned := make([]subtitle.Segment, len(segments))
	copy(owned, segments)
	return &Store{segments: owned}
}

// Segments returns the current list. The slice is never written to again by
// the store and must be treated as read-only.
func (s *Store) Segments() []subtitle.Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.segments
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments)
}

// bumped on every successful edit
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) Get(id string) (subtitle.Segment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, seg := range s.segments {
		if seg.ID == id {
			return seg, true
		}
	}
	return subtitle.Segment{}, false
}

func (s *Store) SetText(id, text string) (subtitle.Segment, error) {
	return s.replace(id, func(seg subtitle.Segment) subtitle.Segment {
		seg.Text = text
		return seg
	})
}

func (s *Store) SetTime(id string, field Field, value time.Duration) (subtitle.Segment, error) {
	if _, err := ParseField(string(field)); err != nil {
		return subtitle.Segment{}, err
	}
	return s.replace(id, func(seg subtitle.Segment) subtitle.Segment {
		return withTime(seg, field, value)
	})
}

func (s *Store) replace(
	id string,
	edit func(subtitle.Segment) subtitle.Segment,
) (subtitle.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, updated, ok := mapReplace(s.segments, id, edit)
	if !ok {
		return subtitle.Segment{}, fmt.Errorf("%w: %q", ErrSegmentNotFound, id)
	}
	s.segments = next
	s.version++
	return updated, nil
}

// WithText returns a copy of segments with the text of segment id replaced.
func WithText(segments []subtitle.Segment, id, text string) ([]subtitle.Segment, bool) {
	next, _, ok := mapReplace(segments, id, func(seg subtitle.Segment) subtitle.Segment {
		seg.Text = text
		return seg
	})
	return next, ok
}

// WithTime returns a copy of segments with one time field of segment id replaced.
func WithTime(
	segments []subtitle.Segment,
	id string,
	field Field,
	value time.Duration,
) ([]subtitle.Segment, bool) {
	next, _, ok := mapReplace(segments, id, func(seg subtitle.Segment) subtitle.Segment {
		return withTime(seg, field, value)
	})
	return next, ok
}

func withTime(seg subtitle.Segment, field Field, value time.Duration) subtitle.Segment {
	switch field {
	case FieldStartTime:
		seg.StartTime = value
	case FieldEndTime:
		seg.EndTime = value
	}
	return seg
}

// every segment carrying id is edited, the rest are copied as they are
func mapReplace(
	segments []subtitle.Segment,
	id string,
	edit func(subtitle.Segment) subtitle.Segment,
) ([]subtitle.Segment, subtitle.Segment, bool) {
	var (
		next    []subtitle.Segment
		updated subtitle.Segment
	)
	for i, seg := range segments {
		if seg.ID != id {
			continue
		}
		if next == nil {
			next = make([]subtitle.Segment, len(segments))
			copy(next, segments)
			updated = edit(seg)
			next[i] = updated
			continue
		}
		next[i] = edit(seg)
	}
	if next == nil {
		return segments, subtitle.Segment{}, false
	}
	return next, updated, true
}

// assigns list-position IDs ("1", "2", ...) to segments lacking one
func AssignIDs(segments []subtitle.Segment) []subtitle.Segment {
	out := make([]subtitle.Segment, len(segments))
	for i, seg := range segments {
		if seg.ID == "" {
			seg.ID = strconv.Itoa(i + 1)
		}
		out[i] = seg
	}
	return out
}
