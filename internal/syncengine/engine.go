// Package syncengine derives what the editor shows from a playback clock:
// progress, the clock text and the active caption.
//
// While the clock plays, every frame reads the clock, publishes a Frame and
// asks the scheduler for the next one. A paused clock simply stops the
// rescheduling; no cancellation handle is kept. Play transitions restart the
// loop via Start, and seeks or edits push one out-of-band frame via Sync.
package syncengine

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/mgpai22/lipistudio/internal/playback"
	"github.com/mgpai22/lipistudio/internal/subtitle"
	"github.com/mgpai22/lipistudio/internal/timecode"
)

// anything that can hand out the current segment list
type SegmentSource interface {
	Segments() []subtitle.Segment
}

// Frame is the derived UI state for one instant.
type Frame struct {
	Position time.Duration
	Duration time.Duration
	// position/duration in [0, 1]; zero while duration is unknown
	Progress float64
	Clock    string
	Paused   bool
	Active   *subtitle.Segment
}

type frameJSON struct {
	Position      float64           `json:"position"`
	Duration      float64           `json:"duration"`
	Progress      float64           `json:"progress"`
	Clock         string            `json:"clock"`
	DurationClock string            `json:"durationClock"`
	Paused        bool              `json:"paused"`
	Active        *subtitle.Segment `json:"active"`
}

func (f Frame) MarshalJSON() ([]byte, error) {
	return json.Marshal(frameJSON{
		Position:      timecode.Seconds(f.Position),
		Duration:      timecode.Seconds(f.Duration),
		Progress:      f.Progress,
		Clock:         f.Clock,
		DurationClock: timecode.FormatClock(f.Duration),
		Paused:        f.Paused,
		Active:        f.Active,
	})
}

// ActiveIndex returns the index of the first segment, in list order, with
// start <= position < end, or -1. Overlaps resolve to the earlier entry and
// gaps have no active segment.
func ActiveIndex(segments []subtitle.Segment, position time.Duration) int {
	for i, seg := range segments {
		if position >= seg.StartTime && position < seg.EndTime {
			return i
		}
	}
	return -1
}

func ActiveSegment(segments []subtitle.Segment, position time.Duration) (subtitle.Segment, bool) {
	i := ActiveIndex(segments, position)
	if i < 0 {
		return subtitle.Segment{}, false
	}
	return segments[i], true
}

// Progress is position/duration clamped to [0, 1], or 0 for unknown duration.
func Progress(position, duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}
	p := float64(position) / float64(duration)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// ComputeFrame derives a frame from explicit inputs.
func ComputeFrame(
	position, duration time.Duration,
	paused bool,
	segments []subtitle.Segment,
) Frame {
	frame := Frame{
		Position: position,
		Duration: duration,
		Progress: Progress(position, duration),
		Clock:    timecode.FormatClock(position),
		Paused:   paused,
	}
	if seg, ok := ActiveSegment(segments, position); ok {
		frame.Active = &seg
	}
	return frame
}

type Engine struct {
	clock     playback.Clock
	source    SegmentSource
	scheduler FrameScheduler

	mu        sync.Mutex
	scheduled bool
	// set by Start while a frame is pending so that frame keeps the loop alive
	wake bool
	last      Frame
	subs      map[int]chan Frame
	nextSub   int
	frames    uint64
}

func New(clock playback.Clock, source SegmentSource, scheduler FrameScheduler) *Engine {
	return &Engine{
		clock:     clock,
		source:    source,
		scheduler: scheduler,
		subs:      make(map[int]chan Frame),
	}
}

// Start begins the frame loop unless a frame is already pending.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.scheduled {
		e.wake = true
		e.mu.Unlock()
		return
	}
	e.scheduled = true
	e.mu.Unlock()

	e.scheduler.RequestFrame(e.frame)
}

// Sync publishes one frame immediately, outside the loop.
func (e *Engine) Sync() Frame {
	frame := e.compute()
	e.publish(frame)
	return frame
}

func (e *Engine) Last() Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// number of frames published so far, loop and Sync combined
func (e *Engine) Frames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

// Running reports whether a loop frame is pending.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scheduled
}

// Subscribe returns a channel carrying published frames. Slow readers only
// see the latest frame. cancel closes the channel.
func (e *Engine) Subscribe() (<-chan Frame, func()) {
	ch := make(chan Frame, 1)

	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (e *Engine) frame() {
	e.mu.Lock()
	e.wake = false
	e.mu.Unlock()

	frame := e.compute()
	e.publish(frame)

	// a play that lands after compute shows up either here or as wake
	paused := e.clock.Paused()
	e.mu.Lock()
	if paused && !e.wake {
		e.scheduled = false
		e.mu.Unlock()
		return
	}
	e.wake = false
	e.mu.Unlock()

	e.scheduler.RequestFrame(e.frame)
}

func (e *Engine) compute() Frame {
	return ComputeFrame(
		e.clock.Position(),
		e.clock.Duration(),
		e.clock.Paused(),
		e.source.Segments(),
	)
}

func (e *Engine) publish(frame Frame) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.last = frame
	e.frames++
	for _, ch := range e.subs {
		select {
		case ch <- frame:
		default:
			// drop the stale frame so the newest one gets through
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- frame:
			default:
			}
		}
	}
}
