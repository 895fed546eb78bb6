// Package playback emulates the position and play/pause state of a media
// element. Position advances with wall time while playing and is derived on
// read; nothing ticks in the background.
package playback

import (
	"sync"
	"time"
)

// read side of a media element, as consumed by the sync engine
type Clock interface {
	Position() time.Duration
	Duration() time.Duration
	Paused() bool
}

type Option func(*MediaClock)

// overrides the time source
func WithNow(now func() time.Time) Option {
	return func(c *MediaClock) {
		c.now = now
	}
}

func WithDuration(d time.Duration) Option {
	return func(c *MediaClock) {
		if d > 0 {
			c.duration = d
		}
	}
}

type MediaClock struct {
	mu       sync.Mutex
	now      func() time.Time
	base     time.Duration // position at anchor
	anchor   time.Time
	playing  bool
	duration time.Duration // zero until known
	rate     float64

	onPlay  []func()
	onPause []func()
}

func NewMediaClock(opts ...Option) *MediaClock {
	c := &MediaClock{
		now:  time.Now,
		rate: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// registers fn to run after every paused -> playing transition
func (c *MediaClock) OnPlay(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPlay = append(c.onPlay, fn)
}

// registers fn to run after every playing -> paused transition, including
// playback reaching the end of the media
func (c *MediaClock) OnPause(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPause = append(c.onPause, fn)
}

func (c *MediaClock) Position() time.Duration {
	c.mu.Lock()
	pos, ended := c.positionLocked()
	listeners := c.endLocked(ended)
	c.mu.Unlock()

	fire(listeners)
	return pos
}

func (c *MediaClock) Paused() bool {
	c.mu.Lock()
	_, ended := c.positionLocked()
	listeners := c.endLocked(ended)
	paused := !c.playing
	c.mu.Unlock()

	fire(listeners)
	return paused
}

func (c *MediaClock) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// true when paused at the end of known media
func (c *MediaClock) Ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, ended := c.positionLocked()
	return ended || (!c.playing && c.duration > 0 && pos >= c.duration)
}

// Play starts playback. Playing from the end restarts at zero, like a media
// element does. Returns false if already playing.
func (c *MediaClock) Play() bool {
	c.mu.Lock()
	if c.playing {
		c.mu.Unlock()
		return false
	}
	if c.duration > 0 && c.base >= c.duration {
		c.base = 0
	}
	c.playing = true
	c.anchor = c.now()
	listeners := append([]func(){}, c.onPlay...)
	c.mu.Unlock()

	fire(listeners)
	return true
}

// Pause freezes the position. Returns false if already paused.
func (c *MediaClock) Pause() bool {
	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return false
	}
	pos, _ := c.positionLocked()
	c.base = pos
	c.playing = false
	listeners := append([]func(){}, c.onPause...)
	c.mu.Unlock()

	fire(listeners)
	return true
}

// Seek moves the position, clamped to [0, duration] when duration is known.
func (c *MediaClock) Seek(pos time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos = c.clampLocked(pos)
	c.base = pos
	c.anchor = c.now()
	return pos
}

func (c *MediaClock) SetDuration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	pos, _ := c.positionLocked()
	c.duration = d
	c.base = c.clampLocked(pos)
	c.anchor = c.now()
}

// SetRate changes the playback speed; non-positive rates are ignored.
func (c *MediaClock) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, _ := c.positionLocked()
	c.base = pos
	c.anchor = c.now()
	c.rate = rate
}

func (c *MediaClock) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// second result reports that playback ran past the end
func (c *MediaClock) positionLocked() (time.Duration, bool) {
	if !c.playing {
		return c.base, false
	}
	elapsed := float64(c.now().Sub(c.anchor)) * c.rate
	pos := c.base + time.Duration(elapsed)
	if c.duration > 0 && pos >= c.duration {
		return c.duration, true
	}
	return pos, false
}

// stops playback at the end and hands back the pause listeners to fire
func (c *MediaClock) endLocked(ended bool) []func() {
	if !ended || !c.playing {
		return nil
	}
	c.base = c.duration
	c.playing = false
	return append([]func(){}, c.onPause...)
}

func (c *MediaClock) clampLocked(pos time.Duration) time.Duration {
	if pos < 0 {
		return 0
	}
	if c.duration > 0 && pos > c.duration {
		return c.duration
	}
	return pos
}

func fire(listeners []func()) {
	for _, fn := range listeners {
		fn()
	}
}
