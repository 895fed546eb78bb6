package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mgpai22/lipistudio/internal/playback"
	"github.com/mgpai22/lipistudio/internal/subtitle"
	"github.com/mgpai22/lipistudio/internal/syncengine"
	"github.com/mgpai22/lipistudio/internal/transcript"
)

// Session is one open editor: a transcript bound to a playback clock.
type Session struct {
	ID        string
	Name      string
	CreatedAt time.Time

	Store  *transcript.Store
	Clock  *playback.MediaClock
	Engine *syncengine.Engine

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// runs the frame callbacks of a scheduler until ctx is done
type runner interface {
	Run(ctx context.Context)
}

type snapshot struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Version  uint64             `json:"version"`
	Segments []subtitle.Segment `json:"segments"`
	Frame    syncengine.Frame   `json:"frame"`
}

func (s *Session) snapshot() snapshot {
	return snapshot{
		ID:       s.ID,
		Name:     s.Name,
		Version:  s.Store.Version(),
		Segments: s.Store.Segments(),
		Frame:    s.Engine.Sync(),
	}
}

// SeekTo moves the clock and pushes one frame so observers see the new
// caption even while paused.
func (s *Session) SeekTo(pos time.Duration) syncengine.Frame {
	s.Clock.Seek(pos)
	return s.Engine.Sync()
}

// Done is closed once the session is deleted.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.Clock.Pause()
		if s.cancel != nil {
			s.cancel()
		}
		close(s.done)
	})
}

type sessionOptions struct {
	now       func() time.Time
	scheduler func() syncengine.FrameScheduler
}

// Sessions is the in-memory session registry.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     sessionOptions
	onChange func(n int)
}

func newSessions(opts sessionOptions) *Sessions {
	if opts.now == nil {
		opts.now = time.Now
	}
	return &Sessions{
		sessions: make(map[string]*Session),
		opts:     opts,
	}
}

func (m *Sessions) Create(name string, duration time.Duration, segments []subtitle.Segment) *Session {
	clock := playback.NewMediaClock(
		playback.WithNow(m.opts.now),
		playback.WithDuration(duration),
	)
	store := transcript.NewStore(transcript.AssignIDs(segments))

	sched := m.opts.scheduler()
	engine := syncengine.New(clock, store, sched)
	clock.OnPlay(engine.Start)

	ctx, cancel := context.WithCancel(context.Background())
	if r, ok := sched.(runner); ok {
		go r.Run(ctx)
	}

	sess := &Session{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: m.opts.now(),
		Store:     store,
		Clock:     clock,
		Engine:    engine,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	engine.Sync()

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	n := len(m.sessions)
	m.mu.Unlock()

	m.changed(n)
	return sess
}

func (m *Sessions) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

func (m *Sessions) Delete(id string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return false
	}
	sess.close()
	m.changed(n)
	return true
}

func (m *Sessions) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll stops every session's frame loop.
func (m *Sessions) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range all {
		sess.close()
	}
	m.changed(0)
}

func (m *Sessions) changed(n int) {
	if m.onChange != nil {
		m.onChange(n)
	}
}
