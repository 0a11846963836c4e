package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/multitrack/internal/domain/audio"
	"github.com/osa030/multitrack/internal/domain/track"
)

// Errors
var (
	ErrNotPlaying          = errors.New("not playing")
	ErrPlaybackStartFailed = errors.New("playback start failed")
	ErrClosed              = errors.New("scheduler closed")
)

// DefaultStep is both the tick period and the playhead advance per tick.
const DefaultStep = 100 * time.Millisecond

// Config holds scheduler configuration.
type Config struct {
	Step  time.Duration // Tick period and fixed playhead advance
	Clock Clock         // Defaults to WallClock
}

// Timeline provides the current timeline duration.
type Timeline interface {
	Duration() time.Duration
}

// Instances provides the current placements.
type Instances interface {
	Instances() []track.Instance
}

// Tracks resolves the track an instance refers to.
type Tracks interface {
	Get(name string) (track.Track, bool)
}

// handle is the runtime state of one instance during a session.
type handle struct {
	voice       audio.Voice
	cancelStart func() // Pending deferred start, nil when none
}

// Scheduler owns the playhead and every live voice and pending timer.
type Scheduler struct {
	mu sync.Mutex

	config    Config
	timeline  Timeline
	instances Instances
	tracks    Tracks

	state    State
	playhead time.Duration

	// Keyed by instance ID; at most one pending timer per instance.
	handles    map[int]*handle
	tickCancel func()

	// Incremented whenever timers are invalidated, so callbacks from an
	// older session are dropped.
	session uint64

	eventCh chan Event
	ctx     context.Context
	cancel  context.CancelFunc
	closed  bool
}

// NewScheduler creates a new playhead scheduler.
func NewScheduler(cfg Config, timeline Timeline, instances Instances, tracks Tracks) *Scheduler {
	if cfg.Step <= 0 {
		cfg.Step = DefaultStep
	}
	if cfg.Clock == nil {
		cfg.Clock = WallClock{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		config:    cfg,
		timeline:  timeline,
		instances: instances,
		tracks:    tracks,
		state:     StateStopped,
		handles:   make(map[int]*handle),
		eventCh:   make(chan Event, 64),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Events returns the event channel.
func (s *Scheduler) Events() <-chan Event {
	return s.eventCh
}

// Play starts playback from the current playhead. Every instance is either
// started immediately at the right offset, scheduled to start later, or
// skipped when its window is already over.
func (s *Scheduler) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.state == StatePlaying {
		return nil
	}

	s.session++
	session := s.session
	s.state = StatePlaying

	zlog.Debug().Msgf("playback: play: playhead=%v session=%d", s.playhead, session)

	for _, inst := range s.instances.Instances() {
		s.scheduleInstanceLocked(session, inst)
	}
	s.scheduleTickLocked(session)

	s.sendEventLocked(Event{Type: EventStarted})
	return nil
}

// Pause stops the tick, cancels pending starts and pauses every voice.
// Voices keep their position and are reused by the next Play.
func (s *Scheduler) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePlaying {
		return ErrNotPlaying
	}

	s.stopLocked()
	s.sendEventLocked(Event{Type: EventPaused})
	return nil
}

// Restart pauses if needed, rewinds the playhead and every voice to 0.
// It never resumes playback.
func (s *Scheduler) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StatePlaying {
		s.stopLocked()
	}
	s.playhead = 0

	for id, h := range s.handles {
		if err := h.voice.Seek(0); err != nil {
			zlog.Warn().Msgf("playback: rewind failed: instance=%d err=%v", id, err)
		}
	}

	s.sendEventLocked(Event{Type: EventRestarted})
}

// Seek moves the playhead, clamped to the timeline. Live voices are not
// touched; they are resynchronised by the next Play.
func (s *Scheduler) Seek(t time.Duration) time.Duration {
	limit := s.timeline.Duration()
	if t < 0 {
		t = 0
	}
	if t > limit {
		t = limit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.playhead = t
	s.sendEventLocked(Event{Type: EventSeeked})
	return t
}

// BeginSeeking marks a drag in progress. It has no effect while playing.
func (s *Scheduler) BeginSeeking() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped {
		s.state = StateSeeking
	}
}

// EndSeeking leaves the seeking state.
func (s *Scheduler) EndSeeking() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateSeeking {
		s.state = StateStopped
	}
}

// Release drops the handle of an instance that is being removed.
// The handle leaves the map before its timer is cancelled, so a timer
// that fires concurrently finds nothing to start.
func (s *Scheduler) Release(instanceID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked(instanceID)
}

func (s *Scheduler) releaseLocked(instanceID int) {
	h, ok := s.handles[instanceID]
	if !ok {
		return
	}
	delete(s.handles, instanceID)

	if h.cancelStart != nil {
		h.cancelStart()
		h.cancelStart = nil
	}
	h.voice.Pause()
	if err := h.voice.Close(); err != nil {
		zlog.Warn().Msgf("playback: close voice failed: instance=%d err=%v", instanceID, err)
	}

	zlog.Debug().Msgf("playback: released instance=%d", instanceID)
}

// Playhead returns the current playhead position.
func (s *Scheduler) Playhead() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playhead
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsPlaying returns true while playing.
func (s *Scheduler) IsPlaying() bool {
	return s.State() == StatePlaying
}

// Close stops playback, releases every voice and closes the event channel.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.cancel()
	if s.state == StatePlaying {
		s.stopLocked()
	}
	for id := range s.handles {
		s.releaseLocked(id)
	}
	s.closed = true
	close(s.eventCh)
}

// scheduleInstanceLocked decides what one instance does in this session.
// Must be called with lock held.
func (s *Scheduler) scheduleInstanceLocked(session uint64, inst track.Instance) {
	delta := inst.Start - s.playhead

	switch {
	case delta > 0:
		h, err := s.handleLocked(inst)
		if err != nil {
			s.reportFailureLocked(inst.ID, err)
			return
		}
		if err := h.voice.Seek(0); err != nil {
			s.reportFailureLocked(inst.ID, err)
			return
		}
		id := inst.ID
		h.cancelStart = s.config.Clock.AfterFunc(delta, func() {
			s.onDeferredStart(session, id, h)
		})
		zlog.Debug().Msgf("playback: deferred start: instance=%d in=%v", inst.ID, delta)

	case -delta < inst.Duration:
		h, err := s.handleLocked(inst)
		if err != nil {
			s.reportFailureLocked(inst.ID, err)
			return
		}
		if err := h.voice.Seek(-delta); err != nil {
			s.reportFailureLocked(inst.ID, err)
			return
		}
		s.startVoiceLocked(inst.ID, h)

	default:
		zlog.Debug().Msgf("playback: skipped instance=%d (ended at %v)", inst.ID, inst.End())
	}
}

// handleLocked returns the handle for an instance, opening a voice on first use.
// Must be called with lock held.
func (s *Scheduler) handleLocked(inst track.Instance) (*handle, error) {
	if h, ok := s.handles[inst.ID]; ok {
		if h.cancelStart != nil {
			h.cancelStart()
			h.cancelStart = nil
		}
		return h, nil
	}

	t, ok := s.tracks.Get(inst.TrackName)
	if !ok || t.Source == nil {
		return nil, errors.Newf("track %q is not available", inst.TrackName)
	}
	voice, err := t.Source.NewVoice()
	if err != nil {
		return nil, errors.Wrapf(err, "open voice for %q", inst.TrackName)
	}

	h := &handle{voice: voice}
	s.handles[inst.ID] = h
	return h, nil
}

func (s *Scheduler) onDeferredStart(session uint64, instanceID int, h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != session || s.state != StatePlaying {
		return
	}
	if cur, ok := s.handles[instanceID]; !ok || cur != h {
		return
	}

	h.cancelStart = nil
	s.startVoiceLocked(instanceID, h)
}

// startVoiceLocked starts a voice. Failures are reported and do not affect
// other instances. Must be called with lock held.
func (s *Scheduler) startVoiceLocked(instanceID int, h *handle) {
	if err := h.voice.Play(); err != nil {
		s.reportFailureLocked(instanceID, err)
		return
	}
	s.sendEventLocked(Event{Type: EventInstanceStarted, InstanceID: instanceID})
}

// reportFailureLocked must be called with lock held.
func (s *Scheduler) reportFailureLocked(instanceID int, err error) {
	err = errors.Mark(errors.Wrapf(err, "instance %d", instanceID), ErrPlaybackStartFailed)
	zlog.Warn().Msgf("playback: start failed: instance=%d err=%v", instanceID, err)
	s.sendEventLocked(Event{Type: EventPlaybackFailed, InstanceID: instanceID, Err: err})
}

// scheduleTickLocked must be called with lock held.
func (s *Scheduler) scheduleTickLocked(session uint64) {
	s.tickCancel = s.config.Clock.AfterFunc(s.config.Step, func() {
		s.onTick(session)
	})
}

// onTick advances the playhead by one fixed step, not by elapsed time.
func (s *Scheduler) onTick(session uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != session || s.state != StatePlaying {
		return
	}
	s.tickCancel = nil

	limit := s.timeline.Duration()
	next := s.playhead + s.config.Step
	if next >= limit {
		s.playhead = limit
		s.stopLocked()
		zlog.Debug().Msgf("playback: reached end of timeline at %v", limit)
		s.sendEventLocked(Event{Type: EventEnded})
		return
	}

	s.playhead = next
	s.sendEventLocked(Event{Type: EventTick})
	s.scheduleTickLocked(session)
}

// stopLocked cancels the tick and every pending start, pauses every voice
// and invalidates outstanding callbacks. Must be called with lock held.
func (s *Scheduler) stopLocked() {
	s.session++
	if s.tickCancel != nil {
		s.tickCancel()
		s.tickCancel = nil
	}
	for _, h := range s.handles {
		if h.cancelStart != nil {
			h.cancelStart()
			h.cancelStart = nil
		}
		h.voice.Pause()
	}
	s.state = StateStopped
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (s *Scheduler) sendEventLocked(e Event) {
	if s.closed {
		return
	}
	e.State = s.state
	e.Playhead = s.playhead

	select {
	case s.eventCh <- e:
	case <-s.ctx.Done():
	default:
		// Channel full, drop event
	}
}
