package playback

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/multitrack/internal/domain/audio"
	"github.com/osa030/multitrack/internal/domain/track"
)

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	at        time.Duration
	seq       int
	f         func()
	cancelled bool
	fired     bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	t := &fakeTimer{at: c.now + d, seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		t.cancelled = true
	}
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.cancelled && !t.fired && t.at <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at != due[j].at {
				return due[i].at < due[j].at
			}
			return due[i].seq < due[j].seq
		})
		next := due[0]
		next.fired = true
		c.now = next.at
		c.mu.Unlock()

		next.f()
	}
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.cancelled && !t.fired {
			n++
		}
	}
	return n
}

type fakeVoice struct {
	mu      sync.Mutex
	playing bool
	pos     time.Duration
	plays   int
	seeks   []time.Duration
	closed  bool
	playErr error
}

func (v *fakeVoice) Play() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.playErr != nil {
		return v.playErr
	}
	v.playing = true
	v.plays++
	return nil
}

func (v *fakeVoice) Pause() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.playing = false
}

func (v *fakeVoice) Seek(pos time.Duration) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pos = pos
	v.seeks = append(v.seeks, pos)
	return nil
}

func (v *fakeVoice) Position() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pos
}

func (v *fakeVoice) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

func (v *fakeVoice) isPlaying() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playing
}

type fakeSource struct {
	mu      sync.Mutex
	voices  []*fakeVoice
	playErr error
}

func (s *fakeSource) Resolve(ctx context.Context) (time.Duration, error) {
	return 0, nil
}

func (s *fakeSource) NewVoice() (audio.Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := &fakeVoice{playErr: s.playErr}
	s.voices = append(s.voices, v)
	return v, nil
}

func (s *fakeSource) last() *fakeVoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.voices) == 0 {
		return nil
	}
	return s.voices[len(s.voices)-1]
}

type mockTimeline struct {
	duration time.Duration
}

func (m *mockTimeline) Duration() time.Duration {
	return m.duration
}

type mockInstances struct {
	instances []track.Instance
}

func (m *mockInstances) Instances() []track.Instance {
	return append([]track.Instance(nil), m.instances...)
}

type mockTracks map[string]track.Track

func (m mockTracks) Get(name string) (track.Track, bool) {
	t, ok := m[name]
	return t, ok
}

type fixture struct {
	clock     *fakeClock
	timeline  *mockTimeline
	instances *mockInstances
	tracks    mockTracks
	sched     *Scheduler
}

func newFixture() *fixture {
	f := &fixture{
		clock:     &fakeClock{},
		timeline:  &mockTimeline{duration: 40 * time.Second},
		instances: &mockInstances{},
		tracks:    mockTracks{},
	}
	f.sched = NewScheduler(Config{Clock: f.clock}, f.timeline, f.instances, f.tracks)
	return f
}

// place adds a track with its own source and one instance of it.
func (f *fixture) place(id int, name string, start, duration time.Duration) *fakeSource {
	src := &fakeSource{}
	f.tracks[name] = track.Track{Name: name, Duration: duration, Source: src}
	f.instances.instances = append(f.instances.instances, track.Instance{
		ID: id, TrackName: name, Start: start, Duration: duration,
	})
	return src
}

func drain(s *Scheduler) []Event {
	var out []Event
	for {
		select {
		case e, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

func hasEvent(events []Event, typ EventType) bool {
	for _, e := range events {
		if e.Type == typ {
			return true
		}
	}
	return false
}

func TestScheduler_DeferredStart(t *testing.T) {
	f := newFixture()
	kick := f.place(1, "kick", 38*time.Second, 2*time.Second)

	require.NoError(t, f.sched.Play())
	assert.Equal(t, StatePlaying, f.sched.State())

	v := kick.last()
	require.NotNil(t, v)
	assert.False(t, v.isPlaying())
	assert.Equal(t, []time.Duration{0}, v.seeks)

	f.clock.Advance(37900 * time.Millisecond)
	assert.False(t, v.isPlaying())
	assert.Equal(t, 37900*time.Millisecond, f.sched.Playhead())

	f.clock.Advance(100 * time.Millisecond)
	assert.True(t, v.isPlaying())
	assert.Equal(t, 38*time.Second, f.sched.Playhead())
	assert.Equal(t, time.Duration(0), v.Position())
}

func TestScheduler_ImmediateStartAtOffset(t *testing.T) {
	f := newFixture()
	kick := f.place(1, "kick", 38*time.Second, 2*time.Second)

	assert.Equal(t, 39*time.Second, f.sched.Seek(39*time.Second))
	require.NoError(t, f.sched.Play())

	v := kick.last()
	require.NotNil(t, v)
	assert.True(t, v.isPlaying())
	assert.Equal(t, time.Second, v.Position())
	assert.Equal(t, 1, f.clock.Pending(), "only the tick should be pending")
}

func TestScheduler_SkipsElapsedInstance(t *testing.T) {
	f := newFixture()
	kick := f.place(1, "kick", 0, 2*time.Second)

	f.sched.Seek(2 * time.Second)
	require.NoError(t, f.sched.Play())

	assert.Nil(t, kick.last(), "no voice for an instance whose window is over")
	assert.Empty(t, f.sched.handles)
}

func TestScheduler_PauseCancelsPendingStarts(t *testing.T) {
	f := newFixture()
	pad := f.place(1, "pad", 10*time.Second, 5*time.Second)

	require.NoError(t, f.sched.Play())
	f.clock.Advance(time.Second)
	require.NoError(t, f.sched.Pause())

	assert.Equal(t, StateStopped, f.sched.State())
	assert.Equal(t, 0, f.clock.Pending())

	f.clock.Advance(30 * time.Second)
	v := pad.last()
	require.NotNil(t, v)
	assert.Equal(t, 0, v.plays)
	assert.Equal(t, time.Second, f.sched.Playhead(), "tick must be stopped")
}

func TestScheduler_PauseKeepsVoices(t *testing.T) {
	f := newFixture()
	loop := f.place(1, "loop", 0, 20*time.Second)

	require.NoError(t, f.sched.Play())
	f.clock.Advance(2 * time.Second)
	require.NoError(t, f.sched.Pause())

	v := loop.last()
	assert.False(t, v.isPlaying())
	assert.False(t, v.closed)

	require.NoError(t, f.sched.Play())
	assert.Same(t, v, loop.last(), "voice reused across pause")
	assert.True(t, v.isPlaying())
	assert.Equal(t, 2*time.Second, v.Position())
}

func TestScheduler_PauseWhenStopped(t *testing.T) {
	f := newFixture()
	err := f.sched.Pause()
	assert.True(t, errors.Is(err, ErrNotPlaying))
}

func TestScheduler_ReplayIsIdempotent(t *testing.T) {
	f := newFixture()
	ahead := f.place(1, "ahead", 5*time.Second, 2*time.Second)
	under := f.place(2, "under", 0, 10*time.Second)
	behind := f.place(3, "behind", 0, time.Second)

	f.sched.Seek(2 * time.Second)

	type decision struct {
		pending  bool
		playing  bool
		position time.Duration
	}
	snapshot := func() map[int]decision {
		out := make(map[int]decision)
		for id, h := range f.sched.handles {
			out[id] = decision{
				pending:  h.cancelStart != nil,
				playing:  h.voice.(*fakeVoice).isPlaying(),
				position: h.voice.Position(),
			}
		}
		return out
	}

	require.NoError(t, f.sched.Play())
	first := snapshot()
	require.NoError(t, f.sched.Pause())
	require.NoError(t, f.sched.Play())
	second := snapshot()

	assert.Equal(t, first, second)
	assert.Equal(t, decision{pending: true, position: 0}, first[1])
	assert.Equal(t, decision{playing: true, position: 2 * time.Second}, first[2])
	assert.NotContains(t, first, 3)

	assert.Len(t, ahead.voices, 1)
	assert.Len(t, under.voices, 1)
	assert.Empty(t, behind.voices)
}

func TestScheduler_Restart(t *testing.T) {
	tests := []struct {
		name    string
		playing bool
	}{
		{"while playing", true},
		{"while stopped", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			loop := f.place(1, "loop", 0, 20*time.Second)

			require.NoError(t, f.sched.Play())
			f.clock.Advance(3 * time.Second)
			if !tt.playing {
				require.NoError(t, f.sched.Pause())
			}

			f.sched.Restart()

			assert.Equal(t, time.Duration(0), f.sched.Playhead())
			assert.False(t, f.sched.IsPlaying())
			assert.Equal(t, time.Duration(0), loop.last().Position())
			assert.False(t, loop.last().isPlaying())
			assert.Equal(t, 0, f.clock.Pending())
		})
	}
}

func TestScheduler_SeekClamps(t *testing.T) {
	f := newFixture()

	assert.Equal(t, time.Duration(0), f.sched.Seek(-time.Second))
	assert.Equal(t, 40*time.Second, f.sched.Seek(100*time.Second))
	assert.Equal(t, 12300*time.Millisecond, f.sched.Seek(12300*time.Millisecond))
}

func TestScheduler_SeekWhilePlayingLeavesVoices(t *testing.T) {
	f := newFixture()
	loop := f.place(1, "loop", 0, 20*time.Second)

	require.NoError(t, f.sched.Play())
	v := loop.last()
	seeks := len(v.seeks)

	f.sched.Seek(15 * time.Second)
	assert.True(t, f.sched.IsPlaying())
	assert.True(t, v.isPlaying())
	assert.Len(t, v.seeks, seeks)

	// The tick continues from the new position.
	f.clock.Advance(time.Second)
	assert.Equal(t, 16*time.Second, f.sched.Playhead())
}

func TestScheduler_AutoStopAtEnd(t *testing.T) {
	f := newFixture()
	f.timeline.duration = time.Second
	loop := f.place(1, "loop", 0, time.Second)

	require.NoError(t, f.sched.Play())
	drain(f.sched)

	f.clock.Advance(2 * time.Second)

	assert.Equal(t, StateStopped, f.sched.State())
	assert.Equal(t, time.Second, f.sched.Playhead())
	assert.Equal(t, 0, f.clock.Pending())
	assert.False(t, loop.last().isPlaying())
	assert.True(t, hasEvent(drain(f.sched), EventEnded))
}

func TestScheduler_FixedStepAdvance(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.sched.Play())
	f.clock.Advance(1050 * time.Millisecond)
	assert.Equal(t, time.Second, f.sched.Playhead())
}

func TestScheduler_ReleaseCancelsDeferredStart(t *testing.T) {
	f := newFixture()
	kick := f.place(1, "kick", 5*time.Second, time.Second)

	require.NoError(t, f.sched.Play())
	h := f.sched.handles[1]
	require.NotNil(t, h)
	session := f.sched.session

	f.sched.Release(1)
	v := kick.last()
	assert.True(t, v.closed)
	assert.NotContains(t, f.sched.handles, 1)

	// A callback that raced the cancel finds no handle.
	f.sched.onDeferredStart(session, 1, h)
	assert.Equal(t, 0, v.plays)

	f.clock.Advance(10 * time.Second)
	assert.Equal(t, 0, v.plays)
	assert.True(t, f.sched.IsPlaying())

	// Releasing twice is harmless.
	f.sched.Release(1)
}

func TestScheduler_StaleSessionCallbackIgnored(t *testing.T) {
	f := newFixture()
	kick := f.place(1, "kick", 5*time.Second, time.Second)

	require.NoError(t, f.sched.Play())
	h := f.sched.handles[1]
	oldSession := f.sched.session
	require.NoError(t, f.sched.Pause())
	require.NoError(t, f.sched.Play())

	f.sched.onDeferredStart(oldSession, 1, h)
	assert.Equal(t, 0, kick.last().plays)
	f.sched.onTick(oldSession)
	assert.Equal(t, time.Duration(0), f.sched.Playhead())
}

func TestScheduler_StartFailureIsolated(t *testing.T) {
	f := newFixture()
	bad := f.place(1, "bad", 0, 5*time.Second)
	bad.playErr = errors.New("autoplay rejected")
	good := f.place(2, "good", 0, 5*time.Second)

	require.NoError(t, f.sched.Play())

	assert.True(t, f.sched.IsPlaying())
	assert.True(t, good.last().isPlaying())

	var failed *Event
	for _, e := range drain(f.sched) {
		if e.Type == EventPlaybackFailed {
			e := e
			failed = &e
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, 1, failed.InstanceID)
	assert.True(t, errors.Is(failed.Err, ErrPlaybackStartFailed))
}

func TestScheduler_MissingTrackReported(t *testing.T) {
	f := newFixture()
	f.instances.instances = append(f.instances.instances, track.Instance{
		ID: 7, TrackName: "gone", Start: 0, Duration: time.Second,
	})

	require.NoError(t, f.sched.Play())
	assert.True(t, f.sched.IsPlaying())
	assert.True(t, hasEvent(drain(f.sched), EventPlaybackFailed))
}

func TestScheduler_SeekingState(t *testing.T) {
	f := newFixture()

	f.sched.BeginSeeking()
	assert.Equal(t, StateSeeking, f.sched.State())
	f.sched.EndSeeking()
	assert.Equal(t, StateStopped, f.sched.State())

	require.NoError(t, f.sched.Play())
	f.sched.BeginSeeking()
	assert.Equal(t, StatePlaying, f.sched.State(), "no seeking state while playing")
}

func TestScheduler_Close(t *testing.T) {
	f := newFixture()
	loop := f.place(1, "loop", 0, 5*time.Second)

	require.NoError(t, f.sched.Play())
	f.sched.Close()

	assert.True(t, loop.last().closed)
	assert.Equal(t, 0, f.clock.Pending())
	assert.True(t, errors.Is(f.sched.Play(), ErrClosed))

	drain(f.sched)
	_, ok := <-f.sched.Events()
	assert.False(t, ok)

	f.sched.Close()
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "playing", StatePlaying.String())
	assert.Equal(t, "seeking", StateSeeking.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.Equal(t, "instance_started", EventInstanceStarted.String())
}

func TestWallClock_AfterFunc(t *testing.T) {
	fired := make(chan struct{}, 1)
	WallClock{}.AfterFunc(5*time.Millisecond, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	cancelled := make(chan struct{}, 1)
	cancel := WallClock{}.AfterFunc(50*time.Millisecond, func() { cancelled <- struct{}{} })
	cancel()
	cancel()

	select {
	case <-cancelled:
		t.Fatal("cancelled timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}
