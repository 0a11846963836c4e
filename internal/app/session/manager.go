// Package session provides the session manager.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/multitrack/internal/app/interaction"
	"github.com/osa030/multitrack/internal/app/notification"
	"github.com/osa030/multitrack/internal/app/placement"
	"github.com/osa030/multitrack/internal/app/playback"
	"github.com/osa030/multitrack/internal/app/registry"
	"github.com/osa030/multitrack/internal/app/timeline"
	"github.com/osa030/multitrack/internal/domain/track"
	"github.com/osa030/multitrack/internal/infra/config"
)

var (
	ErrNothingToPlay = errors.New("no track instances to play")
	ErrClosed        = errors.New("session is closed")
)

// Snapshot is a point-in-time view of the session for rendering.
type Snapshot struct {
	Playhead  time.Duration
	IsPlaying bool
	State     playback.State
	Duration  time.Duration
	Tracks    []track.Track
	Instances []track.Instance

	// Last rejection texts; cleared by the next success.
	DurationMessage string
	UploadMessage   string
}

// Manager owns the timeline components and routes every user action.
type Manager struct {
	mu sync.RWMutex

	// Configuration
	config *config.Config

	// Components
	tracks       *registry.AssetRegistry
	timeline     *timeline.Config
	placement    *placement.Manager
	playback     *playback.Scheduler
	interaction  *interaction.Controller
	notification *notification.Manager

	// User-facing messages
	durationMsg string
	uploadMsg   string

	// Channels
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewManager creates a new session manager. A nil clock runs on wall time.
func NewManager(cfg *config.Config, clock playback.Clock) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	tracks := registry.NewAssetRegistry()
	tl := timeline.New(cfg.DefaultDuration())
	pl := placement.NewManager(tracks, tl)
	sched := playback.NewScheduler(playback.Config{
		Step:  cfg.TickInterval(),
		Clock: clock,
	}, tl, pl, tracks)

	m := &Manager{
		config:       cfg,
		tracks:       tracks,
		timeline:     tl,
		placement:    pl,
		playback:     sched,
		interaction:  interaction.NewController(sched, pl, tl),
		notification: notification.NewManager(),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	tracks.OnReady(m.onTrackReady)

	go m.forwardEvents()

	zlog.Debug().Msgf("session: created: duration=%v step=%v", tl.Duration(), cfg.TickInterval())
	return m
}

// forwardEvents relays scheduler events to subscribers until the scheduler closes.
func (m *Manager) forwardEvents() {
	defer close(m.done)

	for e := range m.playback.Events() {
		if e.Type == playback.EventPlaybackFailed {
			zlog.Warn().Msgf("session: instance %d failed to start: %v", e.InstanceID, e.Err)
		}
		m.notification.Broadcast(notification.Notification{
			Kind:  notification.KindPlayback,
			Event: e,
		})
	}
}

// Subscribe registers a notification stream and returns its ID.
func (m *Manager) Subscribe(stream notification.Stream) string {
	return m.notification.Subscribe(stream)
}

// Unsubscribe removes a notification stream.
func (m *Manager) Unsubscribe(id string) {
	m.notification.Unsubscribe(id)
}

// Upload starts uploading a track. Rejections and decode failures set the
// upload message.
func (m *Manager) Upload(ctx context.Context, u registry.Upload) (*registry.Pending, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}

	p, err := m.tracks.Upload(ctx, u)
	if err != nil {
		code := "upload_failed"
		if errors.Is(err, registry.ErrDuplicateName) {
			code = "duplicate_name"
		}
		m.uploadFailed(track.NameFromFile(u.Filename), m.config.GetMessage(code))
		zlog.Info().Msgf("session: upload rejected: file=%s err=%v", u.Filename, err)
		return nil, err
	}

	go m.watchUpload(p)
	return p, nil
}

func (m *Manager) watchUpload(p *registry.Pending) {
	select {
	case <-p.Done():
	case <-m.ctx.Done():
		return
	}
	if _, err := p.Wait(context.Background()); err != nil {
		m.uploadFailed(p.Name(), m.config.GetMessage("upload_failed"))
	}
}

func (m *Manager) uploadFailed(name, msg string) {
	m.mu.Lock()
	m.uploadMsg = msg
	m.mu.Unlock()

	m.notification.Broadcast(notification.Notification{
		Kind:      notification.KindUploadFailed,
		TrackName: name,
		Message:   msg,
	})
}

func (m *Manager) onTrackReady(t track.Track) {
	m.mu.Lock()
	m.uploadMsg = ""
	m.mu.Unlock()

	m.notification.Broadcast(notification.Notification{
		Kind:      notification.KindTrackReady,
		TrackName: t.Name,
	})
}

// RemoveTrack removes a track and every instance of it.
func (m *Manager) RemoveTrack(name string) bool {
	ids := m.placement.RemoveAllOfTrack(name)
	for _, id := range ids {
		m.playback.Release(id)
	}
	if !m.tracks.Remove(name) {
		return false
	}

	zlog.Info().Msgf("session: track removed: name=%s instances=%v", name, ids)
	m.notification.Broadcast(notification.Notification{
		Kind:      notification.KindTrackRemoved,
		TrackName: name,
	})
	return true
}

// CreateInstance places a new instance of the named track at 0.
// A track longer than the timeline sets the duration message.
func (m *Manager) CreateInstance(trackName string) (track.Instance, error) {
	inst, err := m.placement.Create(trackName)
	if err != nil {
		if errors.Is(err, placement.ErrTrackTooLong) {
			m.durationRejected(m.config.GetMessage("track_too_long"))
		}
		return inst, err
	}

	m.setDurationMessage("")
	m.resync()
	m.instancesChanged(trackName)
	return inst, nil
}

// RemoveInstance removes one instance.
func (m *Manager) RemoveInstance(id int) bool {
	inst, ok := m.placement.Get(id)
	if !ok {
		return false
	}
	m.playback.Release(id)
	if !m.placement.Remove(id) {
		return false
	}
	m.instancesChanged(inst.TrackName)
	return true
}

// MoveInstance repositions an instance. The start is clamped to the timeline.
func (m *Manager) MoveInstance(id int, start time.Duration) (track.Instance, error) {
	inst, err := m.placement.Move(id, start)
	if err != nil {
		return inst, err
	}
	m.resync()
	m.instancesChanged(inst.TrackName)
	return inst, nil
}

// resync restarts a running playback so every voice is realigned with the
// current placements. It does nothing while stopped.
func (m *Manager) resync() {
	if err := m.playback.Pause(); err != nil {
		return
	}
	if err := m.playback.Play(); err != nil {
		zlog.Warn().Msgf("session: failed to resume after placement change: %v", err)
	}
}

func (m *Manager) instancesChanged(trackName string) {
	m.notification.Broadcast(notification.Notification{
		Kind:      notification.KindInstancesChanged,
		TrackName: trackName,
	})
}

// SetDuration changes the timeline duration. Rejections set the duration
// message and leave the duration unchanged.
func (m *Manager) SetDuration(d time.Duration) error {
	if limit := m.config.MaxDuration(); d > limit {
		m.durationRejected(m.config.GetMessage("duration_too_long", limit.Seconds()))
		return errors.Wrapf(timeline.ErrInvalidDuration, "%v exceeds the maximum of %v", d, limit)
	}

	if err := m.timeline.SetDuration(d, m.placement.Instances()); err != nil {
		var tooShort *timeline.TooShortError
		switch {
		case errors.As(err, &tooShort):
			m.durationRejected(m.config.GetMessage("duration_too_short", tooShort.Longest.Seconds()))
		case errors.Is(err, timeline.ErrInvalidDuration):
			m.durationRejected(m.config.GetMessage("invalid_duration"))
		default:
			m.durationRejected(m.config.GetMessage(""))
		}
		return err
	}

	if m.playback.Playhead() > d {
		m.playback.Seek(d)
	}

	m.setDurationMessage("")
	m.notification.Broadcast(notification.Notification{Kind: notification.KindDurationChanged})
	return nil
}

func (m *Manager) durationRejected(msg string) {
	m.setDurationMessage(msg)
	m.notification.Broadcast(notification.Notification{
		Kind:    notification.KindDurationChanged,
		Message: msg,
	})
}

func (m *Manager) setDurationMessage(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durationMsg = msg
}

// Play starts playback from the current playhead.
func (m *Manager) Play() error {
	return m.playback.Play()
}

// Pause pauses playback.
func (m *Manager) Pause() error {
	return m.playback.Pause()
}

// TogglePlayback plays when stopped and pauses when playing.
// It is disabled while there are no instances.
func (m *Manager) TogglePlayback() error {
	if m.placement.Len() == 0 {
		return ErrNothingToPlay
	}
	if m.playback.IsPlaying() {
		return m.playback.Pause()
	}
	return m.playback.Play()
}

// Restart rewinds to 0 without resuming.
func (m *Manager) Restart() {
	m.playback.Restart()
}

// Seek moves the playhead and returns the clamped position.
func (m *Manager) Seek(t time.Duration) time.Duration {
	return m.playback.Seek(t)
}

// Interaction returns the drag controller bound to this session.
func (m *Manager) Interaction() *interaction.Controller {
	return m.interaction
}

// Snapshot returns the current state for rendering.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	durationMsg, uploadMsg := m.durationMsg, m.uploadMsg
	m.mu.RUnlock()

	state := m.playback.State()
	return Snapshot{
		Playhead:        m.playback.Playhead(),
		IsPlaying:       state == playback.StatePlaying,
		State:           state,
		Duration:        m.timeline.Duration(),
		Tracks:          m.tracks.List(),
		Instances:       m.placement.Instances(),
		DurationMessage: durationMsg,
		UploadMessage:   uploadMsg,
	}
}

// Close stops playback, releases every voice and drops all subscribers.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.interaction.EndActive()
	m.playback.Close()
	<-m.done
	m.notification.Close()

	zlog.Debug().Msgf("session: closed")
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
