// Package placement maintains the track instances placed on the timeline.
package placement

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/multitrack/internal/domain/track"
)

var (
	ErrTrackNotFound    = errors.New("track not found")
	ErrTrackTooLong     = errors.New("track is longer than the timeline")
	ErrInstanceNotFound = errors.New("instance not found")
)

// TrackLookup resolves tracks by name.
type TrackLookup interface {
	Get(name string) (track.Track, bool)
}

// Timeline provides the current timeline duration.
type Timeline interface {
	Duration() time.Duration
}

// Manager holds the ordered set of instances.
type Manager struct {
	mu        sync.RWMutex
	tracks    TrackLookup
	timeline  Timeline
	instances []track.Instance
	lastID    int
}

// NewManager creates a new placement manager.
func NewManager(tracks TrackLookup, timeline Timeline) *Manager {
	return &Manager{
		tracks:    tracks,
		timeline:  timeline,
		instances: make([]track.Instance, 0),
	}
}

// Create places a new instance of the named track at 0.
// Duplicate instances of the same track are allowed.
func (m *Manager) Create(trackName string) (track.Instance, error) {
	t, ok := m.tracks.Get(trackName)
	if !ok {
		return track.Instance{}, errors.Wrapf(ErrTrackNotFound, "name %q", trackName)
	}

	limit := m.timeline.Duration()
	if t.Duration > limit {
		return track.Instance{}, errors.Wrapf(ErrTrackTooLong,
			"track %q is %v, timeline is %v", trackName, t.Duration, limit)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastID++
	inst := track.Instance{
		ID:        m.lastID,
		TrackName: t.Name,
		Color:     t.Color,
		Start:     0,
		Duration:  t.Duration,
	}
	m.instances = append(m.instances, inst)

	zlog.Debug().Msgf("placement: instance created: id=%d track=%s duration=%v", inst.ID, inst.TrackName, inst.Duration)
	return inst, nil
}

// Remove deletes an instance. Missing IDs are ignored.
func (m *Manager) Remove(id int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, inst := range m.instances {
		if inst.ID == id {
			m.instances = append(m.instances[:i], m.instances[i+1:]...)
			return true
		}
	}
	return false
}

// Move sets the start of an instance, clamped to keep it on the timeline.
// Overlapping other instances is allowed.
func (m *Manager) Move(id int, newStart time.Duration) (track.Instance, error) {
	limit := m.timeline.Duration()

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.instances {
		inst := &m.instances[i]
		if inst.ID != id {
			continue
		}
		inst.Start = clampStart(newStart, limit-inst.Duration)
		return *inst, nil
	}
	return track.Instance{}, errors.Wrapf(ErrInstanceNotFound, "id %d", id)
}

// clampStart clamps start to [0, latest]. 0 wins when latest is negative.
func clampStart(start, latest time.Duration) time.Duration {
	if start > latest {
		start = latest
	}
	if start < 0 {
		start = 0
	}
	return start
}

// RemoveAllOfTrack deletes every instance of the named track and returns
// the removed IDs.
func (m *Manager) RemoveAllOfTrack(trackName string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []int
	kept := m.instances[:0]
	for _, inst := range m.instances {
		if inst.TrackName == trackName {
			removed = append(removed, inst.ID)
			continue
		}
		kept = append(kept, inst)
	}
	m.instances = kept
	return removed
}

// Get returns the instance with the given ID.
func (m *Manager) Get(id int) (track.Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, inst := range m.instances {
		if inst.ID == id {
			return inst, true
		}
	}
	return track.Instance{}, false
}

// Instances returns a copy of the instances in creation order.
func (m *Manager) Instances() []track.Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]track.Instance, len(m.instances))
	copy(result, m.instances)
	return result
}

// Len returns the number of instances.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.instances)
}
