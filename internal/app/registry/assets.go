// Package registry provides the uploaded asset registry.
package registry

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/multitrack/internal/domain/audio"
	"github.com/osa030/multitrack/internal/domain/track"
)

var (
	ErrDuplicateName = errors.New("track already uploaded")
	ErrEmptyName     = errors.New("track name is empty")
)

// Upload describes a file handed over by the file picker.
type Upload struct {
	Filename string
	Source   audio.Source
	Title    string // Optional tag metadata
	Artist   string
}

// Pending is an upload whose duration is still being resolved.
type Pending struct {
	name  string
	done  chan struct{}
	track track.Track
	err   error
}

// Name returns the reserved track name.
func (p *Pending) Name() string {
	return p.name
}

// Done is closed once resolution has finished.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the upload resolves or ctx is done.
func (p *Pending) Wait(ctx context.Context) (track.Track, error) {
	select {
	case <-p.done:
		return p.track, p.err
	case <-ctx.Done():
		return track.Track{}, ctx.Err()
	}
}

// AssetRegistry manages uploaded tracks with thread-safe access.
type AssetRegistry struct {
	mu       sync.RWMutex
	tracks   map[string]track.Track
	order    []string
	inFlight map[string]*Pending
	onReady  func(track.Track)
}

// NewAssetRegistry creates a new asset registry.
func NewAssetRegistry() *AssetRegistry {
	return &AssetRegistry{
		tracks:   make(map[string]track.Track),
		inFlight: make(map[string]*Pending),
	}
}

// OnReady registers a callback invoked (outside the lock) whenever a track
// becomes visible.
func (r *AssetRegistry) OnReady(fn func(track.Track)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReady = fn
}

// Upload reserves the derived name and starts resolving the duration.
// The track is not visible until resolution succeeds.
func (r *AssetRegistry) Upload(ctx context.Context, u Upload) (*Pending, error) {
	name := track.NameFromFile(u.Filename)
	if name == "" {
		return nil, errors.Wrapf(ErrEmptyName, "file %q", u.Filename)
	}

	r.mu.Lock()
	_, exists := r.tracks[name]
	_, uploading := r.inFlight[name]
	if exists || uploading {
		r.mu.Unlock()
		return nil, errors.Wrapf(ErrDuplicateName, "name %q", name)
	}
	p := &Pending{name: name, done: make(chan struct{})}
	r.inFlight[name] = p
	r.mu.Unlock()

	t := track.Track{
		ID:     uuid.New().String(),
		Name:   name,
		Color:  track.RandomColor(),
		Title:  u.Title,
		Artist: u.Artist,
		Source: u.Source,
	}

	go r.resolve(ctx, p, t)

	return p, nil
}

func (r *AssetRegistry) resolve(ctx context.Context, p *Pending, t track.Track) {
	defer close(p.done)

	d, err := t.Source.Resolve(ctx)

	r.mu.Lock()
	delete(r.inFlight, p.name)
	if err != nil {
		r.mu.Unlock()
		p.err = errors.Wrapf(err, "failed to resolve duration of %q", p.name)
		zlog.Warn().Msgf("registry: upload failed: name=%s err=%v", p.name, err)
		return
	}
	t.Duration = d
	r.tracks[t.Name] = t
	r.order = append(r.order, t.Name)
	onReady := r.onReady
	r.mu.Unlock()

	p.track = t
	zlog.Info().Msgf("registry: track ready: name=%s duration=%v", t.Name, d)

	if onReady != nil {
		onReady(t)
	}
}

// Get retrieves a resolved track by name.
func (r *AssetRegistry) Get(name string) (track.Track, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tracks[name]
	return t, ok
}

// Remove deletes a track. Instances and playback handles are the caller's
// responsibility.
func (r *AssetRegistry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tracks[name]; !ok {
		return false
	}
	delete(r.tracks, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns resolved tracks in upload order.
func (r *AssetRegistry) List() []track.Track {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]track.Track, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.tracks[name])
	}
	return result
}

// Len returns the number of resolved tracks.
func (r *AssetRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tracks)
}
