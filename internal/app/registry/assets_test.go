package registry

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/multitrack/internal/domain/audio"
	"github.com/osa030/multitrack/internal/domain/track"
)

// mockSource resolves once release is closed.
type mockSource struct {
	duration time.Duration
	err      error
	release  chan struct{}
}

func newMockSource(d time.Duration) *mockSource {
	s := &mockSource{duration: d, release: make(chan struct{})}
	close(s.release)
	return s
}

func (s *mockSource) Resolve(ctx context.Context) (time.Duration, error) {
	select {
	case <-s.release:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return s.duration, s.err
}

func (s *mockSource) NewVoice() (audio.Voice, error) {
	return nil, errors.New("not implemented")
}

func waitReady(t *testing.T, p *Pending) track.Track {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	tr, err := p.Wait(ctx)
	require.NoError(t, err)
	return tr
}

func TestAssetRegistry_Upload(t *testing.T) {
	r := NewAssetRegistry()

	p, err := r.Upload(context.Background(), Upload{Filename: "kick.wav", Source: newMockSource(2 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, "kick", p.Name())

	tr := waitReady(t, p)
	assert.Equal(t, "kick", tr.Name)
	assert.Equal(t, 2*time.Second, tr.Duration)
	assert.NotEmpty(t, tr.ID)
	assert.NotEmpty(t, tr.Color)

	got, ok := r.Get("kick")
	require.True(t, ok)
	assert.Equal(t, tr.ID, got.ID)
}

func TestAssetRegistry_DuplicateName(t *testing.T) {
	r := NewAssetRegistry()

	p, err := r.Upload(context.Background(), Upload{Filename: "loop.wav", Source: newMockSource(time.Second)})
	require.NoError(t, err)
	first := waitReady(t, p)

	_, err = r.Upload(context.Background(), Upload{Filename: "loop.wav", Source: newMockSource(3 * time.Second)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateName))

	assert.Equal(t, 1, r.Len())
	got, _ := r.Get("loop")
	assert.Equal(t, first.ID, got.ID, "existing track must be untouched")
	assert.Equal(t, time.Second, got.Duration)
}

func TestAssetRegistry_DuplicateWhileResolving(t *testing.T) {
	r := NewAssetRegistry()

	slow := &mockSource{duration: time.Second, release: make(chan struct{})}
	p, err := r.Upload(context.Background(), Upload{Filename: "loop.mp3", Source: slow})
	require.NoError(t, err)

	// Not visible until resolved.
	_, ok := r.Get("loop")
	assert.False(t, ok)
	assert.Empty(t, r.List())

	_, err = r.Upload(context.Background(), Upload{Filename: "loop.wav", Source: newMockSource(time.Second)})
	assert.True(t, errors.Is(err, ErrDuplicateName))

	close(slow.release)
	waitReady(t, p)
	assert.Equal(t, 1, r.Len())
}

func TestAssetRegistry_ResolveFailureReleasesName(t *testing.T) {
	r := NewAssetRegistry()

	bad := newMockSource(0)
	bad.err = errors.New("decode failed")
	p, err := r.Upload(context.Background(), Upload{Filename: "broken.wav", Source: bad})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = p.Wait(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, r.Len())

	// The name can be used again.
	p, err = r.Upload(context.Background(), Upload{Filename: "broken.wav", Source: newMockSource(time.Second)})
	require.NoError(t, err)
	waitReady(t, p)
	assert.Equal(t, 1, r.Len())
}

func TestAssetRegistry_EmptyName(t *testing.T) {
	r := NewAssetRegistry()
	_, err := r.Upload(context.Background(), Upload{Filename: ".wav", Source: newMockSource(time.Second)})
	assert.True(t, errors.Is(err, ErrEmptyName))
}

func TestAssetRegistry_RemoveAndList(t *testing.T) {
	r := NewAssetRegistry()

	for _, name := range []string{"a.wav", "b.wav", "c.wav"} {
		p, err := r.Upload(context.Background(), Upload{Filename: name, Source: newMockSource(time.Second)})
		require.NoError(t, err)
		waitReady(t, p)
	}

	names := func() []string {
		var out []string
		for _, tr := range r.List() {
			out = append(out, tr.Name)
		}
		return out
	}
	assert.Equal(t, []string{"a", "b", "c"}, names())

	assert.True(t, r.Remove("b"))
	assert.False(t, r.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, names())
}

func TestAssetRegistry_OnReady(t *testing.T) {
	r := NewAssetRegistry()

	ready := make(chan string, 1)
	r.OnReady(func(tr track.Track) { ready <- tr.Name })

	_, err := r.Upload(context.Background(), Upload{Filename: "hat.wav", Source: newMockSource(time.Second)})
	require.NoError(t, err)

	select {
	case name := <-ready:
		assert.Equal(t, "hat", name)
	case <-time.After(time.Second):
		t.Fatal("OnReady not called")
	}
}
