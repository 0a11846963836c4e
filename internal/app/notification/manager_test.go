package notification

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/multitrack/internal/app/playback"
)

type recordingStream struct {
	mu  sync.Mutex
	got []Notification
	err error
}

func (s *recordingStream) Send(n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return s.err
}

func (s *recordingStream) received() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.got...)
}

type blockingStream struct {
	release chan struct{}
}

func (s *blockingStream) Send(Notification) error {
	<-s.release
	return nil
}

func TestManager_BroadcastSequence(t *testing.T) {
	m := NewManager()
	a := &recordingStream{}
	b := &recordingStream{err: errors.New("gone")}
	m.Subscribe(a)
	m.Subscribe(b)
	assert.Equal(t, 2, m.SubscriberCount())

	m.Broadcast(Notification{Kind: KindTrackReady, TrackName: "kick"})
	m.Broadcast(Notification{Kind: KindPlayback, Event: playback.Event{Type: playback.EventTick}})

	for _, s := range []*recordingStream{a, b} {
		got := s.received()
		require.Len(t, got, 2)
		assert.Equal(t, uint64(1), got[0].SequenceNo)
		assert.Equal(t, "kick", got[0].TrackName)
		assert.Equal(t, uint64(2), got[1].SequenceNo)
		assert.Equal(t, playback.EventTick, got[1].Event.Type)
	}
}

func TestManager_Unsubscribe(t *testing.T) {
	m := NewManager()
	a := &recordingStream{}
	id := m.Subscribe(a)
	m.Unsubscribe(id)

	m.Broadcast(Notification{Kind: KindTrackRemoved})
	assert.Empty(t, a.received())
	assert.Equal(t, 0, m.SubscriberCount())
}

func TestManager_SlowSubscriberDoesNotBlock(t *testing.T) {
	m := NewManager()
	slow := &blockingStream{release: make(chan struct{})}
	defer close(slow.release)
	fast := &recordingStream{}
	m.Subscribe(slow)
	m.Subscribe(fast)

	start := time.Now()
	m.Broadcast(Notification{Kind: KindDurationChanged})
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, fast.received(), 1)
}

func TestManager_Close(t *testing.T) {
	m := NewManager()
	m.Subscribe(&recordingStream{})
	m.Close()
	assert.Equal(t, 0, m.SubscriberCount())
}

func TestChanStream(t *testing.T) {
	s := NewChanStream(1)
	require.NoError(t, s.Send(Notification{Kind: KindInstancesChanged}))
	assert.True(t, errors.Is(s.Send(Notification{}), ErrStreamFull))

	n := <-s.C()
	assert.Equal(t, KindInstancesChanged, n.Kind)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "playback", KindPlayback.String())
	assert.Equal(t, "upload_failed", KindUploadFailed.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
