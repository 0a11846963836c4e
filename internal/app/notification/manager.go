// Package notification provides the notification manager for broadcasting session changes.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/multitrack/internal/app/playback"
)

// ErrStreamFull is returned by ChanStream when the reader is behind.
var ErrStreamFull = errors.New("notification stream full")

// sendTimeout bounds a single subscriber send.
const sendTimeout = 500 * time.Millisecond

// Kind identifies what changed.
type Kind int

const (
	KindPlayback        Kind = iota // Scheduler event, see Notification.Event
	KindTrackReady                  // Upload resolved
	KindUploadFailed                // Upload rejected or failed to decode
	KindTrackRemoved                // Track and its instances removed
	KindInstancesChanged            // Instance created, moved or removed
	KindDurationChanged             // Timeline duration changed or rejected
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindPlayback:
		return "playback"
	case KindTrackReady:
		return "track_ready"
	case KindUploadFailed:
		return "upload_failed"
	case KindTrackRemoved:
		return "track_removed"
	case KindInstancesChanged:
		return "instances_changed"
	case KindDurationChanged:
		return "duration_changed"
	default:
		return "unknown"
	}
}

// Notification is one broadcast message.
type Notification struct {
	SequenceNo uint64
	Kind       Kind
	Event      playback.Event // Set for KindPlayback
	TrackName  string
	Message    string // User-facing text, empty on success
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(Notification) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Broadcast stamps the next sequence number and sends the notification to
// all subscribers. Each send runs in its own goroutine with a timeout.
func (m *Manager) Broadcast(n Notification) {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	n.SequenceNo = m.sequenceNo
	m.sequenceNoMu.Unlock()

	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(n)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification: send failed: subscription=%s seq=%d err=%v", s.id, n.SequenceNo, err)
				}
			case <-ctx.Done():
				zlog.Debug().Msgf("notification: send timed out: subscription=%s seq=%d", s.id, n.SequenceNo)
			}
		}(sub)
	}
	wg.Wait()
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}

// ChanStream is a Stream backed by a buffered channel.
type ChanStream struct {
	ch chan Notification
}

// NewChanStream creates a channel stream with the given buffer size.
func NewChanStream(size int) *ChanStream {
	return &ChanStream{ch: make(chan Notification, size)}
}

// Send queues the notification, dropping it when the buffer is full.
func (s *ChanStream) Send(n Notification) error {
	select {
	case s.ch <- n:
		return nil
	default:
		return ErrStreamFull
	}
}

// C returns the receive side of the stream.
func (s *ChanStream) C() <-chan Notification {
	return s.ch
}
