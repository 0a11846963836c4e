package playback

import "time"

// EventType represents a scheduler event type.
type EventType int

const (
	EventStarted         EventType = iota // Play was called
	EventPaused                           // Pause was called
	EventRestarted                        // Playhead reset to 0
	EventSeeked                           // Playhead moved by Seek
	EventTick                             // Playhead advanced by one step
	EventEnded                            // Playhead reached the end, auto-stopped
	EventInstanceStarted                  // An instance became audible
	EventPlaybackFailed                   // An instance failed to start
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventStarted:
		return "started"
	case EventPaused:
		return "paused"
	case EventRestarted:
		return "restarted"
	case EventSeeked:
		return "seeked"
	case EventTick:
		return "tick"
	case EventEnded:
		return "ended"
	case EventInstanceStarted:
		return "instance_started"
	case EventPlaybackFailed:
		return "playback_failed"
	default:
		return "unknown"
	}
}

// Event represents a scheduler event.
type Event struct {
	Type       EventType
	State      State
	Playhead   time.Duration
	InstanceID int   // Set for instance events
	Err        error // Set for EventPlaybackFailed
}
