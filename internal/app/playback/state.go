// Package playback provides the timeline playhead scheduler.
package playback

// State represents the scheduler state.
type State int

const (
	StateStopped State = iota // Not playing, no timers pending
	StatePlaying              // Tick running, voices started or scheduled
	StateSeeking              // A drag is moving things while stopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StateSeeking:
		return "seeking"
	default:
		return "unknown"
	}
}
