// Package timeline holds the timeline duration and validates edits to it.
package timeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/multitrack/internal/domain/track"
)

var (
	ErrDurationTooShort = errors.New("duration is shorter than the longest track instance")
	ErrInvalidDuration  = errors.New("duration must be positive")
)

// DefaultDuration is used when no duration is configured.
const DefaultDuration = 40 * time.Second

// Config holds the total timeline duration.
type Config struct {
	mu       sync.RWMutex
	duration time.Duration
}

// New creates a timeline of the given duration.
func New(d time.Duration) *Config {
	if d <= 0 {
		d = DefaultDuration
	}
	return &Config{duration: d}
}

// Duration returns the current timeline duration.
func (c *Config) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.duration
}

// SetDuration commits d unless it is shorter than the longest instance.
// Instance starts are left untouched, even when an instance now ends past d.
func (c *Config) SetDuration(d time.Duration, instances []track.Instance) error {
	if d <= 0 {
		return errors.Wrapf(ErrInvalidDuration, "got %v", d)
	}

	longest := Longest(instances)
	if d < longest {
		return &TooShortError{Requested: d, Longest: longest}
	}

	c.mu.Lock()
	prev := c.duration
	c.duration = d
	c.mu.Unlock()

	zlog.Debug().Msgf("timeline: duration changed: %v -> %v", prev, d)
	return nil
}

// Longest returns the longest instance duration, or 0.
func Longest(instances []track.Instance) time.Duration {
	var longest time.Duration
	for _, inst := range instances {
		if inst.Duration > longest {
			longest = inst.Duration
		}
	}
	return longest
}

// TooShortError carries the bound a rejected duration violated.
type TooShortError struct {
	Requested time.Duration
	Longest   time.Duration
}

func (e *TooShortError) Error() string {
	return fmt.Sprintf("duration %v is shorter than the longest track instance of %.1fs",
		e.Requested, e.Longest.Seconds())
}

// Is makes errors.Is(err, ErrDurationTooShort) hold.
func (e *TooShortError) Is(target error) bool {
	return target == ErrDurationTooShort
}
