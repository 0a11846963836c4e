// Package track provides the Track and Instance domain entities.
package track

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/osa030/multitrack/internal/domain/audio"
)

// Track represents an uploaded audio asset.
// Name is the unique key used by every other component.
type Track struct {
	ID       string        // Opaque unique ID (uuid)
	Name     string        // File name without extension
	Color    string        // Display color, "#rrggbb"
	Duration time.Duration // Resolved duration, zero until resolved
	Title    string        // Title tag, if the file carries one
	Artist   string        // Artist tag, if the file carries one
	Source   audio.Source  // Decoded audio data
}

// Instance is one placement of a Track on the timeline.
type Instance struct {
	ID        int           // Process-unique, never reused
	TrackName string        // Back-reference to Track.Name
	Color     string        // Copied from the track for rendering
	Start     time.Duration // Offset on the timeline
	Duration  time.Duration // Snapshot of Track.Duration at creation
}

// End returns the timeline position where the instance stops sounding.
func (i Instance) End() time.Duration {
	return i.Start + i.Duration
}

// Overlaps reports whether the instance is audible at any point in [from, to).
func (i Instance) Overlaps(from, to time.Duration) bool {
	return i.Start < to && i.End() > from
}

// NameFromFile derives a track name by stripping the directory and the extension.
func NameFromFile(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// RandomColor returns a random color that is never too light to read on.
func RandomColor() string {
	return fmt.Sprintf("#%06x", rand.Intn(0xcccccc)+0x333333)
}
