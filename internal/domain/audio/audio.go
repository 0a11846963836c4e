// Package audio defines the boundary between the timeline and decoded audio.
package audio

import (
	"context"
	"time"
)

// Source is a decoded (or decodable) asset.
type Source interface {
	// Resolve decodes the asset if needed and returns its duration.
	// It may block for an indeterminate time.
	Resolve(ctx context.Context) (time.Duration, error)
	// NewVoice returns an independent playback handle positioned at 0.
	NewVoice() (Voice, error)
}

// Voice is a live, independently seekable playback handle for one Source.
type Voice interface {
	// Play starts or resumes playback from the current position.
	Play() error
	// Pause stops playback and keeps the position.
	Pause()
	// Seek moves the internal position.
	Seek(pos time.Duration) error
	// Position returns the internal position.
	Position() time.Duration
	// Close releases the handle. A closed voice never sounds again.
	Close() error
}
