// Package audio provides decoded audio sources and voices backed by beep.
package audio

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/multitrack/internal/infra/config"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrNotResolved       = errors.New("source has not been decoded yet")
	ErrVoiceClosed       = errors.New("voice is closed")
)

// output is the shared speaker. A nil output means silent voices.
type output struct {
	rate    beep.SampleRate
	buffer  time.Duration
	quality int

	once    sync.Once
	err     error
	started bool
}

func (o *output) init() error {
	o.once.Do(func() {
		o.err = speaker.Init(o.rate, o.rate.N(o.buffer))
		if o.err != nil {
			o.err = errors.Wrap(o.err, "failed to initialize speaker")
			return
		}
		o.started = true
		zlog.Info().Msgf("audio: speaker initialized: rate=%d buffer=%v", o.rate, o.buffer)
	})
	return o.err
}

// Backend opens audio files as timeline sources.
type Backend struct {
	out *output
}

// NewBackend creates the backend selected by the configuration.
func NewBackend(cfg *config.Config) (*Backend, error) {
	switch cfg.Audio.Backend {
	case "silent":
		zlog.Info().Msg("audio: using silent backend")
		return &Backend{}, nil
	case "speaker", "":
		s, err := cfg.Speaker()
		if err != nil {
			return nil, err
		}
		return &Backend{out: &output{
			rate:    beep.SampleRate(s.SampleRate),
			buffer:  time.Duration(s.BufferMs) * time.Millisecond,
			quality: s.ResampleQuality,
		}}, nil
	default:
		return nil, errors.Newf("unsupported audio backend: %s", cfg.Audio.Backend)
	}
}

// NewSilentBackend creates a backend whose voices make no sound.
func NewSilentBackend() *Backend {
	return &Backend{}
}

// Open returns a lazily decoded source for the file at path.
func (b *Backend) Open(path string) *FileSource {
	return &FileSource{path: path, out: b.out}
}

// Close stops the speaker if it was started.
func (b *Backend) Close() {
	if b.out == nil {
		return
	}
	// Claims the once, so a voice opened after Close cannot start the speaker.
	b.out.once.Do(func() {
		b.out.err = errors.New("audio backend closed")
	})
	if b.out.started {
		speaker.Clear()
		speaker.Close()
	}
}
