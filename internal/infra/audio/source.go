package audio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/wav"

	domain "github.com/osa030/multitrack/internal/domain/audio"
)

// FileSource is an audio file decoded into memory on first Resolve, so any
// number of voices can play it from independent positions.
type FileSource struct {
	path string
	out  *output

	once   sync.Once
	buffer *beep.Buffer
	err    error
}

// Path returns the file path.
func (s *FileSource) Path() string {
	return s.path
}

// Resolve decodes the file and returns its duration.
func (s *FileSource) Resolve(ctx context.Context) (time.Duration, error) {
	done := make(chan struct{})
	go func() {
		s.once.Do(s.load)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	if s.err != nil {
		return 0, s.err
	}
	return s.buffer.Format().SampleRate.D(s.buffer.Len()), nil
}

func (s *FileSource) load() {
	f, err := os.Open(s.path)
	if err != nil {
		s.err = errors.Wrap(err, "failed to open audio file")
		return
	}
	defer f.Close()

	streamer, format, err := decode(f, s.path)
	if err != nil {
		s.err = err
		return
	}
	defer streamer.Close()

	buf := beep.NewBuffer(format)
	buf.Append(streamer)
	if err := streamer.Err(); err != nil {
		s.err = errors.Wrapf(err, "failed to decode %s", filepath.Base(s.path))
		return
	}
	s.buffer = buf
}

func decode(f *os.File, path string) (beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mp3":
		st, format, err := mp3.Decode(f)
		return st, format, errors.Wrap(err, "failed to decode MP3")
	case ".wav":
		st, format, err := wav.Decode(f)
		return st, format, errors.Wrap(err, "failed to decode WAV")
	default:
		return nil, beep.Format{}, errors.Wrapf(ErrUnsupportedFormat, "extension %q", ext)
	}
}

// NewVoice returns a voice over the decoded buffer, positioned at 0.
func (s *FileSource) NewVoice() (domain.Voice, error) {
	if s.buffer == nil {
		return nil, errors.Wrapf(ErrNotResolved, "file %s", s.path)
	}
	seeker := s.buffer.Streamer(0, s.buffer.Len())
	format := s.buffer.Format()

	if s.out == nil {
		return &silentVoice{format: format, seeker: seeker}, nil
	}
	if err := s.out.init(); err != nil {
		return nil, err
	}
	return newSpeakerVoice(s.out, format, seeker), nil
}
