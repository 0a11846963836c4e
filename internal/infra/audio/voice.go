package audio

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

// speakerVoice plays a buffer streamer through the shared speaker mixer.
// All streamer state is touched under speaker.Lock.
type speakerVoice struct {
	format beep.Format
	seeker beep.StreamSeeker
	ctrl   *beep.Ctrl

	mu      sync.Mutex
	mixing  bool        // added to the mixer and not yet drained
	drained atomic.Bool // set from the speaker goroutine
	closed  bool
}

func newSpeakerVoice(out *output, format beep.Format, seeker beep.StreamSeeker) *speakerVoice {
	var st beep.Streamer = seeker
	if format.SampleRate != out.rate {
		st = beep.Resample(out.quality, format.SampleRate, out.rate, seeker)
	}
	return &speakerVoice{
		format: format,
		seeker: seeker,
		ctrl:   &beep.Ctrl{Streamer: st, Paused: true},
	}
}

func (v *speakerVoice) Play() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrVoiceClosed
	}

	speaker.Lock()
	v.ctrl.Paused = false
	speaker.Unlock()

	if !v.mixing || v.drained.Load() {
		v.drained.Store(false)
		v.mixing = true
		speaker.Play(beep.Seq(v.ctrl, beep.Callback(func() {
			v.drained.Store(true)
		})))
	}
	return nil
}

func (v *speakerVoice) Pause() {
	speaker.Lock()
	v.ctrl.Paused = true
	speaker.Unlock()
}

func (v *speakerVoice) Seek(pos time.Duration) error {
	speaker.Lock()
	defer speaker.Unlock()
	return v.seeker.Seek(clampSamples(v.format.SampleRate.N(pos), v.seeker.Len()))
}

func (v *speakerVoice) Position() time.Duration {
	speaker.Lock()
	defer speaker.Unlock()
	return v.format.SampleRate.D(v.seeker.Position())
}

// Close detaches the streamer; a Ctrl without a streamer drains at once.
func (v *speakerVoice) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true

	speaker.Lock()
	v.ctrl.Streamer = nil
	speaker.Unlock()
	return nil
}

// silentVoice tracks position without producing sound.
type silentVoice struct {
	format beep.Format
	seeker beep.StreamSeeker

	mu      sync.Mutex
	playing bool
	closed  bool
}

func (v *silentVoice) Play() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrVoiceClosed
	}
	v.playing = true
	return nil
}

func (v *silentVoice) Pause() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.playing = false
}

func (v *silentVoice) Seek(pos time.Duration) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.seeker.Seek(clampSamples(v.format.SampleRate.N(pos), v.seeker.Len()))
}

func (v *silentVoice) Position() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.format.SampleRate.D(v.seeker.Position())
}

func (v *silentVoice) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.playing = false
	return nil
}

func clampSamples(n, length int) int {
	if n < 0 {
		return 0
	}
	if n > length {
		return length
	}
	return n
}
