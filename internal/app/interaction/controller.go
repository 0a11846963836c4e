// Package interaction turns pointer drags on the timeline into playhead
// and placement operations.
package interaction

import (
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/multitrack/internal/domain/track"
)

var (
	ErrInvalidGeometry  = errors.New("timeline extent must have a positive width")
	ErrInstanceNotFound = errors.New("instance not found")
)

// SeekResolution is the granularity of playhead drags.
const SeekResolution = 100 * time.Millisecond

// Geometry is the on-screen extent of the timeline, in pointer units.
type Geometry struct {
	Left  float64
	Width float64
}

// fraction maps a pointer x to a position along the extent (not clamped).
func (g Geometry) fraction(x float64) float64 {
	return (x - g.Left) / g.Width
}

// Scheduler is the subset of the playhead scheduler a drag drives.
type Scheduler interface {
	Seek(t time.Duration) time.Duration
	Play() error
	Pause() error
	IsPlaying() bool
	BeginSeeking()
	EndSeeking()
}

// Placement is the subset of instance placement a pill drag drives.
type Placement interface {
	Get(id int) (track.Instance, bool)
	Move(id int, newStart time.Duration) (track.Instance, error)
}

// Timeline provides the current timeline duration.
type Timeline interface {
	Duration() time.Duration
}

// gesture is implemented by both drag kinds.
type gesture interface {
	End()
}

// Controller starts drags. At most one drag is active at a time.
type Controller struct {
	mu        sync.Mutex
	scheduler Scheduler
	placement Placement
	timeline  Timeline
	active    gesture
}

// NewController creates a new interaction controller.
func NewController(scheduler Scheduler, placement Placement, timeline Timeline) *Controller {
	return &Controller{
		scheduler: scheduler,
		placement: placement,
		timeline:  timeline,
	}
}

// Active reports whether a drag is in progress.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// EndActive ends the drag in progress, if any.
func (c *Controller) EndActive() {
	c.mu.Lock()
	g := c.active
	c.mu.Unlock()

	if g != nil {
		g.End()
	}
}

func (c *Controller) begin(g gesture) {
	c.EndActive()

	c.mu.Lock()
	c.active = g
	c.mu.Unlock()
}

func (c *Controller) finish(g gesture) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == g {
		c.active = nil
	}
}

// PlayheadDrag scrubs the playhead. It never pauses playback.
type PlayheadDrag struct {
	ctrl     *Controller
	geometry Geometry
	duration time.Duration

	mu    sync.Mutex
	ended bool
}

// BeginPlayheadDrag captures the geometry and starts scrubbing.
func (c *Controller) BeginPlayheadDrag(g Geometry) (*PlayheadDrag, error) {
	if g.Width <= 0 {
		return nil, errors.Wrapf(ErrInvalidGeometry, "width %v", g.Width)
	}

	d := &PlayheadDrag{
		ctrl:     c,
		geometry: g,
		duration: c.timeline.Duration(),
	}
	c.begin(d)
	c.scheduler.BeginSeeking()
	return d, nil
}

// Move seeks to the time under x, rounded to SeekResolution.
func (d *PlayheadDrag) Move(x float64) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ended {
		return 0
	}
	t := positionAt(d.geometry.fraction(x), d.duration)
	t = clamp(t.Round(SeekResolution), 0, d.duration)
	return d.ctrl.scheduler.Seek(t)
}

// End detaches the drag. Later moves are ignored.
func (d *PlayheadDrag) End() {
	d.mu.Lock()
	if d.ended {
		d.mu.Unlock()
		return
	}
	d.ended = true
	d.mu.Unlock()

	d.ctrl.scheduler.EndSeeking()
	d.ctrl.finish(d)
}

// PillDrag moves one instance. Playback is paused for the duration of the
// drag and resumed afterwards if it was running.
type PillDrag struct {
	ctrl        *Controller
	geometry    Geometry
	duration    time.Duration
	instanceID  int
	clickOffset float64
	wasPlaying  bool

	mu    sync.Mutex
	ended bool
}

// BeginPillDrag starts dragging an instance. pointerX is where the pill was
// grabbed and pillLeft is the pill's left edge, so the pill keeps its
// position relative to the pointer.
func (c *Controller) BeginPillDrag(g Geometry, instanceID int, pointerX, pillLeft float64) (*PillDrag, error) {
	if g.Width <= 0 {
		return nil, errors.Wrapf(ErrInvalidGeometry, "width %v", g.Width)
	}
	if _, ok := c.placement.Get(instanceID); !ok {
		return nil, errors.Wrapf(ErrInstanceNotFound, "id %d", instanceID)
	}

	d := &PillDrag{
		ctrl:        c,
		geometry:    g,
		duration:    c.timeline.Duration(),
		instanceID:  instanceID,
		clickOffset: pointerX - pillLeft,
	}
	c.begin(d)

	d.wasPlaying = c.scheduler.IsPlaying()
	if d.wasPlaying {
		if err := c.scheduler.Pause(); err != nil {
			zlog.Warn().Msgf("interaction: pause before drag failed: %v", err)
			d.wasPlaying = false
		}
	}
	c.scheduler.BeginSeeking()

	zlog.Debug().Msgf("interaction: pill drag: instance=%d offset=%.1f was_playing=%t", instanceID, d.clickOffset, d.wasPlaying)
	return d, nil
}

// Move places the instance under x. Placement clamps the result.
func (d *PillDrag) Move(x float64) (track.Instance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ended {
		inst, _ := d.ctrl.placement.Get(d.instanceID)
		return inst, nil
	}
	start := positionAt(d.geometry.fraction(x-d.clickOffset), d.duration)
	return d.ctrl.placement.Move(d.instanceID, start)
}

// End detaches the drag and resumes playback if it was running.
func (d *PillDrag) End() {
	d.mu.Lock()
	if d.ended {
		d.mu.Unlock()
		return
	}
	d.ended = true
	d.mu.Unlock()

	d.ctrl.scheduler.EndSeeking()
	d.ctrl.finish(d)

	if d.wasPlaying {
		if err := d.ctrl.scheduler.Play(); err != nil {
			zlog.Warn().Msgf("interaction: resume after drag failed: %v", err)
		}
	}
}

// WasPlaying reports whether playback was running when the drag started.
func (d *PillDrag) WasPlaying() bool {
	return d.wasPlaying
}

func positionAt(fraction float64, duration time.Duration) time.Duration {
	if math.IsNaN(fraction) {
		return 0
	}
	return time.Duration(fraction * float64(duration))
}

func clamp(t, lo, hi time.Duration) time.Duration {
	if t < lo {
		return lo
	}
	if t > hi {
		return hi
	}
	return t
}
