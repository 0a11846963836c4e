package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/multitrack/internal/app/interaction"
	"github.com/osa030/multitrack/internal/app/notification"
	"github.com/osa030/multitrack/internal/app/playback"
	"github.com/osa030/multitrack/internal/app/session"
	"github.com/osa030/multitrack/internal/domain/track"
)

// Screen layout, in terminal cells.
const (
	labelWidth    = 16
	minTrackWidth = 20
	defaultWidth  = 80
	rulerRow      = 2
	firstPillRow  = 3
)

const (
	seekStep = time.Second
	moveStep = time.Second
)

var errNotANumber = errors.New("duration must be a number of seconds")

type inputMode int

const (
	modeNormal inputMode = iota
	modeDuration
	modePath
)

// notificationMsg carries one session notification into the update loop.
type notificationMsg struct {
	n notification.Notification
}

// uploadStartedMsg reports the outcome of handing a path to the uploader.
type uploadStartedMsg struct {
	path string
	err  error
}

// Model is the timeline screen.
type Model struct {
	session *session.Manager
	stream  *notification.ChanStream
	upload  UploadFunc

	keys          keyMap
	help          help.Model
	durationInput textinput.Model
	pathInput     textinput.Model
	mode          inputMode

	snapshot session.Snapshot
	selected int
	status   string

	playheadDrag *interaction.PlayheadDrag
	pillDrag     *interaction.PillDrag

	width  int
	height int
}

// NewModel creates the timeline screen model.
func NewModel(s *session.Manager, stream *notification.ChanStream, upload UploadFunc) *Model {
	durationInput := textinput.New()
	durationInput.Prompt = "Duration (s): "
	durationInput.Placeholder = "40"
	durationInput.CharLimit = 8

	pathInput := textinput.New()
	pathInput.Prompt = "Add file: "
	pathInput.Placeholder = "/path/to/track.mp3"

	m := &Model{
		session:       s,
		stream:        stream,
		upload:        upload,
		keys:          defaultKeyMap(),
		help:          help.New(),
		durationInput: durationInput,
		pathInput:     pathInput,
	}
	m.refresh()
	return m
}

// Init starts listening for session notifications.
func (m *Model) Init() tea.Cmd {
	return m.waitForNotification()
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case notificationMsg:
		if msg.n.Kind == notification.KindPlayback && msg.n.Event.Type == playback.EventPlaybackFailed {
			m.status = fmt.Sprintf("Instance #%d could not start.", msg.n.Event.InstanceID)
		}
		m.refresh()
		return m, m.waitForNotification()

	case uploadStartedMsg:
		if msg.err != nil {
			zlog.Debug().Msgf("tui: upload of %s rejected: %v", msg.path, msg.err)
		}
		m.refresh()
		return m, nil

	case tea.MouseMsg:
		m.handleMouse(msg)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if m.mode != modeNormal {
			return m.updateInput(msg)
		}
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status = ""

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.endDrags()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keys.Toggle):
		if err := m.session.TogglePlayback(); errors.Is(err, session.ErrNothingToPlay) {
			m.status = "Place a track on the timeline first."
		}

	case key.Matches(msg, m.keys.Restart):
		m.session.Restart()

	case key.Matches(msg, m.keys.SeekBack):
		m.session.Seek(m.snapshot.Playhead - seekStep)

	case key.Matches(msg, m.keys.SeekForward):
		m.session.Seek(m.snapshot.Playhead + seekStep)

	case key.Matches(msg, m.keys.Up):
		m.selected--

	case key.Matches(msg, m.keys.Down):
		m.selected++

	case key.Matches(msg, m.keys.MoveLeft):
		m.moveSelected(-moveStep)

	case key.Matches(msg, m.keys.MoveRight):
		m.moveSelected(moveStep)

	case key.Matches(msg, m.keys.Place):
		m.placeTrack(int(msg.String()[0] - '1'))

	case key.Matches(msg, m.keys.Remove):
		if inst, ok := m.selectedInstance(); ok {
			m.session.RemoveInstance(inst.ID)
		}

	case key.Matches(msg, m.keys.RemoveTrack):
		if inst, ok := m.selectedInstance(); ok {
			m.session.RemoveTrack(inst.TrackName)
		}

	case key.Matches(msg, m.keys.Duration):
		m.mode = modeDuration
		m.durationInput.SetValue(formatSeconds(m.snapshot.Duration))
		m.refresh()
		return m, m.durationInput.Focus()

	case key.Matches(msg, m.keys.Open):
		m.mode = modePath
		m.pathInput.SetValue("")
		m.refresh()
		return m, m.pathInput.Focus()
	}

	m.refresh()
	return m, nil
}

func (m *Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.blurInputs()
		return m, nil

	case tea.KeyEnter:
		var cmd tea.Cmd
		switch m.mode {
		case modeDuration:
			d, err := parseSeconds(m.durationInput.Value())
			if err != nil {
				m.status = "Duration must be a number of seconds."
			} else if err := m.session.SetDuration(d); err != nil {
				zlog.Debug().Msgf("tui: duration %v rejected: %v", d, err)
			}
		case modePath:
			cmd = m.startUpload(strings.TrimSpace(m.pathInput.Value()))
		}
		m.blurInputs()
		m.refresh()
		return m, cmd
	}

	var cmd tea.Cmd
	if m.mode == modeDuration {
		m.durationInput, cmd = m.durationInput.Update(msg)
	} else {
		m.pathInput, cmd = m.pathInput.Update(msg)
	}
	return m, cmd
}

func (m *Model) blurInputs() {
	m.durationInput.Blur()
	m.pathInput.Blur()
	m.mode = modeNormal
}

func (m *Model) startUpload(path string) tea.Cmd {
	if path == "" {
		return nil
	}
	if m.upload == nil {
		m.status = "Adding files is not available."
		return nil
	}
	upload := m.upload
	return func() tea.Msg {
		return uploadStartedMsg{path: path, err: upload(path)}
	}
}

func (m *Model) placeTrack(index int) {
	if index < 0 || index >= len(m.snapshot.Tracks) {
		return
	}
	if _, err := m.session.CreateInstance(m.snapshot.Tracks[index].Name); err != nil {
		zlog.Debug().Msgf("tui: place %s failed: %v", m.snapshot.Tracks[index].Name, err)
		return
	}
	m.refresh()
	m.selected = len(m.snapshot.Instances) - 1
}

func (m *Model) moveSelected(delta time.Duration) {
	inst, ok := m.selectedInstance()
	if !ok {
		return
	}
	if _, err := m.session.MoveInstance(inst.ID, inst.Start+delta); err != nil {
		zlog.Debug().Msgf("tui: move #%d failed: %v", inst.ID, err)
	}
}

func (m *Model) handleMouse(msg tea.MouseMsg) {
	x := float64(msg.X)

	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft {
			return
		}
		m.endDrags()
		g := m.geometry()

		switch {
		case msg.Y == rulerRow && msg.X >= labelWidth:
			drag, err := m.session.Interaction().BeginPlayheadDrag(g)
			if err != nil {
				zlog.Debug().Msgf("tui: playhead drag failed: %v", err)
				return
			}
			m.playheadDrag = drag
			drag.Move(x)

		case msg.Y >= firstPillRow && msg.Y < firstPillRow+len(m.snapshot.Instances):
			m.selected = msg.Y - firstPillRow
			inst := m.snapshot.Instances[m.selected]
			start, end := pillColumns(inst, m.snapshot.Duration, m.trackWidth())
			col := msg.X - labelWidth
			if col < start || col >= end {
				return
			}
			pillLeft := g.Left + fractionOf(inst.Start, m.snapshot.Duration)*g.Width
			drag, err := m.session.Interaction().BeginPillDrag(g, inst.ID, x, pillLeft)
			if err != nil {
				zlog.Debug().Msgf("tui: pill drag failed: %v", err)
				return
			}
			m.pillDrag = drag
		}

	case tea.MouseActionMotion:
		if m.playheadDrag != nil {
			m.playheadDrag.Move(x)
		}
		if m.pillDrag != nil {
			if _, err := m.pillDrag.Move(x); err != nil {
				zlog.Debug().Msgf("tui: pill move failed: %v", err)
			}
		}

	case tea.MouseActionRelease:
		m.endDrags()
	}
}

func (m *Model) endDrags() {
	if m.playheadDrag != nil {
		m.playheadDrag.End()
		m.playheadDrag = nil
	}
	if m.pillDrag != nil {
		m.pillDrag.End()
		m.pillDrag = nil
	}
}

// refresh takes a new snapshot and keeps the selection in range.
func (m *Model) refresh() {
	m.snapshot = m.session.Snapshot()
	if m.selected >= len(m.snapshot.Instances) {
		m.selected = len(m.snapshot.Instances) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m *Model) selectedInstance() (track.Instance, bool) {
	if m.selected < 0 || m.selected >= len(m.snapshot.Instances) {
		return track.Instance{}, false
	}
	return m.snapshot.Instances[m.selected], true
}

func (m *Model) waitForNotification() tea.Cmd {
	if m.stream == nil {
		return nil
	}
	stream := m.stream
	return func() tea.Msg {
		n, ok := <-stream.C()
		if !ok {
			return nil
		}
		return notificationMsg{n: n}
	}
}

func (m *Model) trackWidth() int {
	width := m.width
	if width == 0 {
		width = defaultWidth
	}
	if w := width - labelWidth - 1; w > minTrackWidth {
		return w
	}
	return minTrackWidth
}

func (m *Model) geometry() interaction.Geometry {
	return interaction.Geometry{
		Left:  labelWidth,
		Width: float64(m.trackWidth()),
	}
}

// Close ends any drag still in progress.
func (m *Model) Close() {
	m.endDrags()
}

func parseSeconds(s string) (time.Duration, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errors.Wrapf(errNotANumber, "%q", s)
	}
	return time.Duration(v * float64(time.Second)), nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
