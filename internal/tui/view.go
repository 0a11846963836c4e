package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/osa030/multitrack/internal/app/playback"
	"github.com/osa030/multitrack/internal/domain/track"
)

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(labelWidth)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Width(labelWidth)
	rulerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	playheadStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f")).Bold(true)
	pillStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff"))
	sectionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Bold(true).MarginTop(1)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	helpStyle     = lipgloss.NewStyle().MarginTop(1)
)

// tickEvery is the spacing of ruler marks.
const tickEvery = 5 * time.Second

// View renders the timeline screen. Rows up to the last pill are fixed so
// mouse rows map to rulerRow and firstPillRow.
func (m *Model) View() string {
	lines := []string{
		titleStyle.Render("multitrack"),
		m.renderStatus(),
		m.renderRuler(),
	}
	for i, inst := range m.snapshot.Instances {
		lines = append(lines, m.renderPillRow(i, inst))
	}
	if len(m.snapshot.Instances) == 0 {
		lines = append(lines, labelStyle.Render("")+rulerStyle.Render("press 1-9 to place a track"))
	}

	lines = append(lines, m.renderTracks())

	for _, msg := range []string{m.snapshot.DurationMessage, m.snapshot.UploadMessage} {
		if msg != "" {
			lines = append(lines, errorStyle.Render(msg))
		}
	}
	if m.status != "" {
		lines = append(lines, statusStyle.Render(m.status))
	}

	switch m.mode {
	case modeDuration:
		lines = append(lines, m.durationInput.View())
	case modePath:
		lines = append(lines, m.pathInput.View())
	}

	lines = append(lines, helpStyle.Render(m.help.View(m.keys)))
	return strings.Join(lines, "\n")
}

func (m *Model) renderStatus() string {
	var icon string
	switch m.snapshot.State {
	case playback.StatePlaying:
		icon = "▶"
	case playback.StateSeeking:
		icon = "⇔"
	default:
		icon = "⏸"
	}
	return fmt.Sprintf("%s %-8s %s / %s",
		icon, m.snapshot.State, formatClock(m.snapshot.Playhead), formatClock(m.snapshot.Duration))
}

func (m *Model) renderRuler() string {
	width := m.trackWidth()
	cells := []rune(strings.Repeat("─", width))
	for t := tickEvery; t < m.snapshot.Duration; t += tickEvery {
		cells[columnFor(t, m.snapshot.Duration, width)] = '┴'
	}

	head := columnFor(m.snapshot.Playhead, m.snapshot.Duration, width)
	label := labelStyle.Render(fmt.Sprintf("%.1fs", m.snapshot.Playhead.Seconds()))

	return label +
		rulerStyle.Render(string(cells[:head])) +
		playheadStyle.Render("▼") +
		rulerStyle.Render(string(cells[head+1:]))
}

func (m *Model) renderPillRow(index int, inst track.Instance) string {
	width := m.trackWidth()
	cells := []rune(strings.Repeat(" ", width))
	cells[columnFor(m.snapshot.Playhead, m.snapshot.Duration, width)] = '│'

	start, end := pillColumns(inst, m.snapshot.Duration, width)
	pill := pillStyle.Background(lipgloss.Color(inst.Color)).
		Render(fit(inst.TrackName, end-start))

	label := fmt.Sprintf(" #%-3d %s", inst.ID, inst.TrackName)
	style := labelStyle
	if index == m.selected {
		label = ">" + label[1:]
		style = selectedStyle
	}

	return style.Render(fit(label, labelWidth)) +
		string(cells[:start]) + pill + string(cells[end:])
}

func (m *Model) renderTracks() string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Tracks  duration %s", formatClock(m.snapshot.Duration))))
	if len(m.snapshot.Tracks) == 0 {
		b.WriteString("\n" + rulerStyle.Render("  no tracks, press o to add a file"))
	}
	for i, t := range m.snapshot.Tracks {
		swatch := lipgloss.NewStyle().Foreground(lipgloss.Color(t.Color)).Render("■")
		line := fmt.Sprintf("\n%d %s %-20s %6.1fs", i+1, swatch, fit(t.Name, 20), t.Duration.Seconds())
		if meta := describe(t); meta != "" {
			line += "  " + rulerStyle.Render(meta)
		}
		b.WriteString(line)
	}
	return b.String()
}

// describe returns the tag metadata of a track for display.
func describe(t track.Track) string {
	switch {
	case t.Artist != "" && t.Title != "":
		return t.Artist + " - " + t.Title
	case t.Title != "":
		return t.Title
	default:
		return t.Artist
	}
}

func fractionOf(t, duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}
	return float64(t) / float64(duration)
}

// columnFor maps t to a cell in [0, width).
func columnFor(t, duration time.Duration, width int) int {
	col := int(fractionOf(t, duration) * float64(width))
	if col < 0 {
		return 0
	}
	if col >= width {
		return width - 1
	}
	return col
}

// pillColumns returns the half-open cell range an instance covers.
// Every pill is at least one cell wide.
func pillColumns(inst track.Instance, duration time.Duration, width int) (start, end int) {
	start = int(math.Floor(fractionOf(inst.Start, duration) * float64(width)))
	end = int(math.Ceil(fractionOf(inst.End(), duration) * float64(width)))
	if start > width-1 {
		start = width - 1
	}
	if start < 0 {
		start = 0
	}
	if end > width {
		end = width
	}
	if end <= start {
		end = start + 1
	}
	return start, end
}

// fit pads or truncates s to exactly n cells.
func fit(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) > n {
		if n == 1 {
			return string(r[:1])
		}
		return string(r[:n-1]) + "…"
	}
	return s + strings.Repeat(" ", n-len(r))
}

func formatClock(d time.Duration) string {
	total := d.Round(100 * time.Millisecond)
	minutes := int(total / time.Minute)
	seconds := (total % time.Minute).Seconds()
	return fmt.Sprintf("%d:%04.1f", minutes, seconds)
}
