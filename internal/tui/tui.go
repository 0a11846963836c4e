// Package tui provides the terminal front-end of the multitrack timeline.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/multitrack/internal/app/notification"
	"github.com/osa030/multitrack/internal/app/session"
)

// UploadFunc adds the file at path to the session.
type UploadFunc func(path string) error

// App is the interactive timeline application.
type App struct {
	session *session.Manager
	upload  UploadFunc
}

// NewApp creates a new TUI application bound to a session.
func NewApp(s *session.Manager, upload UploadFunc) *App {
	return &App{
		session: s,
		upload:  upload,
	}
}

// Run blocks until the user quits.
func (a *App) Run() error {
	stream := notification.NewChanStream(256)
	id := a.session.Subscribe(stream)
	defer a.session.Unsubscribe(id)

	model := NewModel(a.session, stream, a.upload)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())

	_, err := p.Run()
	model.Close()

	zlog.Debug().Msgf("tui: exited: err=%v", err)
	return err
}
