package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/multitrack/internal/app/notification"
	"github.com/osa030/multitrack/internal/app/playback"
	"github.com/osa030/multitrack/internal/app/registry"
	"github.com/osa030/multitrack/internal/app/session"
	"github.com/osa030/multitrack/internal/domain/track"
	"github.com/osa030/multitrack/internal/infra/audio"
)

// uploader hands files to the session as beep-backed sources.
type uploader struct {
	session *session.Manager
	backend *audio.Backend
}

func (u *uploader) upload(ctx context.Context, path string) (*registry.Pending, error) {
	tags := audio.ReadTags(path)
	return u.session.Upload(ctx, registry.Upload{
		Filename: path,
		Source:   u.backend.Open(path),
		Title:    tags.Title,
		Artist:   tags.Artist,
	})
}

// placement is one FILE[@START_SEC] argument.
type placement struct {
	path  string
	start time.Duration
}

// parsePlacements splits each arg at its last '@'. A suffix that is not a
// number is treated as part of the path.
func parsePlacements(args []string) ([]placement, error) {
	result := make([]placement, 0, len(args))
	for _, arg := range args {
		p := placement{path: arg}
		if i := strings.LastIndex(arg, "@"); i > 0 {
			if v, err := strconv.ParseFloat(arg[i+1:], 64); err == nil {
				if v < 0 {
					return nil, fmt.Errorf("negative start in %q", arg)
				}
				p = placement{path: arg[:i], start: seconds(v)}
			}
		}
		if p.path == "" {
			return nil, fmt.Errorf("missing file in %q", arg)
		}
		result = append(result, p)
	}
	return result, nil
}

// runPlay uploads every file once, places one instance per placement and
// plays until the end of the timeline or until ctx is cancelled.
func runPlay(ctx context.Context, s *session.Manager, up *uploader, placements []placement, duration time.Duration) error {
	names := make([]string, len(placements))
	pending := make(map[string]*registry.Pending)
	for i, p := range placements {
		name := track.NameFromFile(p.path)
		names[i] = name
		if _, ok := pending[name]; ok {
			continue
		}
		pend, err := up.upload(ctx, p.path)
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", p.path, err)
		}
		pending[name] = pend
	}

	for name, pend := range pending {
		t, err := pend.Wait(ctx)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
		zlog.Info().Msgf("loaded %s: duration=%v", name, t.Duration)
	}

	if duration > 0 {
		if err := s.SetDuration(duration); err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
	}

	for i, p := range placements {
		inst, err := s.CreateInstance(names[i])
		if err != nil {
			return fmt.Errorf("failed to place %s: %w", names[i], err)
		}
		if p.start > 0 {
			if inst, err = s.MoveInstance(inst.ID, p.start); err != nil {
				return fmt.Errorf("failed to move %s: %w", names[i], err)
			}
		}
		zlog.Info().Msgf("placed #%d %s at %v", inst.ID, inst.TrackName, inst.Start)
	}

	stream := notification.NewChanStream(256)
	id := s.Subscribe(stream)
	defer s.Unsubscribe(id)

	if err := s.Play(); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}
	zlog.Info().Msgf("playing %v timeline", s.Snapshot().Duration)

	for {
		select {
		case <-ctx.Done():
			_ = s.Pause()
			zlog.Info().Msgf("interrupted at %v", s.Snapshot().Playhead)
			return nil

		case n := <-stream.C():
			if n.Kind != notification.KindPlayback {
				continue
			}
			e := n.Event
			switch e.Type {
			case playback.EventTick:
				zlog.Debug().Msgf("playhead %v", e.Playhead)
			case playback.EventInstanceStarted:
				zlog.Info().Msgf("instance #%d started at %v", e.InstanceID, e.Playhead)
			case playback.EventPlaybackFailed:
				zlog.Warn().Msgf("instance #%d failed: %v", e.InstanceID, e.Err)
			case playback.EventEnded:
				zlog.Info().Msgf("reached end of timeline at %v", e.Playhead)
				return nil
			}
		}
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
