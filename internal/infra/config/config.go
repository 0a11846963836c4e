// Package config provides configuration loading from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Timeline TimelineConfig `yaml:"timeline"`
	Playback PlaybackConfig `yaml:"playback"`
	Audio    AudioConfig    `yaml:"audio"`
	Messages MessagesConfig `yaml:"messages"`
	Log      LogConfig      `yaml:"log"`
}

// TimelineConfig represents timeline configuration.
type TimelineConfig struct {
	DefaultDurationSec float64 `yaml:"default_duration_sec" default:"40" validate:"gt=0,ltefield=MaxDurationSec"`
	MaxDurationSec     float64 `yaml:"max_duration_sec" default:"3600" validate:"gt=0"`
}

// PlaybackConfig represents playhead scheduling configuration.
type PlaybackConfig struct {
	TickMs int `yaml:"tick_ms" default:"100" validate:"gte=10,lte=1000"`
}

// AudioConfig represents the audio backend configuration.
type AudioConfig struct {
	Backend  string         `yaml:"backend" default:"speaker" validate:"oneof=speaker silent"`
	Settings map[string]any `yaml:"settings"`
}

// SpeakerSettings are the backend settings of the speaker backend.
type SpeakerSettings struct {
	SampleRate      int `mapstructure:"sample_rate" default:"44100" validate:"gte=8000,lte=192000"`
	BufferMs        int `mapstructure:"buffer_ms" default:"100" validate:"gte=10,lte=2000"`
	ResampleQuality int `mapstructure:"resample_quality" default:"4" validate:"gte=1,lte=64"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	DuplicateName    string `yaml:"duplicate_name" default:"This track has already been uploaded."`
	TrackTooLong     string `yaml:"track_too_long" default:"Please increase Duration as the track duration is greater than the timeline duration."`
	DurationTooShort string `yaml:"duration_too_short" default:"Duration cannot be less than the longest track instance of %.1fs."`
	DurationTooLong  string `yaml:"duration_too_long" default:"Duration cannot be more than %.0fs."`
	InvalidDuration  string `yaml:"invalid_duration" default:"Duration must be greater than zero."`
	UploadFailed     string `yaml:"upload_failed" default:"The file could not be decoded."`
	DefaultError     string `yaml:"default_error" default:"Something went wrong."`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	Output string `yaml:"output"`
}

// Load loads configuration from a YAML file.
// An empty path yields the defaults. Environment variables take
// precedence over file values.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("MULTITRACK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("MULTITRACK_AUDIO_BACKEND"); v != "" {
		c.Audio.Backend = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Audio.Backend == "speaker" {
		if _, err := c.Speaker(); err != nil {
			return err
		}
	}
	return nil
}

// Speaker decodes the audio settings for the speaker backend.
func (c *Config) Speaker() (SpeakerSettings, error) {
	var s SpeakerSettings
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &s,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return s, errors.Wrap(err, "failed to create settings decoder")
	}
	if err := decoder.Decode(c.Audio.Settings); err != nil {
		return s, errors.Wrap(err, "invalid audio settings")
	}
	if err := defaults.Set(&s); err != nil {
		return s, errors.Wrap(err, "failed to set audio defaults")
	}
	if err := validator.New().Struct(s); err != nil {
		return s, errors.Wrap(err, "audio settings validation failed")
	}
	return s, nil
}

// DefaultDuration returns the initial timeline duration.
func (c *Config) DefaultDuration() time.Duration {
	return seconds(c.Timeline.DefaultDurationSec)
}

// MaxDuration returns the longest duration the timeline may be set to.
func (c *Config) MaxDuration() time.Duration {
	return seconds(c.Timeline.MaxDurationSec)
}

// TickInterval returns the playhead tick period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Playback.TickMs) * time.Millisecond
}

// GetMessage returns the message for the given code.
// Args fill the verbs of templated messages.
func (c *Config) GetMessage(code string, args ...any) string {
	var msg string
	switch code {
	case "duplicate_name":
		msg = c.Messages.DuplicateName
	case "track_too_long":
		msg = c.Messages.TrackTooLong
	case "duration_too_short":
		msg = c.Messages.DurationTooShort
	case "duration_too_long":
		msg = c.Messages.DurationTooLong
	case "invalid_duration":
		msg = c.Messages.InvalidDuration
	case "upload_failed":
		msg = c.Messages.UploadFailed
	default:
		msg = c.Messages.DefaultError
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
