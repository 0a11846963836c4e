package timeline

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/multitrack/internal/domain/track"
)

func TestNew_DefaultDuration(t *testing.T) {
	assert.Equal(t, DefaultDuration, New(0).Duration())
	assert.Equal(t, 40*time.Second, New(-time.Second).Duration())
	assert.Equal(t, 90*time.Second, New(90*time.Second).Duration())
}

func TestConfig_SetDuration(t *testing.T) {
	kick := track.Instance{ID: 1, TrackName: "kick", Duration: 2 * time.Second}
	pad := track.Instance{ID: 2, TrackName: "pad", Start: 30 * time.Second, Duration: 8 * time.Second}

	tests := []struct {
		name      string
		duration  time.Duration
		instances []track.Instance
		wantErr   error
		want      time.Duration
	}{
		{
			name:     "no instances",
			duration: time.Second,
			want:     time.Second,
		},
		{
			name:      "below longest instance",
			duration:  time.Second,
			instances: []track.Instance{kick},
			wantErr:   ErrDurationTooShort,
			want:      40 * time.Second,
		},
		{
			name:      "equal to longest instance",
			duration:  8 * time.Second,
			instances: []track.Instance{kick, pad},
			want:      8 * time.Second,
		},
		{
			name:      "checks duration not end point",
			duration:  10 * time.Second,
			instances: []track.Instance{pad},
			want:      10 * time.Second,
		},
		{
			name:     "zero",
			duration: 0,
			wantErr:  ErrInvalidDuration,
			want:     40 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(40 * time.Second)
			err := c.SetDuration(tt.duration, tt.instances)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, c.Duration())
		})
	}
}

func TestTooShortError_Message(t *testing.T) {
	c := New(40 * time.Second)
	err := c.SetDuration(time.Second, []track.Instance{{Duration: 2 * time.Second}})

	var tooShort *TooShortError
	require.True(t, errors.As(err, &tooShort))
	assert.Equal(t, 2*time.Second, tooShort.Longest)
	assert.Contains(t, err.Error(), "2.0s")
}
