package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8765", cfg.ListenAddr)
	assert.Equal(t, 100*time.Millisecond, cfg.Sensor.Interval.Std())
	assert.Equal(t, 5*time.Second, cfg.Video.FrameWait.Std())
	assert.Equal(t, 400, cfg.Video.Width)
	assert.Equal(t, 300, cfg.Video.Height)
	assert.Equal(t, 90, cfg.Video.Quality)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9000"
sensor:
  interval: 50ms
video:
  max_fps: 4
drive:
  rotate:
    power: 0.5
    hold: 400ms
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 50*time.Millisecond, cfg.Sensor.Interval.Std())
	assert.Equal(t, float64(4), cfg.Video.MaxFPS)
	assert.Equal(t, 0.5, cfg.Drive.Rotate.Power)
	assert.Equal(t, 400*time.Millisecond, cfg.Drive.Rotate.Hold.Std())
	// untouched keys keep their defaults
	assert.Equal(t, 400, cfg.Video.Width)
	assert.Equal(t, 0.85, cfg.Drive.Translate.Power)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrRead)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: [:::"), 0o600))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrParse)
}

func TestLoadBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sensor:\n  interval: fast\n"), 0o600))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrParse)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen addr", func(c *Config) { c.ListenAddr = "" }},
		{"zero sensor interval", func(c *Config) { c.Sensor.Interval = 0 }},
		{"zero frame wait", func(c *Config) { c.Video.FrameWait = 0 }},
		{"zero max fps", func(c *Config) { c.Video.MaxFPS = 0 }},
		{"negative width", func(c *Config) { c.Video.Width = -1 }},
		{"quality out of range", func(c *Config) { c.Video.Quality = 101 }},
		{"bad source", func(c *Config) { c.Video.Source = "picam" }},
		{"translate power above one", func(c *Config) { c.Drive.Translate.Power = 1.5 }},
		{"zero rotate hold", func(c *Config) { c.Drive.Rotate.Hold = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrValidate)
		})
	}
}

func TestFrameSendInterval(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 500*time.Millisecond, cfg.FrameSendInterval())

	cfg.Video.MaxFPS = 4
	assert.Equal(t, 250*time.Millisecond, cfg.FrameSendInterval())
}
