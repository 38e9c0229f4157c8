// Package config loads server configuration from an optional YAML file
// merged over compiled defaults, and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrRead     = errors.New("unable to read config file")
	ErrParse    = errors.New("unable to parse config file")
	ErrValidate = errors.New("invalid configuration")
)

// Duration makes time.Duration usable in YAML ("100ms", "5s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Log struct {
	Level string `yaml:"level"`
	// File enables rotating file output when Path is set;
	// stdout is used otherwise.
	File struct {
		Path       string `yaml:"path"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"file"`
}

type Sensor struct {
	Interval    Duration `yaml:"interval"`
	ReadTimeout Duration `yaml:"read_timeout"`
}

type Video struct {
	FrameWait Duration `yaml:"frame_wait"`
	MaxFPS    float64  `yaml:"max_fps"`
	Width     int      `yaml:"width"`
	Height    int      `yaml:"height"`
	Quality   int      `yaml:"quality"`
	// Source selects the frame source: "sim" or "gst".
	Source string `yaml:"source"`
	Device string `yaml:"device"`
}

type Move struct {
	Power float64  `yaml:"power"`
	Hold  Duration `yaml:"hold"`
}

type Drive struct {
	Translate Move `yaml:"translate"` // forward / reverse
	Rotate    Move `yaml:"rotate"`    // rot_left / rot_right
}

type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	StatusAddr string `yaml:"status_addr"`
	Log        Log    `yaml:"log"`
	Sensor     Sensor `yaml:"sensor"`
	Video      Video  `yaml:"video"`
	Drive      Drive  `yaml:"drive"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	cfg := &Config{
		ListenAddr: ":8765",
		StatusAddr: ":8080",
		Sensor: Sensor{
			Interval:    Duration(100 * time.Millisecond),
			ReadTimeout: Duration(250 * time.Millisecond),
		},
		Video: Video{
			FrameWait: Duration(5 * time.Second),
			MaxFPS:    2,
			Width:     400,
			Height:    300,
			Quality:   90,
			Source:    "sim",
			Device:    "/dev/video0",
		},
		Drive: Drive{
			Translate: Move{Power: 0.85, Hold: Duration(1200 * time.Millisecond)},
			Rotate:    Move{Power: 0.7, Hold: Duration(500 * time.Millisecond)},
		},
	}
	cfg.Log.Level = "debug"
	cfg.Log.File.MaxSizeMB = 20
	cfg.Log.File.MaxBackups = 3
	cfg.Log.File.MaxAgeDays = 14
	return cfg
}

// Load reads path over Default(). An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Join(ErrRead, err)
		}
		if err = yaml.Unmarshal(b, cfg); err != nil {
			return nil, errors.Join(ErrParse, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.ListenAddr == "":
		return fmt.Errorf("%w: listen_addr must not be empty", ErrValidate)
	case c.StatusAddr == "":
		return fmt.Errorf("%w: status_addr must not be empty", ErrValidate)
	case c.Sensor.Interval.Std() <= 0:
		return fmt.Errorf("%w: sensor.interval must be positive", ErrValidate)
	case c.Sensor.ReadTimeout.Std() <= 0:
		return fmt.Errorf("%w: sensor.read_timeout must be positive", ErrValidate)
	case c.Video.FrameWait.Std() <= 0:
		return fmt.Errorf("%w: video.frame_wait must be positive", ErrValidate)
	case c.Video.MaxFPS <= 0:
		return fmt.Errorf("%w: video.max_fps must be positive", ErrValidate)
	case c.Video.Width <= 0 || c.Video.Height <= 0:
		return fmt.Errorf("%w: video resolution must be positive", ErrValidate)
	case c.Video.Quality < 1 || c.Video.Quality > 100:
		return fmt.Errorf("%w: video.quality must be in 1..100", ErrValidate)
	case c.Video.Source != "sim" && c.Video.Source != "gst":
		return fmt.Errorf("%w: video.source must be sim or gst", ErrValidate)
	case c.Drive.Translate.Power <= 0 || c.Drive.Translate.Power > 1:
		return fmt.Errorf("%w: drive.translate.power must be in (0, 1]", ErrValidate)
	case c.Drive.Rotate.Power <= 0 || c.Drive.Rotate.Power > 1:
		return fmt.Errorf("%w: drive.rotate.power must be in (0, 1]", ErrValidate)
	case c.Drive.Translate.Hold.Std() <= 0 || c.Drive.Rotate.Hold.Std() <= 0:
		return fmt.Errorf("%w: drive hold durations must be positive", ErrValidate)
	}
	return nil
}

// FrameSendInterval is the minimum spacing between outbound frames
// imposed by the max_fps cap.
func (c *Config) FrameSendInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.Video.MaxFPS)
}
