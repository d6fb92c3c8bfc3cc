// Package config defines the structures to configure a capture session.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/capstone-rov/rgbdcapture/components/camera"
	"github.com/capstone-rov/rgbdcapture/components/camera/fake"
	"github.com/capstone-rov/rgbdcapture/components/camera/replay"
	"github.com/capstone-rov/rgbdcapture/logging"
	"github.com/capstone-rov/rgbdcapture/rimage"
	"github.com/capstone-rov/rgbdcapture/rimage/transform"
)

// Source types.
const (
	SourceTypeFake   = "fake"
	SourceTypeReplay = "replay"
)

// DefaultWarmupFrames are discarded after start when the config does not say otherwise.
const DefaultWarmupFrames = 30

// Log file defaults.
const (
	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxBackups = 3
)

// A Config describes the configuration of a capture session.
type Config struct {
	ConfigFilePath string `json:"-"`

	// OutputDir is where point clouds are saved. It defaults to the desktop.
	OutputDir    string             `json:"output_dir,omitempty"`
	ColorOrder   string             `json:"color_order,omitempty"`
	WarmupFrames int                `json:"warmup_frames,omitempty"`
	SavePreview  bool               `json:"save_preview,omitempty"`
	Source       SourceConfig       `json:"source"`
	Calibration  *CalibrationConfig `json:"calibration,omitempty"`
	Log          LogConfig          `json:"log,omitempty"`
}

// SourceConfig selects and configures the frame source.
type SourceConfig struct {
	Type string `json:"type"`

	// fake
	Width     int `json:"width,omitempty"`
	Height    int `json:"height,omitempty"`
	DropEvery int `json:"drop_every,omitempty"`

	// replay
	Dir   string `json:"dir,omitempty"`
	Loop  bool   `json:"loop,omitempty"`
	Watch bool   `json:"watch,omitempty"`

	FPS float64 `json:"fps,omitempty"`
}

// CalibrationConfig overrides the properties a source reports. Fields left unset keep the
// source's values.
type CalibrationConfig struct {
	// IntrinsicsPath is a JSON file of intrinsics shared by depth and color unless either is given
	// explicitly.
	IntrinsicsPath  string                             `json:"intrinsics_path,omitempty"`
	DepthIntrinsics *transform.PinholeCameraIntrinsics `json:"depth_intrinsics,omitempty"`
	ColorIntrinsics *transform.PinholeCameraIntrinsics `json:"color_intrinsics,omitempty"`
	DepthToColor    *transform.Extrinsics              `json:"depth_to_color,omitempty"`
	DepthScale      float64                            `json:"depth_scale,omitempty"`
}

// LogConfig configures the session logger.
type LogConfig struct {
	Level      string                        `json:"level,omitempty"`
	File       string                        `json:"file,omitempty"`
	MaxSizeMB  int                           `json:"max_size_mb,omitempty"`
	MaxBackups int                           `json:"max_backups,omitempty"`
	Patterns   []logging.LoggerPatternConfig `json:"patterns,omitempty"`
}

// Default returns the config used when no file is given: a fake source saving to the desktop.
func Default() *Config {
	return &Config{
		OutputDir:    defaultOutputDir(),
		WarmupFrames: DefaultWarmupFrames,
		Source:       SourceConfig{Type: SourceTypeFake},
	}
}

func defaultOutputDir() string {
	//nolint:errcheck
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Desktop")
}

// Ensure fills defaults and validates the config.
func (c *Config) Ensure() error {
	if c.OutputDir == "" {
		c.OutputDir = defaultOutputDir()
	}
	if c.Log.File != "" {
		if c.Log.MaxSizeMB == 0 {
			c.Log.MaxSizeMB = DefaultLogMaxSizeMB
		}
		if c.Log.MaxBackups == 0 {
			c.Log.MaxBackups = DefaultLogMaxBackups
		}
	}
	return c.Validate()
}

// Validate returns an error if the config is invalid.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return utils.NewConfigValidationFieldRequiredError("", "output_dir")
	}
	if _, err := c.ChannelOrder(); err != nil {
		return utils.NewConfigValidationError("color_order", err)
	}
	if c.WarmupFrames < 0 {
		return utils.NewConfigValidationError("warmup_frames", errors.Errorf("cannot be negative, got %d", c.WarmupFrames))
	}
	if err := c.Source.Validate("source"); err != nil {
		return err
	}
	if c.Calibration != nil {
		if err := c.Calibration.Validate("calibration"); err != nil {
			return err
		}
	}
	return c.Log.Validate("log")
}

// ChannelOrder returns the configured color channel order. An empty or "auto" value defers to the
// frame source.
func (c *Config) ChannelOrder() (rimage.ChannelOrder, error) {
	return rimage.ParseChannelOrder(c.ColorOrder)
}

// Validate ensures all parts of the source config are valid.
func (sc *SourceConfig) Validate(path string) error {
	var err error
	switch sc.Type {
	case "":
		return utils.NewConfigValidationFieldRequiredError(path, "type")
	case SourceTypeFake:
		conf := sc.FakeConfig()
		err = conf.Validate()
	case SourceTypeReplay:
		conf := sc.ReplayConfig()
		err = conf.Validate()
	default:
		err = errors.Errorf("unknown source type %q", sc.Type)
	}
	if err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// FakeConfig returns the attributes of a fake source.
func (sc *SourceConfig) FakeConfig() fake.Config {
	return fake.Config{Width: sc.Width, Height: sc.Height, FPS: sc.FPS, DropEvery: sc.DropEvery}
}

// ReplayConfig returns the attributes of a replay source.
func (sc *SourceConfig) ReplayConfig() replay.Config {
	return replay.Config{Dir: sc.Dir, Loop: sc.Loop, Watch: sc.Watch, FPS: sc.FPS}
}

// Validate ensures all parts of the calibration are valid.
func (cc *CalibrationConfig) Validate(path string) error {
	for _, named := range []struct {
		name       string
		intrinsics *transform.PinholeCameraIntrinsics
	}{
		{"depth_intrinsics", cc.DepthIntrinsics},
		{"color_intrinsics", cc.ColorIntrinsics},
	} {
		if named.intrinsics == nil {
			continue
		}
		if err := named.intrinsics.CheckValid(); err != nil {
			return utils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, named.name), err)
		}
	}
	if cc.DepthToColor != nil {
		if err := cc.DepthToColor.CheckValid(); err != nil {
			return utils.NewConfigValidationError(path+".depth_to_color", err)
		}
	}
	if cc.DepthScale < 0 {
		return utils.NewConfigValidationError(path+".depth_scale", errors.Errorf("cannot be negative, got %v", cc.DepthScale))
	}
	return nil
}

// Properties returns the overriding camera properties, reading the intrinsics file if one is set.
func (cc *CalibrationConfig) Properties() (*camera.Properties, error) {
	if cc == nil {
		return nil, nil
	}
	props := &camera.Properties{
		DepthIntrinsics: cc.DepthIntrinsics,
		ColorIntrinsics: cc.ColorIntrinsics,
		DepthToColor:    cc.DepthToColor,
		DepthScale:      cc.DepthScale,
	}
	if cc.IntrinsicsPath != "" {
		shared, err := transform.NewPinholeCameraIntrinsicsFromJSONFile(cc.IntrinsicsPath)
		if err != nil {
			return nil, errors.Wrapf(err, "reading calibration intrinsics %s", cc.IntrinsicsPath)
		}
		if props.DepthIntrinsics == nil {
			props.DepthIntrinsics = shared
		}
		if props.ColorIntrinsics == nil {
			props.ColorIntrinsics = shared
		}
	}
	return props, nil
}

// Validate ensures the log level and patterns parse.
func (lc *LogConfig) Validate(path string) error {
	if lc.Level != "" {
		if _, err := logging.LevelFromString(lc.Level); err != nil {
			return utils.NewConfigValidationError(path+".level", err)
		}
	}
	if lc.MaxSizeMB < 0 || lc.MaxBackups < 0 {
		return utils.NewConfigValidationError(path, errors.New("log rotation limits cannot be negative"))
	}
	for i, p := range lc.Patterns {
		if _, err := logging.LevelFromString(p.Level); err != nil {
			return utils.NewConfigValidationError(fmt.Sprintf("%s.patterns.%d", path, i), err)
		}
	}
	return nil
}

// LogLevel returns the configured level, INFO by default.
func (lc *LogConfig) LogLevel() logging.Level {
	level, err := logging.LevelFromString(lc.Level)
	if lc.Level == "" || err != nil {
		return logging.INFO
	}
	return level
}
