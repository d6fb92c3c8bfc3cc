package cli

import (
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/capstone-rov/rgbdcapture/components/camera"
	"github.com/capstone-rov/rgbdcapture/components/camera/fake"
	"github.com/capstone-rov/rgbdcapture/components/camera/replay"
	"github.com/capstone-rov/rgbdcapture/config"
	"github.com/capstone-rov/rgbdcapture/logging"
)

// loadConfig reads the --config file, or returns the default config when none is given.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String(configFlag)
	if path == "" {
		return config.Default(), nil
	}
	return config.Read(path)
}

// newLogger builds the session logger. Logs go to the app's error writer and, when configured, to a
// rotating file. The returned func closes the file.
func newLogger(c *cli.Context, cfg *config.Config) (logging.Logger, func() error) {
	logger := logging.NewBlankLogger(loggerName)
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))

	closeFn := func() error { return nil }
	if cfg.Log.File != "" {
		fileAppender := logging.NewFileAppender(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups)
		logger.AddAppender(fileAppender)
		closeFn = fileAppender.Close
	}

	level := cfg.Log.LogLevel()
	if c.Bool(debugFlag) {
		level = logging.DEBUG
	}
	logger.SetLevel(level)
	logging.RegisterLogger(loggerName, logger)
	return logger, closeFn
}

// sublogger creates a named child of logger and applies the configured level patterns to it.
func sublogger(logger logging.Logger, cfg *config.Config, name string) logging.Logger {
	sub := logger.Sublogger(name)
	logging.RegisterLogger(sub.Name(), sub)
	if err := logging.UpdateLoggerLevels(cfg.Log.Patterns, logger.GetLevel(), logger); err != nil {
		logger.Warnw("cannot apply log patterns", "error", err)
	}
	return sub
}

func newSource(cfg *config.Config, logger logging.Logger) (camera.Source, error) {
	switch cfg.Source.Type {
	case config.SourceTypeFake:
		return fake.NewSource(cfg.Source.FakeConfig(), nil, logger)
	case config.SourceTypeReplay:
		return replay.NewSource(cfg.Source.ReplayConfig(), nil, logger)
	default:
		return nil, errors.Errorf("unknown source type %q", cfg.Source.Type)
	}
}
