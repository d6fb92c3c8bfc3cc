package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/capstone-rov/rgbdcapture/capture"
	"github.com/capstone-rov/rgbdcapture/components/camera/replay"
)

// RunAction streams frames from the configured source until quit, saving a point cloud whenever one
// is requested from the keyboard.
func RunAction(c *cli.Context) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if dir := c.String(outputDirFlag); dir != "" {
		cfg.OutputDir = dir
	}

	logger, closeLog := newLogger(c, cfg)
	defer func() {
		err = multierr.Combine(err, closeLog())
	}()

	source, err := newSource(cfg, sublogger(logger, cfg, "source"))
	if err != nil {
		return err
	}
	override, err := cfg.Calibration.Properties()
	if err != nil {
		return err
	}
	order, err := cfg.ChannelOrder()
	if err != nil {
		return err
	}

	if info, err := os.Stat(cfg.OutputDir); err != nil || !info.IsDir() {
		logger.Warnw("output directory is not available, saves will fail until it exists", "output_dir", cfg.OutputDir)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	controller := capture.NewController()
	loop := capture.NewLoop(source, controller, newStatusRenderer(c.App.Writer), capture.Options{
		OutputDir:    cfg.OutputDir,
		SavePreview:  cfg.SavePreview,
		ColorOrder:   order,
		WarmupFrames: cfg.WarmupFrames,
		Override:     override,
	}, nil, sublogger(logger, cfg, "capture"))

	restore := startInput(c.App.Reader, controller, stop, logger)
	runErr := loop.Run(ctx)
	restore()
	fmt.Fprintln(c.App.Writer)

	stats := loop.Stats()
	for _, res := range loop.Results() {
		fmt.Fprintf(c.App.Writer, "saved %s (%d points, %s)\n", res.Path, res.Points, units.HumanSize(float64(res.Bytes)))
	}
	logger.Infow("capture finished",
		"session", loop.SessionID(),
		"frames", stats.Frames,
		"dropped", stats.Dropped,
		"malformed", stats.Malformed,
		"saves", stats.Saves,
		"failed_saves", stats.FailedSaves)

	if errors.Is(runErr, replay.ErrEndOfDataset) {
		return nil
	}
	return runErr
}
