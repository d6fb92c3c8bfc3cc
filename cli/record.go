package cli

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/capstone-rov/rgbdcapture/components/camera"
	"github.com/capstone-rov/rgbdcapture/components/camera/replay"
)

// RecordAction writes frame pairs from the configured source into a directory the replay source
// can play back.
func RecordAction(c *cli.Context) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	dir := c.String(dirFlag)
	frames := c.Int(framesFlag)
	if frames <= 0 {
		return errors.Errorf("--%s must be positive, got %d", framesFlag, frames)
	}

	logger, closeLog := newLogger(c, cfg)
	defer func() {
		err = multierr.Combine(err, closeLog())
	}()

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.Wrapf(err, "cannot create %s", dir)
	}
	source, err := newSource(cfg, sublogger(logger, cfg, "source"))
	if err != nil {
		return err
	}
	ctx := c.Context
	if err := source.Start(ctx); err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, source.Stop(ctx))
	}()

	props, err := source.Properties(ctx)
	if err != nil {
		return err
	}
	if err := replay.WriteProperties(dir, props); err != nil {
		return errors.Wrap(err, "cannot write properties")
	}

	for written := 0; written < frames; {
		pair, err := source.WaitForFrames(ctx)
		if errors.Is(err, camera.ErrNoNewFrame) {
			continue
		}
		if err != nil {
			return err
		}
		stem := fmt.Sprintf("frame_%06d", pair.Sequence)
		if err := replay.WritePair(dir, stem, pair); err != nil {
			return errors.Wrapf(err, "cannot write pair %s", stem)
		}
		written++
		logger.Debugw("recorded pair", "stem", stem)
	}
	fmt.Fprintf(c.App.Writer, "recorded %d pairs to %s\n", frames, dir)
	return nil
}
