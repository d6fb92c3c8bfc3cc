// Package cli contains the rgbdcapture command line actions.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	configFlag    = "config"
	outputDirFlag = "output-dir"
	debugFlag     = "debug"
	dirFlag       = "dir"
	framesFlag    = "frames"

	loggerName = "rgbdcapture"
)

func newDebugFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    debugFlag,
		Aliases: []string{"vvv"},
		Usage:   "enable debug logging",
	}
}

// NewApp returns a new app with the CLI API. Keyboard commands are read from in, output goes to
// out, and logs go to errOut.
func NewApp(in io.Reader, out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "rgbdcapture",
		Usage:           "capture colored point clouds from a depth camera",
		HideHelpCommand: true,
		Reader:          in,
		Writer:          out,
		ErrWriter:       errOut,
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "stream frames and save a point cloud on every 's' key press",
				UsageText: "rgbdcapture run [--config FILE] [--output-dir DIR] [--debug]",
				Flags: []cli.Flag{
					newDebugFlag(),
					&cli.StringFlag{
						Name:    configFlag,
						Aliases: []string{"c"},
						Usage:   "load configuration from `FILE`",
					},
					&cli.StringFlag{
						Name:  outputDirFlag,
						Usage: "save point clouds to `DIR` instead of the configured directory",
					},
				},
				Action: RunAction,
			},
			{
				Name:      "record",
				Usage:     "record frame pairs from the configured source for later replay",
				UsageText: "rgbdcapture record --dir DIR [--config FILE] [--frames N]",
				Flags: []cli.Flag{
					newDebugFlag(),
					&cli.StringFlag{
						Name:    configFlag,
						Aliases: []string{"c"},
						Usage:   "load configuration from `FILE`",
					},
					&cli.StringFlag{
						Name:     dirFlag,
						Required: true,
						Usage:    "write pairs to `DIR`",
					},
					&cli.IntFlag{
						Name:  framesFlag,
						Value: 10,
						Usage: "number of pairs to record",
					},
				},
				Action: RecordAction,
			},
			{
				Name:      "inspect",
				Usage:     "print a summary of PCD files",
				UsageText: "rgbdcapture inspect FILE...",
				Action:    InspectAction,
			},
		},
	}
}
