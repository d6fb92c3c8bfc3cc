// Package main is the rgbdcapture command itself.
package main

import (
	"fmt"
	"os"

	"github.com/capstone-rov/rgbdcapture/cli"
)

func main() {
	app := cli.NewApp(os.Stdin, os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "rgbdcapture: %v\n", err)
		os.Exit(1)
	}
}
