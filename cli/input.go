package cli

import (
	"bufio"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/capstone-rov/rgbdcapture/capture"
	"github.com/capstone-rov/rgbdcapture/logging"
)

const ctrlC = 0x03

// readKeys reads single key presses from a raw terminal. 's' requests a save; 'q' and Ctrl-C call
// quit. It returns when in is closed or quit was called.
func readKeys(in io.Reader, controller *capture.Controller, quit func(), logger logging.Logger) {
	buf := make([]byte, 1)
	for {
		if _, err := in.Read(buf); err != nil {
			return
		}
		switch buf[0] {
		case 's', 'S':
			requestSave(controller, logger)
		case 'q', 'Q', ctrlC:
			quit()
			return
		}
	}
}

// readLines is readKeys for input that is not a terminal: a line starting with 's' requests a save
// and one starting with 'q' quits. The end of input stops reading but does not quit.
func readLines(in io.Reader, controller *capture.Controller, quit func(), logger logging.Logger) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		switch {
		case strings.HasPrefix(line, "s"):
			requestSave(controller, logger)
		case strings.HasPrefix(line, "q"):
			quit()
			return
		}
	}
}

func requestSave(controller *capture.Controller, logger logging.Logger) {
	if !controller.Trigger() {
		logger.Info("save already pending")
		return
	}
	logger.Debug("save requested")
}

// startInput reads commands from in on a new goroutine. A terminal is put in raw mode so single
// keys register without Enter; the returned func restores it.
func startInput(in io.Reader, controller *capture.Controller, quit func(), logger logging.Logger) func() {
	f, ok := in.(*os.File)
	if ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		state, err := term.MakeRaw(fd)
		if err == nil {
			go readKeys(in, controller, quit, logger)
			return func() {
				if err := term.Restore(fd, state); err != nil {
					logger.Warnw("cannot restore terminal", "error", err)
				}
			}
		}
		logger.Warnw("cannot put terminal in raw mode, reading lines instead", "error", err)
	}
	go readLines(in, controller, quit, logger)
	return func() {}
}
