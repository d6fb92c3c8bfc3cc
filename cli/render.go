package cli

import (
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/capstone-rov/rgbdcapture/capture"
)

const statusInterval = 250 * time.Millisecond

// statusRenderer prints a one line frame status, at most every statusInterval. The line is
// rewritten in place.
type statusRenderer struct {
	out     io.Writer
	limiter *rate.Limiter
}

func newStatusRenderer(out io.Writer) *statusRenderer {
	return &statusRenderer{out: out, limiter: rate.NewLimiter(rate.Every(statusInterval), 1)}
}

func (r *statusRenderer) Render(view capture.FrameView) {
	if !r.limiter.Allow() {
		return
	}
	fmt.Fprint(r.out, statusLine(view))
}

func statusLine(view capture.FrameView) string {
	status := "live"
	switch {
	case view.SavePending:
		status = "saving"
	case view.Stale:
		status = "stale"
	}
	valid := 0
	if view.Pair.Depth != nil {
		valid = view.Pair.Depth.ValidCount()
	}
	return fmt.Sprintf("\rframe %-8d %dx%d  depth %-8d %-6s  [s] save  [q] quit",
		view.Pair.Sequence, view.Projection.Width, view.Projection.Height, valid, status)
}
