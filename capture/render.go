package capture

import (
	"github.com/capstone-rov/rgbdcapture/components/camera"
	"github.com/capstone-rov/rgbdcapture/rimage/transform"
)

// ViewTransform is the viewport's orbit and pan. The loop carries it to the renderer unchanged.
type ViewTransform struct {
	Yaw     float64
	Pitch   float64
	OffsetX float64
	OffsetY float64
}

// FrameView is what a renderer draws for one loop iteration.
type FrameView struct {
	Pair       camera.FramePair
	Projection *transform.Projection
	Transform  ViewTransform
	// Stale is set when the source dropped a frame and this is the previous one again.
	Stale bool
	// SavePending mirrors the controller so the viewport can show a pending save.
	SavePending bool
}

// A Renderer draws frame views. It is called on the loop goroutine. Views are never modified after
// they are rendered.
type Renderer interface {
	Render(view FrameView)
}

// RendererFunc adapts a function to a Renderer.
type RendererFunc func(view FrameView)

// Render calls f.
func (f RendererFunc) Render(view FrameView) {
	f(view)
}

type noopRenderer struct{}

func (noopRenderer) Render(FrameView) {}
