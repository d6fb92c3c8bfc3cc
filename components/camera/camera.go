// Package camera defines the frame source boundary: a 3D camera that streams time-synchronized
// depth and color frames, and reports how to interpret them.
package camera

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/capstone-rov/rgbdcapture/logging"
	"github.com/capstone-rov/rgbdcapture/rimage"
	"github.com/capstone-rov/rgbdcapture/rimage/transform"
)

// ErrDevice is the kind of every fatal frame source failure: a missing device, a stream that could
// not start, or one that broke.
var ErrDevice = errors.New("frame source device error")

// ErrNoNewFrame is returned by WaitForFrames when the source dropped a frame. Callers should keep
// using the previous frame.
var ErrNoNewFrame = errors.New("no new frame available")

// DeviceError is a fatal frame source failure. It matches ErrDevice with errors.Is.
type DeviceError struct {
	Msg string
	Err error
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrDevice, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", ErrDevice, e.Msg, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrDevice.
func (e *DeviceError) Is(target error) bool {
	return target == ErrDevice
}

// NewDeviceError returns a DeviceError wrapping err, which may be nil.
func NewDeviceError(err error, msg string) error {
	return &DeviceError{Msg: msg, Err: err}
}

// NewPropertiesError returns an error specific to a failure in Properties.
func NewPropertiesError(cameraIdentifier string) error {
	return errors.Errorf("failed to get properties from %s", cameraIdentifier)
}

// FramePair is a depth map and a color image captured at the same instant.
type FramePair struct {
	Depth      *rimage.DepthMap
	Color      *rimage.ColorImage
	Sequence   uint64
	CapturedAt time.Time
}

// Validate checks both halves of the pair are present.
func (fp FramePair) Validate() error {
	if fp.Depth.Empty() {
		return rimage.NewMalformedFrameError("frame %d has no depth map", fp.Sequence)
	}
	if fp.Color.Empty() {
		return rimage.NewMalformedFrameError("frame %d has no color image", fp.Sequence)
	}
	return nil
}

// Properties describe how to interpret a source's frames.
type Properties struct {
	DepthIntrinsics *transform.PinholeCameraIntrinsics `json:"depth_intrinsics,omitempty"`
	ColorIntrinsics *transform.PinholeCameraIntrinsics `json:"color_intrinsics,omitempty"`
	// DepthToColor is nil when both sensors share a frame.
	DepthToColor *transform.Extrinsics `json:"depth_to_color,omitempty"`
	// DepthScale is meters per raw depth unit.
	DepthScale float64             `json:"depth_scale,omitempty"`
	ColorOrder rimage.ChannelOrder `json:"color_order"`
}

// Projector builds the projector for these properties. A zero depth scale means millimeters.
func (p Properties) Projector() (*transform.Projector, error) {
	scale := p.DepthScale
	if scale == 0 {
		scale = transform.DefaultDepthScale
	}
	return transform.NewProjector(p.DepthIntrinsics, p.ColorIntrinsics, p.DepthToColor, scale)
}

// A Source streams synchronized depth and color frames.
type Source interface {
	// Start begins streaming. It fails with a DeviceError when there is no device or stream.
	Start(ctx context.Context) error

	// WaitForFrames blocks until the next synchronized pair is ready. It returns ErrNoNewFrame
	// when a frame was dropped, and a DeviceError when the stream failed.
	WaitForFrames(ctx context.Context) (FramePair, error)

	// Properties returns the intrinsics, extrinsics, depth scale, and channel order of the stream.
	Properties(ctx context.Context) (Properties, error)

	// Stop ends streaming and releases the device.
	Stop(ctx context.Context) error
}

// ResolveColorOrder decides which channel order to read color frames with. A configured order
// must agree with the order the source reports when both are known. When neither is known the
// order defaults to BGR and a warning is logged.
func ResolveColorOrder(configured, reported rimage.ChannelOrder, logger logging.Logger) (rimage.ChannelOrder, error) {
	switch {
	case configured != rimage.OrderUnknown && reported != rimage.OrderUnknown:
		if configured != reported {
			return rimage.OrderUnknown, errors.Errorf(
				"configured color order %s does not match the %s order reported by the frame source", configured, reported)
		}
		return configured, nil
	case configured != rimage.OrderUnknown:
		return configured, nil
	case reported != rimage.OrderUnknown:
		return reported, nil
	default:
		logger.Warnw("frame source does not report a color order, assuming default", "color_order", rimage.OrderBGR)
		return rimage.OrderBGR, nil
	}
}

// ApplyColorOrder labels a frame's color image with the resolved order. An image that already
// carries a different order is rejected.
func ApplyColorOrder(fp FramePair, order rimage.ChannelOrder) (FramePair, error) {
	switch fp.Color.Order() {
	case rimage.OrderUnknown:
		fp.Color = fp.Color.WithOrder(order)
	case order:
	default:
		return fp, rimage.NewMalformedFrameError("frame %d color order %s, expected %s",
			fp.Sequence, fp.Color.Order(), order)
	}
	return fp, nil
}
