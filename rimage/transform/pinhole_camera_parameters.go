package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrNoIntrinsics means a frame source has no usable intrinsics for one of its sensors.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError wraps ErrNoIntrinsics with the reason the intrinsics cannot be used.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics describes one sensor of an RGB-D pair: its image size in pixels, focal
// lengths (Fx, Fy) and principal point (Ppx, Ppy), all in pixels.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid reports the first parameter that makes projection impossible.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("invalid size %dx%d", params.Width, params.Height))
	}
	for _, field := range []struct {
		name     string
		value    float64
		positive bool
	}{
		{"fx", params.Fx, true},
		{"fy", params.Fy, true},
		{"ppx", params.Ppx, false},
		{"ppy", params.Ppy, false},
	} {
		if field.value < 0 || (field.positive && field.value == 0) || math.IsNaN(field.value) {
			return NewNoIntrinsicsError(fmt.Sprintf("invalid %s %v", field.name, field.value))
		}
	}
	return nil
}

// NewPinholeCameraIntrinsicsFromJSONFile reads intrinsics saved with the width_px, height_px, fx,
// fy, ppx and ppy keys.
func NewPinholeCameraIntrinsicsFromJSONFile(jsonPath string) (*PinholeCameraIntrinsics, error) {
	//nolint:gosec
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read intrinsics")
	}
	intrinsics := &PinholeCameraIntrinsics{}
	if err := json.Unmarshal(data, intrinsics); err != nil {
		return nil, errors.Wrapf(err, "cannot parse intrinsics %s", jsonPath)
	}
	return intrinsics, nil
}

// PixelToPoint deprojects pixel (x, y) at depth z, using the intrinsics of the sensor that took
// the image.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) r3.Vector {
	if params == nil {
		return r3.Vector{}
	}
	xOverZ := (x - params.Ppx) / params.Fx
	yOverZ := (y - params.Ppy) / params.Fy
	return r3.Vector{X: xOverZ * z, Y: yOverZ * z, Z: z}
}

// PointToPixel projects a point, in this sensor's frame, onto its image plane. The result is not
// rounded and may fall outside the image.
func (params *PinholeCameraIntrinsics) PointToPixel(pt r3.Vector) r2.Point {
	if pt.Z == 0 {
		// a point on the camera plane has no image; report it off the image
		return r2.Point{X: -1, Y: -1}
	}
	return r2.Point{
		X: (pt.X/pt.Z)*params.Fx + params.Ppx,
		Y: (pt.Y/pt.Z)*params.Fy + params.Ppy,
	}
}

// PixelToTexCoord normalizes a pixel position by the image size.
func (params *PinholeCameraIntrinsics) PixelToTexCoord(px r2.Point) r2.Point {
	return r2.Point{X: px.X / float64(params.Width), Y: px.Y / float64(params.Height)}
}

// FieldOfView returns the horizontal and vertical field of view in degrees.
func (params *PinholeCameraIntrinsics) FieldOfView() (float64, float64) {
	fov := func(size int, focal float64) float64 {
		return 2 * math.Atan(float64(size)/(2*focal)) * 180 / math.Pi
	}
	return fov(params.Width, params.Fx), fov(params.Height, params.Fy)
}
