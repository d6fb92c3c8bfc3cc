package pointcloud

import (
	"image/color"
	"math"

	"github.com/golang/geo/r3"
)

// ColoredPoint is a position in camera space, in meters, with the color sampled for it.
type ColoredPoint struct {
	Position r3.Vector
	R, G, B  uint8
}

// NewColoredPoint convenience method for creating a point.
func NewColoredPoint(x, y, z float64, r, g, b uint8) ColoredPoint {
	return ColoredPoint{Position: r3.Vector{X: x, Y: y, Z: z}, R: r, G: g, B: b}
}

// Color returns the point's color.
func (p ColoredPoint) Color() color.NRGBA {
	return color.NRGBA{p.R, p.G, p.B, 255}
}

// PackedRGB returns the point's color packed as 0x00RRGGBB.
func (p ColoredPoint) PackedRGB() uint32 {
	return PackRGB(p.R, p.G, p.B)
}

// PackRGB packs a color as 0x00RRGGBB.
func PackRGB(r, g, b uint8) uint32 {
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// UnpackRGB splits a 0x00RRGGBB color.
func UnpackRGB(c uint32) (r, g, b uint8) {
	return uint8(0xFF & (c >> 16)), uint8(0xFF & (c >> 8)), uint8(0xFF & c)
}

// PackedRGBToFloat reinterprets a packed color's bits as a float32, as PCD's float rgb field
// expects.
func PackedRGBToFloat(c uint32) float32 {
	return math.Float32frombits(c)
}

// FloatToPackedRGB recovers a packed color from a PCD float rgb field.
func FloatToPackedRGB(f float32) uint32 {
	return math.Float32bits(f)
}
