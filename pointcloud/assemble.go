package pointcloud

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/capstone-rov/rgbdcapture/rimage"
)

// Assemble pairs every valid vertex with the color found at its texture coordinate. A vertex is
// valid when its Z is not zero. The output keeps the input order.
func Assemble(vertices []r3.Vector, texCoords []r2.Point, img *rimage.ColorImage) (*Frame, error) {
	if len(vertices) != len(texCoords) {
		return nil, rimage.NewMalformedFrameError("%d vertices but %d texture coordinates", len(vertices), len(texCoords))
	}
	if img.Empty() {
		return nil, rimage.NewMalformedFrameError("empty color image")
	}
	if img.Order() == rimage.OrderUnknown {
		return nil, rimage.NewMalformedFrameError("color image channel order is unknown")
	}

	w, h := img.Width(), img.Height()
	frame := NewFrame(len(vertices))
	for i, v := range vertices {
		if v.Z == 0 {
			continue
		}
		px, py := TexCoordToPixel(texCoords[i], w, h)
		r, g, b := img.RGB(px, py)
		frame.Append(ColoredPoint{Position: v, R: r, G: g, B: b})
	}
	return frame, nil
}

// TexCoordToPixel rounds a texture coordinate half up to the nearest pixel of a w by h image and
// clamps it into the image.
func TexCoordToPixel(tc r2.Point, w, h int) (int, int) {
	return clampIndex(tc.X*float64(w), w), clampIndex(tc.Y*float64(h), h)
}

func clampIndex(v float64, n int) int {
	f := math.Floor(v + 0.5)
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > float64(n-1):
		return n - 1
	default:
		return int(f)
	}
}
