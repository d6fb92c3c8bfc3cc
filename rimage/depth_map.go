package rimage

import (
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// Depth is a raw depth sample in sensor units. Zero means the sensor got no return.
type Depth uint16

// MaxDepth is the largest raw depth a sensor can report.
const MaxDepth = Depth(math.MaxUint16)

// DepthMap fulfills the image.Image interface and represents the depth information of a scene.
// Samples are stored row-major with the origin at the top left.
type DepthMap struct {
	width  int
	height int

	data []Depth
}

// NewEmptyDepthMap returns an all-zero depth map of the given size.
func NewEmptyDepthMap(width, height int) *DepthMap {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	return &DepthMap{
		width:  width,
		height: height,
		data:   make([]Depth, width*height),
	}
}

// NewDepthMapFromData wraps row-major samples. The slice is not copied.
func NewDepthMapFromData(width, height int, data []Depth) (*DepthMap, error) {
	if width <= 0 || height <= 0 {
		return nil, NewMalformedFrameError("invalid depth map size (%d, %d)", width, height)
	}
	if len(data) != width*height {
		return nil, NewMalformedFrameError("depth map has %d samples, expected %dx%d=%d",
			len(data), width, height, width*height)
	}
	return &DepthMap{width: width, height: height, data: data}, nil
}

// Width returns the horizontal size of the map.
func (dm *DepthMap) Width() int {
	return dm.width
}

// Height returns the vertical size of the map.
func (dm *DepthMap) Height() int {
	return dm.height
}

// Empty is true when the map holds no samples.
func (dm *DepthMap) Empty() bool {
	return dm == nil || dm.width == 0 || dm.height == 0
}

// Contains returns whether (x, y) lies inside the map.
func (dm *DepthMap) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < dm.width && y < dm.height
}

func (dm *DepthMap) kxy(x, y int) int {
	return (y * dm.width) + x
}

// Get returns the depth at p.
func (dm *DepthMap) Get(p image.Point) Depth {
	return dm.data[dm.kxy(p.X, p.Y)]
}

// GetDepth returns the depth at (x, y).
func (dm *DepthMap) GetDepth(x, y int) Depth {
	return dm.data[dm.kxy(x, y)]
}

// Set sets the depth at (x, y).
func (dm *DepthMap) Set(x, y int, val Depth) {
	dm.data[dm.kxy(x, y)] = val
}

// Data returns the row-major samples backing the map.
func (dm *DepthMap) Data() []Depth {
	return dm.data
}

// Clone makes a deep copy of the map.
func (dm *DepthMap) Clone() *DepthMap {
	data := make([]Depth, len(dm.data))
	copy(data, dm.data)
	return &DepthMap{width: dm.width, height: dm.height, data: data}
}

// MinMax returns the smallest and largest non-zero depth. Both are zero when no sample is valid.
func (dm *DepthMap) MinMax() (Depth, Depth) {
	var lo, hi Depth
	for _, d := range dm.data {
		if d == 0 {
			continue
		}
		if lo == 0 || d < lo {
			lo = d
		}
		if d > hi {
			hi = d
		}
	}
	return lo, hi
}

// ValidCount returns how many samples are non-zero.
func (dm *DepthMap) ValidCount() int {
	n := 0
	for _, d := range dm.data {
		if d != 0 {
			n++
		}
	}
	return n
}

// ColorModel for DepthMap so that it implements image.Image.
func (dm *DepthMap) ColorModel() color.Model { return color.Gray16Model }

// Bounds for DepthMap so that it implements image.Image.
func (dm *DepthMap) Bounds() image.Rectangle { return image.Rect(0, 0, dm.width, dm.height) }

// At for DepthMap so that it implements image.Image.
func (dm *DepthMap) At(x, y int) color.Color {
	if !dm.Contains(x, y) {
		return color.Gray16{}
	}
	return color.Gray16{uint16(dm.GetDepth(x, y))}
}

// ConvertImageToDepthMap takes a 16-bit grayscale image and turns it into a DepthMap.
func ConvertImageToDepthMap(img image.Image) (*DepthMap, error) {
	switch ii := img.(type) {
	case *DepthMap:
		return ii, nil
	case *image.Gray16:
		return gray16ToDepthMap(ii), nil
	default:
		return nil, errors.Errorf("don't know how to make DepthMap from %T", img)
	}
}

func gray16ToDepthMap(img *image.Gray16) *DepthMap {
	bounds := img.Bounds()
	dm := NewEmptyDepthMap(bounds.Dx(), bounds.Dy())
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			dm.Set(x, y, Depth(img.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y))
		}
	}
	return dm
}

// ToPrettyPicture colorizes the depth map for display. Near samples are red and far samples are
// blue, scaled between hardMin and hardMax. A zero bound is replaced by the map's own extent.
// Samples with no return are black.
func (dm *DepthMap) ToPrettyPicture(hardMin, hardMax Depth) *image.NRGBA {
	img := image.NewNRGBA(dm.Bounds())

	lo, hi := dm.MinMax()
	if hardMin > 0 {
		lo = hardMin
	}
	if hardMax > 0 {
		hi = hardMax
	}
	span := float64(hi) - float64(lo)

	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			d := dm.GetDepth(x, y)
			if d == 0 {
				img.SetNRGBA(x, y, color.NRGBA{0, 0, 0, 255})
				continue
			}
			ratio := 0.0
			if span > 0 {
				ratio = (float64(d) - float64(lo)) / span
			}
			ratio = math.Max(0, math.Min(1, ratio))
			r, g, b := colorful.Hsv(240*ratio, 1, 1).RGB255()
			img.SetNRGBA(x, y, color.NRGBA{r, g, b, 255})
		}
	}
	return img
}
