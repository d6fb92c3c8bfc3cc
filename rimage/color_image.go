package rimage

import (
	"image"
	"image/color"
)

// BytesPerPixel is the packed size of one color pixel.
const BytesPerPixel = 3

// ColorImage is a packed 3-channel 8-bit image as delivered by a camera. Rows may be padded, so
// every access goes through Stride. It implements image.Image so it can be encoded or drawn.
type ColorImage struct {
	width  int
	height int
	stride int
	order  ChannelOrder
	pix    []byte
}

// NewColorImage wraps a packed pixel buffer. The buffer is not copied. The last row need not
// carry its padding.
func NewColorImage(width, height, stride int, order ChannelOrder, pix []byte) (*ColorImage, error) {
	if width <= 0 || height <= 0 {
		return nil, NewMalformedFrameError("invalid color image size (%d, %d)", width, height)
	}
	if stride < width*BytesPerPixel {
		return nil, NewMalformedFrameError("stride %d is less than %d bytes per row", stride, width*BytesPerPixel)
	}
	if need := (height-1)*stride + width*BytesPerPixel; len(pix) < need {
		return nil, NewMalformedFrameError("color buffer has %d bytes, need at least %d", len(pix), need)
	}
	return &ColorImage{width: width, height: height, stride: stride, order: order, pix: pix}, nil
}

// NewColorImageFromImage packs any image into the given channel order with no row padding.
func NewColorImageFromImage(img image.Image, order ChannelOrder) *ColorImage {
	if order == OrderUnknown {
		order = OrderRGB
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	ci := &ColorImage{
		width:  w,
		height: h,
		stride: w * BytesPerPixel,
		order:  order,
		pix:    make([]byte, w*h*BytesPerPixel),
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			ci.setRGB(x, y, c.R, c.G, c.B)
		}
	}
	return ci
}

// Width returns the horizontal size of the image.
func (ci *ColorImage) Width() int { return ci.width }

// Height returns the vertical size of the image.
func (ci *ColorImage) Height() int { return ci.height }

// Stride returns the number of bytes per row, padding included.
func (ci *ColorImage) Stride() int { return ci.stride }

// Order returns the channel order of the pixel bytes.
func (ci *ColorImage) Order() ChannelOrder { return ci.order }

// Pix returns the raw pixel buffer.
func (ci *ColorImage) Pix() []byte { return ci.pix }

// Empty is true when the image has no pixels.
func (ci *ColorImage) Empty() bool {
	return ci == nil || ci.width == 0 || ci.height == 0
}

// WithOrder returns a view of the same bytes labelled with another channel order.
func (ci *ColorImage) WithOrder(order ChannelOrder) *ColorImage {
	cp := *ci
	cp.order = order
	return &cp
}

func (ci *ColorImage) offset(x, y int) int {
	return y*ci.stride + x*BytesPerPixel
}

// RGB returns the red, green, and blue values at (x, y). The caller keeps (x, y) in bounds and the
// order known; an unknown order is read as RGB.
func (ci *ColorImage) RGB(x, y int) (r, g, b uint8) {
	i := ci.offset(x, y)
	px := ci.pix[i : i+BytesPerPixel : i+BytesPerPixel]
	if ci.order == OrderBGR {
		return px[2], px[1], px[0]
	}
	return px[0], px[1], px[2]
}

func (ci *ColorImage) setRGB(x, y int, r, g, b uint8) {
	i := ci.offset(x, y)
	if ci.order == OrderBGR {
		ci.pix[i], ci.pix[i+1], ci.pix[i+2] = b, g, r
		return
	}
	ci.pix[i], ci.pix[i+1], ci.pix[i+2] = r, g, b
}

// ColorModel for ColorImage so that it implements image.Image.
func (ci *ColorImage) ColorModel() color.Model { return color.NRGBAModel }

// Bounds for ColorImage so that it implements image.Image.
func (ci *ColorImage) Bounds() image.Rectangle { return image.Rect(0, 0, ci.width, ci.height) }

// At for ColorImage so that it implements image.Image.
func (ci *ColorImage) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= ci.width || y >= ci.height {
		return color.NRGBA{}
	}
	r, g, b := ci.RGB(x, y)
	return color.NRGBA{r, g, b, 255}
}
