package rimage

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// SideBySide renders the color image on the left and the colorized depth map on the right. The
// depth side is resized to the color image's size.
func SideBySide(img *ColorImage, dm *DepthMap) (*image.NRGBA, error) {
	if img.Empty() {
		return nil, NewMalformedFrameError("empty color image")
	}
	if dm.Empty() {
		return nil, NewMalformedFrameError("empty depth map")
	}
	w, h := img.Width(), img.Height()

	depth := image.Image(dm.ToPrettyPicture(0, 0))
	if dm.Width() != w || dm.Height() != h {
		depth = imaging.Resize(depth, w, h, imaging.NearestNeighbor)
	}

	dst := imaging.New(2*w, h, color.NRGBA{0, 0, 0, 255})
	dst = imaging.Paste(dst, img, image.Pt(0, 0))
	dst = imaging.Paste(dst, depth, image.Pt(w, 0))
	return dst, nil
}
