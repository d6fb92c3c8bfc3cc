package transform

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/capstone-rov/rgbdcapture/rimage"
)

// DefaultDepthScale is meters per raw depth unit for sensors that report millimeters.
const DefaultDepthScale = 0.001

// Projection is the per-pixel output of a Projector. Vertices and TexCoords are index aligned
// with the depth map's row-major samples.
type Projection struct {
	Width     int
	Height    int
	Vertices  []r3.Vector
	TexCoords []r2.Point
}

// Len returns the number of projected pixels.
func (p *Projection) Len() int {
	return len(p.Vertices)
}

// Projector deprojects depth pixels into 3D and maps each one onto the color image.
type Projector struct {
	depth      *PinholeCameraIntrinsics
	color      *PinholeCameraIntrinsics
	extrinsics *Extrinsics
	depthScale float64
}

// NewProjector validates the camera system and returns a Projector for it. Nil extrinsics mean
// the sensors share a frame.
func NewProjector(depth, color *PinholeCameraIntrinsics, ext *Extrinsics, depthScale float64) (*Projector, error) {
	if err := depth.CheckValid(); err != nil {
		return nil, errors.Wrap(err, "depth intrinsics")
	}
	if err := color.CheckValid(); err != nil {
		return nil, errors.Wrap(err, "color intrinsics")
	}
	if ext == nil {
		ext = IdentityExtrinsics()
	}
	if err := ext.CheckValid(); err != nil {
		return nil, err
	}
	if depthScale <= 0 {
		return nil, errors.Errorf("depth scale must be positive, got %v", depthScale)
	}
	return &Projector{depth: depth, color: color, extrinsics: ext, depthScale: depthScale}, nil
}

// DepthIntrinsics returns the intrinsics of the depth sensor.
func (p *Projector) DepthIntrinsics() *PinholeCameraIntrinsics { return p.depth }

// ColorIntrinsics returns the intrinsics of the color sensor.
func (p *Projector) ColorIntrinsics() *PinholeCameraIntrinsics { return p.color }

// DepthScale returns meters per raw depth unit.
func (p *Projector) DepthScale() float64 { return p.depthScale }

// Project computes a vertex and texture coordinate for every depth pixel in raster order. Pixels
// with no return get a zero vertex and a zero texture coordinate. Texture coordinates are not
// clamped and fall outside [0,1] for points the color camera cannot see.
func (p *Projector) Project(dm *rimage.DepthMap) (*Projection, error) {
	if dm.Empty() {
		return nil, rimage.NewMalformedFrameError("empty depth map")
	}
	if dm.Width() != p.depth.Width || dm.Height() != p.depth.Height {
		return nil, rimage.NewMalformedFrameError("depth map is %dx%d but intrinsics are %dx%d",
			dm.Width(), dm.Height(), p.depth.Width, p.depth.Height)
	}

	n := dm.Width() * dm.Height()
	proj := &Projection{
		Width:     dm.Width(),
		Height:    dm.Height(),
		Vertices:  make([]r3.Vector, n),
		TexCoords: make([]r2.Point, n),
	}
	data := dm.Data()
	for y := 0; y < dm.Height(); y++ {
		for x := 0; x < dm.Width(); x++ {
			i := y*dm.Width() + x
			d := data[i]
			if d == 0 {
				continue
			}
			vertex := p.depth.PixelToPoint(float64(x), float64(y), float64(d)*p.depthScale)
			px := p.color.PointToPixel(p.extrinsics.TransformPoint(vertex))
			proj.Vertices[i] = vertex
			proj.TexCoords[i] = p.color.PixelToTexCoord(px)
		}
	}
	return proj, nil
}
