package transform

import (
	"errors"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/capstone-rov/rgbdcapture/rimage"
)

func testIntrinsics(w, h int) *PinholeCameraIntrinsics {
	return &PinholeCameraIntrinsics{
		Width:  w,
		Height: h,
		Fx:     100,
		Fy:     100,
		Ppx:    float64(w / 2),
		Ppy:    float64(h / 2),
	}
}

func TestProjectAlignment(t *testing.T) {
	intrin := testIntrinsics(4, 3)
	proj, err := NewProjector(intrin, intrin, nil, DefaultDepthScale)
	test.That(t, err, test.ShouldBeNil)

	dm := rimage.NewEmptyDepthMap(4, 3)
	dm.Set(2, 1, 1000)
	dm.Set(0, 2, 500)

	out, err := proj.Project(dm)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Width, test.ShouldEqual, 4)
	test.That(t, out.Height, test.ShouldEqual, 3)
	test.That(t, out.Vertices, test.ShouldHaveLength, 12)
	test.That(t, out.TexCoords, test.ShouldHaveLength, 12)
	test.That(t, out.Len(), test.ShouldEqual, 12)

	for i, d := range dm.Data() {
		if d == 0 {
			test.That(t, out.Vertices[i], test.ShouldResemble, r3.Vector{})
			test.That(t, out.TexCoords[i], test.ShouldResemble, r2.Point{})
		} else {
			test.That(t, out.Vertices[i].Z, test.ShouldNotEqual, 0)
		}
	}

	// principal point at 1m lands on the optical axis
	center := out.Vertices[1*4+2]
	test.That(t, center, test.ShouldResemble, r3.Vector{X: 0, Y: 0, Z: 1})
	test.That(t, out.TexCoords[1*4+2].X, test.ShouldAlmostEqual, 0.5)
	test.That(t, out.TexCoords[1*4+2].Y, test.ShouldAlmostEqual, 1.0/3)

	corner := out.Vertices[2*4+0]
	test.That(t, corner.Z, test.ShouldAlmostEqual, 0.5)
	test.That(t, corner.X, test.ShouldAlmostEqual, -2*0.5/100)
	test.That(t, corner.Y, test.ShouldAlmostEqual, 1*0.5/100)
	test.That(t, out.TexCoords[2*4+0].X, test.ShouldAlmostEqual, 0)
	test.That(t, out.TexCoords[2*4+0].Y, test.ShouldAlmostEqual, 2.0/3)
}

func TestProjectExtrinsicsShift(t *testing.T) {
	intrin := testIntrinsics(10, 10)
	// shifting by 5cm at 1m moves the point 5 pixels right, beyond the color image edge for x=9
	ext, err := NewExtrinsics([]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}, r3.Vector{X: 0.05})
	test.That(t, err, test.ShouldBeNil)
	proj, err := NewProjector(intrin, intrin, ext, DefaultDepthScale)
	test.That(t, err, test.ShouldBeNil)

	dm := rimage.NewEmptyDepthMap(10, 10)
	dm.Set(9, 5, 1000)
	out, err := proj.Project(dm)
	test.That(t, err, test.ShouldBeNil)

	tc := out.TexCoords[5*10+9]
	test.That(t, tc.X, test.ShouldAlmostEqual, 1.4)
	test.That(t, tc.Y, test.ShouldAlmostEqual, 0.5)
	// the vertex stays in the depth frame
	test.That(t, out.Vertices[5*10+9].X, test.ShouldAlmostEqual, 0.04)
}

func TestProjectMalformed(t *testing.T) {
	intrin := testIntrinsics(4, 3)
	proj, err := NewProjector(intrin, intrin, nil, DefaultDepthScale)
	test.That(t, err, test.ShouldBeNil)

	_, err = proj.Project(nil)
	test.That(t, errors.Is(err, rimage.ErrMalformedFrame), test.ShouldBeTrue)

	_, err = proj.Project(rimage.NewEmptyDepthMap(0, 0))
	test.That(t, errors.Is(err, rimage.ErrMalformedFrame), test.ShouldBeTrue)

	_, err = proj.Project(rimage.NewEmptyDepthMap(3, 4))
	test.That(t, errors.Is(err, rimage.ErrMalformedFrame), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "3x4")
}

func TestNewProjectorValidation(t *testing.T) {
	good := testIntrinsics(4, 3)

	_, err := NewProjector(nil, good, nil, DefaultDepthScale)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)

	_, err = NewProjector(good, &PinholeCameraIntrinsics{Width: 4, Height: 3}, nil, DefaultDepthScale)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "color intrinsics")

	_, err = NewProjector(good, good, nil, 0)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewProjector(good, good, &Extrinsics{}, DefaultDepthScale)
	test.That(t, errors.Is(err, ErrInvalidExtrinsics), test.ShouldBeTrue)
}
