package transform

import (
	"encoding/json"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidExtrinsics is returned when a depth to color transform is not a rigid motion.
var ErrInvalidExtrinsics = errors.New("invalid extrinsic parameters")

// detTolerance bounds how far a rotation's determinant may drift from 1.
const detTolerance = 1e-3

// Extrinsics is the rigid transform from the depth camera's frame to the color camera's frame.
// Translation is in meters.
type Extrinsics struct {
	Rotation    *mat.Dense
	Translation r3.Vector
}

type extrinsicsJSON struct {
	Rotation    []float64 `json:"rotation"`
	Translation []float64 `json:"translation_m"`
}

// IdentityExtrinsics is used when the depth and color sensors share a frame.
func IdentityExtrinsics() *Extrinsics {
	return &Extrinsics{
		Rotation: mat.NewDense(3, 3, []float64{
			1, 0, 0,
			0, 1, 0,
			0, 0, 1,
		}),
	}
}

// NewExtrinsics builds extrinsics from a row-major 3x3 rotation and a translation.
func NewExtrinsics(rotation []float64, translation r3.Vector) (*Extrinsics, error) {
	if len(rotation) != 9 {
		return nil, errors.Wrapf(ErrInvalidExtrinsics, "rotation has %d elements, need 9", len(rotation))
	}
	ext := &Extrinsics{
		Rotation:    mat.NewDense(3, 3, append([]float64(nil), rotation...)),
		Translation: translation,
	}
	if err := ext.CheckValid(); err != nil {
		return nil, err
	}
	return ext, nil
}

// CheckValid checks the rotation is 3x3 with a determinant of 1.
func (ext *Extrinsics) CheckValid() error {
	if ext == nil || ext.Rotation == nil {
		return errors.Wrap(ErrInvalidExtrinsics, "rotation is not set")
	}
	if r, c := ext.Rotation.Dims(); r != 3 || c != 3 {
		return errors.Wrapf(ErrInvalidExtrinsics, "rotation is %dx%d, need 3x3", r, c)
	}
	if det := mat.Det(ext.Rotation); math.Abs(det-1) > detTolerance {
		return errors.Wrapf(ErrInvalidExtrinsics, "rotation determinant is %v, need 1", det)
	}
	return nil
}

// TransformPoint moves a point from the depth frame into the color frame.
func (ext *Extrinsics) TransformPoint(pt r3.Vector) r3.Vector {
	var out mat.VecDense
	out.MulVec(ext.Rotation, mat.NewVecDense(3, []float64{pt.X, pt.Y, pt.Z}))
	return r3.Vector{
		X: out.AtVec(0) + ext.Translation.X,
		Y: out.AtVec(1) + ext.Translation.Y,
		Z: out.AtVec(2) + ext.Translation.Z,
	}
}

// MarshalJSON encodes the rotation row-major and the translation as a 3 element list.
func (ext *Extrinsics) MarshalJSON() ([]byte, error) {
	rot := make([]float64, 0, 9)
	for i := 0; i < 3; i++ {
		rot = append(rot, ext.Rotation.RawRowView(i)...)
	}
	return json.Marshal(extrinsicsJSON{
		Rotation:    rot,
		Translation: []float64{ext.Translation.X, ext.Translation.Y, ext.Translation.Z},
	})
}

// UnmarshalJSON decodes and validates extrinsics.
func (ext *Extrinsics) UnmarshalJSON(data []byte) error {
	var raw extrinsicsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Translation) != 3 {
		return errors.Wrapf(ErrInvalidExtrinsics, "translation has %d elements, need 3", len(raw.Translation))
	}
	parsed, err := NewExtrinsics(raw.Rotation, r3.Vector{X: raw.Translation[0], Y: raw.Translation[1], Z: raw.Translation[2]})
	if err != nil {
		return err
	}
	*ext = *parsed
	return nil
}
