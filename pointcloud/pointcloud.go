// Package pointcloud defines a colored point cloud frame, the assembly of one from a projected
// depth map and a color image, and its persistence as ASCII PCD.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// MetaData is data about what's stored in a frame.
type MetaData struct {
	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64

	totalX, totalY, totalZ float64
	points                 int
}

// NewMetaData returns meta data for an empty frame.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// Merge includes a point in the meta data.
func (meta *MetaData) Merge(v r3.Vector) {
	meta.points++
	meta.totalX += v.X
	meta.totalY += v.Y
	meta.totalZ += v.Z

	meta.MaxX = math.Max(meta.MaxX, v.X)
	meta.MaxY = math.Max(meta.MaxY, v.Y)
	meta.MaxZ = math.Max(meta.MaxZ, v.Z)

	meta.MinX = math.Min(meta.MinX, v.X)
	meta.MinY = math.Min(meta.MinY, v.Y)
	meta.MinZ = math.Min(meta.MinZ, v.Z)
}

// Points returns how many points were merged.
func (meta *MetaData) Points() int {
	return meta.points
}

// Center returns the mean of the merged points.
func (meta *MetaData) Center() r3.Vector {
	if meta.points == 0 {
		return r3.Vector{}
	}
	n := float64(meta.points)
	return r3.Vector{X: meta.totalX / n, Y: meta.totalY / n, Z: meta.totalZ / n}
}

// Frame is the ordered set of colored points produced from one capture. Points keep the raster
// order they were added in.
type Frame struct {
	points []ColoredPoint
	meta   MetaData
}

// NewFrame returns an empty frame with room for capacity points.
func NewFrame(capacity int) *Frame {
	return &Frame{
		points: make([]ColoredPoint, 0, capacity),
		meta:   NewMetaData(),
	}
}

// NewFrameFromPoints builds a frame holding the given points in order.
func NewFrameFromPoints(points []ColoredPoint) *Frame {
	f := NewFrame(len(points))
	for _, p := range points {
		f.Append(p)
	}
	return f
}

// Append adds a point at the end of the frame.
func (f *Frame) Append(p ColoredPoint) {
	f.points = append(f.points, p)
	f.meta.Merge(p.Position)
}

// Size returns the number of points in the frame.
func (f *Frame) Size() int {
	return len(f.points)
}

// At returns the i-th point.
func (f *Frame) At(i int) ColoredPoint {
	return f.points[i]
}

// Points returns a copy of the frame's points.
func (f *Frame) Points() []ColoredPoint {
	out := make([]ColoredPoint, len(f.points))
	copy(out, f.points)
	return out
}

// Iterate calls fn for each point in order until fn returns false.
func (f *Frame) Iterate(fn func(i int, p ColoredPoint) bool) {
	for i, p := range f.points {
		if !fn(i, p) {
			return
		}
	}
}

// MetaData returns bounds and the centroid of the frame.
func (f *Frame) MetaData() MetaData {
	return f.meta
}
