package capture

import (
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/docker/go-units"
	"github.com/pkg/errors"

	"github.com/capstone-rov/rgbdcapture/components/camera"
	"github.com/capstone-rov/rgbdcapture/logging"
	"github.com/capstone-rov/rgbdcapture/pointcloud"
	"github.com/capstone-rov/rgbdcapture/rimage"
	"github.com/capstone-rov/rgbdcapture/rimage/transform"
)

// TimestampFormat names saved files to the second, in local time.
const TimestampFormat = "2006-01-02_15-04-05"

const (
	pointCloudPrefix = "captured_point_cloud_"
	previewPrefix    = "captured_image_"
)

// SaveResult describes a written point cloud.
type SaveResult struct {
	Path        string
	PreviewPath string
	Points      int
	Bytes       int64
}

// PipelineOptions configure where and what a Pipeline saves.
type PipelineOptions struct {
	OutputDir   string
	SavePreview bool
}

// Pipeline turns a frame pair into a PCD file.
type Pipeline struct {
	projector *transform.Projector
	opts      PipelineOptions
	clock     clock.Clock
	logger    logging.Logger
}

// NewPipeline returns a pipeline. A nil clock uses the wall clock.
func NewPipeline(projector *transform.Projector, opts PipelineOptions, clk clock.Clock, logger logging.Logger) *Pipeline {
	if clk == nil {
		clk = clock.New()
	}
	return &Pipeline{projector: projector, opts: opts, clock: clk, logger: logger}
}

// PointCloudPath returns where a save taken at t is written.
func (p *Pipeline) PointCloudPath(t time.Time) string {
	return filepath.Join(p.opts.OutputDir, pointCloudPrefix+t.Local().Format(TimestampFormat)+".pcd")
}

// PreviewPath returns where the preview image of a save taken at t is written.
func (p *Pipeline) PreviewPath(t time.Time) string {
	return filepath.Join(p.opts.OutputDir, previewPrefix+t.Local().Format(TimestampFormat)+".png")
}

// Save projects the pair's depth map and writes the colored cloud.
func (p *Pipeline) Save(pair camera.FramePair) (SaveResult, error) {
	projection, err := p.projector.Project(pair.Depth)
	if err != nil {
		return SaveResult{}, err
	}
	return p.SaveProjection(projection, pair)
}

// SaveProjection writes a cloud from a projection already computed for the pair.
func (p *Pipeline) SaveProjection(projection *transform.Projection, pair camera.FramePair) (SaveResult, error) {
	now := p.clock.Now()
	path := p.PointCloudPath(now)

	frame, err := pointcloud.Assemble(projection.Vertices, projection.TexCoords, pair.Color)
	if err != nil {
		return SaveResult{}, err
	}
	if err := pointcloud.WritePCDFile(path, frame); err != nil {
		return SaveResult{}, err
	}

	res := SaveResult{Path: path, Points: frame.Size()}
	if info, err := os.Stat(path); err == nil {
		res.Bytes = info.Size()
	}

	if p.opts.SavePreview {
		previewPath := p.PreviewPath(now)
		if err := writePreview(previewPath, pair); err != nil {
			p.logger.Warnw("failed to save preview image", "path", previewPath, "error", err)
		} else {
			res.PreviewPath = previewPath
		}
	}

	p.logger.Infow("saved point cloud",
		"path", res.Path,
		"points", res.Points,
		"size", units.HumanSize(float64(res.Bytes)),
		"frame", pair.Sequence)
	return res, nil
}

func writePreview(path string, pair camera.FramePair) error {
	img, err := rimage.SideBySide(pair.Color, pair.Depth)
	if err != nil {
		return err
	}
	return errors.Wrap(rimage.WriteImageToFile(path, img), "writing preview")
}
