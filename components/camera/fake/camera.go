// Package fake implements a synthetic depth camera. It renders a plane with a hemispherical bump
// and a band with no depth return, and a gradient color image in BGR with padded rows.
package fake

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/capstone-rov/rgbdcapture/components/camera"
	"github.com/capstone-rov/rgbdcapture/logging"
	"github.com/capstone-rov/rgbdcapture/rimage"
	"github.com/capstone-rov/rgbdcapture/rimage/transform"
)

const (
	initialWidth  = 640
	initialHeight = 480
	defaultFPS    = 30

	// rowPadding is appended to every color row so consumers must honor the stride.
	rowPadding = 4

	planeDepthMM = 1500
	bumpHeightMM = 400
)

// Config are the attributes of the fake camera.
type Config struct {
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
	FPS    float64 `json:"fps,omitempty"`
	// DropEvery makes every n-th frame a dropped frame. Zero never drops.
	DropEvery int `json:"drop_every,omitempty"`
}

// Validate checks that the config attributes are valid for a fake camera.
func (conf *Config) Validate() error {
	if conf.Width < 0 || conf.Height < 0 {
		return errors.Errorf("got illegal negative dimensions (%d, %d) for fake camera", conf.Width, conf.Height)
	}
	if conf.FPS < 0 {
		return errors.Errorf("fps cannot be negative, got %v", conf.FPS)
	}
	if conf.DropEvery < 0 {
		return errors.Errorf("drop_every cannot be negative, got %d", conf.DropEvery)
	}
	return nil
}

var fakeIntrinsics = &transform.PinholeCameraIntrinsics{
	Width:  initialWidth,
	Height: initialHeight,
	Fx:     605.2,
	Fy:     605.2,
	Ppx:    320,
	Ppy:    240,
}

// fakeModel scales the intrinsics to the requested resolution. One unspecified side keeps the
// 4:3 aspect ratio.
func fakeModel(width, height int) (*transform.PinholeCameraIntrinsics, int, int) {
	switch {
	case width > 0 && height > 0:
	case width > 0:
		height = max(1, int(float64(initialHeight)*float64(width)/float64(initialWidth)))
	case height > 0:
		width = max(1, int(float64(initialWidth)*float64(height)/float64(initialHeight)))
	default:
		width, height = initialWidth, initialHeight
	}
	widthRatio := float64(width) / float64(initialWidth)
	heightRatio := float64(height) / float64(initialHeight)
	return &transform.PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     fakeIntrinsics.Fx * widthRatio,
		Fy:     fakeIntrinsics.Fy * heightRatio,
		Ppx:    fakeIntrinsics.Ppx * widthRatio,
		Ppy:    fakeIntrinsics.Ppy * heightRatio,
	}, width, height
}

// Source is a fake frame source paced by a clock.
type Source struct {
	intrinsics *transform.PinholeCameraIntrinsics
	period     time.Duration
	dropEvery  int
	clock      clock.Clock
	logger     logging.Logger

	mu       sync.Mutex
	ticker   *clock.Ticker
	started  bool
	sequence uint64
	depth    *rimage.DepthMap
}

// NewSource returns a fake source for the config. A nil clock uses the wall clock.
func NewSource(conf Config, clk clock.Clock, logger logging.Logger) (*Source, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	fps := conf.FPS
	if fps == 0 {
		fps = defaultFPS
	}
	intrinsics, width, height := fakeModel(conf.Width, conf.Height)
	return &Source{
		intrinsics: intrinsics,
		period:     time.Duration(float64(time.Second) / fps),
		dropEvery:  conf.DropEvery,
		clock:      clk,
		logger:     logger,
		depth:      renderDepth(width, height),
	}, nil
}

// Start begins streaming.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return camera.NewDeviceError(nil, "fake camera already started")
	}
	s.ticker = s.clock.Ticker(s.period)
	s.started = true
	s.logger.Debugw("fake camera started",
		"width", s.intrinsics.Width, "height", s.intrinsics.Height, "period", s.period)
	return nil
}

// WaitForFrames blocks until the next tick and returns a new frame.
func (s *Source) WaitForFrames(ctx context.Context) (camera.FramePair, error) {
	s.mu.Lock()
	ticker, started := s.ticker, s.started
	s.mu.Unlock()
	if !started {
		return camera.FramePair{}, camera.NewDeviceError(nil, "fake camera is not streaming")
	}

	var now time.Time
	select {
	case <-ctx.Done():
		return camera.FramePair{}, ctx.Err()
	case now = <-ticker.C:
	}

	s.mu.Lock()
	s.sequence++
	seq := s.sequence
	s.mu.Unlock()

	if s.dropEvery > 0 && seq%uint64(s.dropEvery) == 0 {
		return camera.FramePair{}, camera.ErrNoNewFrame
	}
	return camera.FramePair{
		Depth:      s.depth.Clone(),
		Color:      renderColor(s.intrinsics.Width, s.intrinsics.Height, seq),
		Sequence:   seq,
		CapturedAt: now,
	}, nil
}

// Properties returns the fake intrinsics. Depth and color share a frame.
func (s *Source) Properties(ctx context.Context) (camera.Properties, error) {
	intrinsics := *s.intrinsics
	return camera.Properties{
		DepthIntrinsics: &intrinsics,
		ColorIntrinsics: &intrinsics,
		DepthScale:      transform.DefaultDepthScale,
		ColorOrder:      rimage.OrderBGR,
	}, nil
}

// Stop ends streaming.
func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.ticker.Stop()
	s.started = false
	return nil
}

// holeBand reports whether column x lies in the band with no depth return.
func holeBand(x, width int) bool {
	start := width / 8
	return x >= start && x < start+max(1, width/32)
}

func renderDepth(width, height int) *rimage.DepthMap {
	dm := rimage.NewEmptyDepthMap(width, height)
	cx, cy := float64(width)/2, float64(height)/2
	radius := math.Min(float64(width), float64(height)) / 4
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if holeBand(x, width) {
				continue
			}
			d := float64(planeDepthMM)
			dx, dy := float64(x)-cx, float64(y)-cy
			if r2 := dx*dx + dy*dy; r2 < radius*radius {
				d -= bumpHeightMM * math.Sqrt(1-r2/(radius*radius))
			}
			dm.Set(x, y, rimage.Depth(d))
		}
	}
	return dm
}

// renderColor draws a red to green gradient whose blue channel cycles with the frame number.
func renderColor(width, height int, seq uint64) *rimage.ColorImage {
	stride := width*rimage.BytesPerPixel + rowPadding
	pix := make([]byte, stride*height)
	blue := byte(seq % 256)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*stride + x*rimage.BytesPerPixel
			pix[i] = blue
			pix[i+1] = byte(255 * y / max(1, height-1))
			pix[i+2] = byte(255 * x / max(1, width-1))
		}
	}
	img, err := rimage.NewColorImage(width, height, stride, rimage.OrderBGR, pix)
	if err != nil {
		// dimensions come from validated config
		panic(err)
	}
	return img
}
