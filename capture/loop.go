package capture

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/capstone-rov/rgbdcapture/components/camera"
	"github.com/capstone-rov/rgbdcapture/logging"
	"github.com/capstone-rov/rgbdcapture/rimage"
	"github.com/capstone-rov/rgbdcapture/rimage/transform"
)

// Options configure a Loop.
type Options struct {
	OutputDir   string
	SavePreview bool
	// ColorOrder is the configured channel order. OrderUnknown defers to the source.
	ColorOrder rimage.ChannelOrder
	// WarmupFrames are discarded after start while the sensor settles.
	WarmupFrames int
	// Override replaces any property the source reports when set.
	Override *camera.Properties
}

// Stats count what the loop has seen.
type Stats struct {
	Frames      uint64
	Dropped     uint64
	Malformed   uint64
	Saves       uint64
	FailedSaves uint64
}

// Loop owns a frame source and the last good frame. It renders every frame and saves one when the
// controller has a pending request.
type Loop struct {
	source     camera.Source
	controller *Controller
	renderer   Renderer
	opts       Options
	clock      clock.Clock
	logger     logging.Logger
	sessionID  string

	frames, dropped, malformed, saves, failedSaves atomic.Uint64

	mu        sync.Mutex
	latest    FrameView
	hasLatest bool
	transform ViewTransform
	results   []SaveResult
}

// NewLoop returns a loop over source. A nil renderer draws nothing and a nil clock uses the wall
// clock.
func NewLoop(
	source camera.Source,
	controller *Controller,
	renderer Renderer,
	opts Options,
	clk clock.Clock,
	logger logging.Logger,
) *Loop {
	if renderer == nil {
		renderer = noopRenderer{}
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Loop{
		source:     source,
		controller: controller,
		renderer:   renderer,
		opts:       opts,
		clock:      clk,
		logger:     logger,
		sessionID:  uuid.NewString(),
	}
}

// SessionID identifies this run in logs.
func (l *Loop) SessionID() string {
	return l.sessionID
}

// SetViewTransform updates the transform handed to the renderer.
func (l *Loop) SetViewTransform(vt ViewTransform) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transform = vt
}

// Latest returns the most recently rendered view.
func (l *Loop) Latest() (FrameView, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latest, l.hasLatest
}

// Results returns the saves completed so far.
func (l *Loop) Results() []SaveResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]SaveResult(nil), l.results...)
}

// Stats returns the loop's counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Frames:      l.frames.Load(),
		Dropped:     l.dropped.Load(),
		Malformed:   l.malformed.Load(),
		Saves:       l.saves.Load(),
		FailedSaves: l.failedSaves.Load(),
	}
}

// Run starts the source and processes frames until ctx is done or the source fails. Cancellation
// is checked between frames; a save in progress always finishes. Source failures are returned as
// device errors. A cancelled context returns nil.
func (l *Loop) Run(ctx context.Context) (err error) {
	logger := l.logger
	logger.Infow("starting capture", "session", l.sessionID, "output_dir", l.opts.OutputDir)

	if err := l.source.Start(ctx); err != nil {
		return asDeviceError(err, "starting frame source")
	}
	defer func() {
		err = multierr.Combine(err, l.source.Stop(context.Background()))
	}()

	props, err := l.source.Properties(ctx)
	if err != nil {
		return asDeviceError(err, "reading frame source properties")
	}
	props = MergeProperties(props, l.opts.Override)

	order, err := camera.ResolveColorOrder(l.opts.ColorOrder, props.ColorOrder, logger)
	if err != nil {
		return err
	}
	projector, err := props.Projector()
	if err != nil {
		return errors.Wrap(err, "cannot project frames")
	}
	depthHFOV, depthVFOV := projector.DepthIntrinsics().FieldOfView()
	colorHFOV, colorVFOV := projector.ColorIntrinsics().FieldOfView()
	logger.Infow("frame source ready",
		"depth_fov_deg", []float64{depthHFOV, depthVFOV},
		"color_fov_deg", []float64{colorHFOV, colorVFOV},
		"depth_scale", projector.DepthScale(),
		"color_order", order.String(),
	)
	pipeline := NewPipeline(projector, PipelineOptions{
		OutputDir:   l.opts.OutputDir,
		SavePreview: l.opts.SavePreview,
	}, l.clock, logger.Sublogger("pipeline"))

	warmup := l.opts.WarmupFrames
	for {
		if ctx.Err() != nil {
			return nil
		}
		pair, err := l.source.WaitForFrames(ctx)
		switch {
		case err == nil:
		case errors.Is(err, camera.ErrNoNewFrame):
			l.dropped.Inc()
			l.renderLast()
			continue
		case ctx.Err() != nil:
			return nil
		default:
			return asDeviceError(err, "waiting for frames")
		}

		if warmup > 0 {
			warmup--
			logger.Debugw("discarding warm-up frame", "frame", pair.Sequence, "remaining", warmup)
			continue
		}
		l.frames.Inc()
		l.processFrame(pipeline, projector, order, pair)
	}
}

func (l *Loop) processFrame(
	pipeline *Pipeline,
	projector *transform.Projector,
	order rimage.ChannelOrder,
	pair camera.FramePair,
) {
	projection, prepErr := prepare(projector, order, &pair)
	if prepErr == nil {
		l.mu.Lock()
		view := FrameView{
			Pair:        pair,
			Projection:  projection,
			Transform:   l.transform,
			SavePending: l.controller.Pending(),
		}
		l.latest, l.hasLatest = view, true
		l.mu.Unlock()
		l.renderer.Render(view)
	}

	ran, err := l.controller.Consume(func() error {
		if prepErr != nil {
			return prepErr
		}
		res, err := pipeline.SaveProjection(projection, pair)
		if err != nil {
			return err
		}
		l.mu.Lock()
		l.results = append(l.results, res)
		l.mu.Unlock()
		return nil
	})
	switch {
	case ran && err == nil:
		l.saves.Inc()
	case ran:
		l.failedSaves.Inc()
		l.logger.Errorw("save failed, ready for the next request", "frame", pair.Sequence, "error", err)
	}
	if prepErr != nil {
		l.malformed.Inc()
		if !ran {
			l.logger.Warnw("skipping malformed frame", "frame", pair.Sequence, "error", prepErr)
		}
	}
}

// prepare validates the pair, labels its color order, and projects it.
func prepare(projector *transform.Projector, order rimage.ChannelOrder, pair *camera.FramePair) (*transform.Projection, error) {
	if err := pair.Validate(); err != nil {
		return nil, err
	}
	labelled, err := camera.ApplyColorOrder(*pair, order)
	if err != nil {
		return nil, err
	}
	*pair = labelled
	return projector.Project(pair.Depth)
}

func (l *Loop) renderLast() {
	l.mu.Lock()
	if !l.hasLatest {
		l.mu.Unlock()
		return
	}
	view := l.latest
	view.Stale = true
	view.Transform = l.transform
	view.SavePending = l.controller.Pending()
	l.mu.Unlock()
	l.renderer.Render(view)
}

func asDeviceError(err error, msg string) error {
	if errors.Is(err, camera.ErrDevice) {
		return err
	}
	return camera.NewDeviceError(err, msg)
}

// MergeProperties overlays the set fields of override onto reported.
func MergeProperties(reported camera.Properties, override *camera.Properties) camera.Properties {
	if override == nil {
		return reported
	}
	if override.DepthIntrinsics != nil {
		reported.DepthIntrinsics = override.DepthIntrinsics
	}
	if override.ColorIntrinsics != nil {
		reported.ColorIntrinsics = override.ColorIntrinsics
	}
	if override.DepthToColor != nil {
		reported.DepthToColor = override.DepthToColor
	}
	if override.DepthScale != 0 {
		reported.DepthScale = override.DepthScale
	}
	if override.ColorOrder != rimage.OrderUnknown {
		reported.ColorOrder = override.ColorOrder
	}
	return reported
}
