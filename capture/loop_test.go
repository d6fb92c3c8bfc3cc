package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"github.com/capstone-rov/rgbdcapture/components/camera"
	"github.com/capstone-rov/rgbdcapture/components/camera/fake"
	"github.com/capstone-rov/rgbdcapture/logging"
	"github.com/capstone-rov/rgbdcapture/rimage"
	"github.com/capstone-rov/rgbdcapture/rimage/transform"
)

// step is one scripted WaitForFrames result. before runs first, on the loop goroutine.
type step struct {
	pair   camera.FramePair
	err    error
	before func()
}

// scriptedSource plays steps in order and cancels the run when they are exhausted.
type scriptedSource struct {
	props    camera.Properties
	steps    []step
	cancel   context.CancelFunc
	startErr error

	mu      sync.Mutex
	stopped bool
}

func (s *scriptedSource) Start(ctx context.Context) error {
	return s.startErr
}

func (s *scriptedSource) WaitForFrames(ctx context.Context) (camera.FramePair, error) {
	if len(s.steps) == 0 {
		s.cancel()
		<-ctx.Done()
		return camera.FramePair{}, ctx.Err()
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	if st.before != nil {
		st.before()
	}
	return st.pair, st.err
}

func (s *scriptedSource) Properties(ctx context.Context) (camera.Properties, error) {
	return s.props, nil
}

func (s *scriptedSource) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func testProperties() camera.Properties {
	return camera.Properties{
		DepthIntrinsics: testIntrinsics(4, 4),
		ColorIntrinsics: testIntrinsics(4, 4),
		DepthScale:      transform.DefaultDepthScale,
		ColorOrder:      rimage.OrderBGR,
	}
}

func seq(pair camera.FramePair, n uint64) camera.FramePair {
	pair.Sequence = n
	return pair
}

func pcdFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "captured_point_cloud_*.pcd"))
	test.That(t, err, test.ShouldBeNil)
	return matches
}

func TestLoopWarmupDropsAndSaves(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := t.TempDir()
	controller := NewController()
	pair := testPair(t, rimage.OrderUnknown)

	src := &scriptedSource{
		props:  testProperties(),
		cancel: cancel,
		steps: []step{
			{pair: seq(pair, 1)},
			{pair: seq(pair, 2)},
			{pair: seq(pair, 3)},
			{err: camera.ErrNoNewFrame},
			{pair: seq(pair, 4), before: func() {
				test.That(t, controller.Trigger(), test.ShouldBeTrue)
				test.That(t, controller.Trigger(), test.ShouldBeFalse)
			}},
			{pair: seq(pair, 5)},
		},
	}

	var views []FrameView
	renderer := RendererFunc(func(v FrameView) { views = append(views, v) })
	loop := NewLoop(src, controller, renderer, Options{OutputDir: dir, WarmupFrames: 2}, clock.NewMock(), logging.NewTestLogger(t))

	test.That(t, loop.Run(ctx), test.ShouldBeNil)
	test.That(t, src.stopped, test.ShouldBeTrue)

	test.That(t, views, test.ShouldHaveLength, 4)
	test.That(t, views[0].Pair.Sequence, test.ShouldEqual, uint64(3))
	test.That(t, views[0].Pair.Color.Order(), test.ShouldEqual, rimage.OrderBGR)
	test.That(t, views[0].Projection.Len(), test.ShouldEqual, 16)
	// the dropped frame renders the previous one again
	test.That(t, views[1].Stale, test.ShouldBeTrue)
	test.That(t, views[1].Pair.Sequence, test.ShouldEqual, uint64(3))
	test.That(t, views[2].Pair.Sequence, test.ShouldEqual, uint64(4))
	test.That(t, views[2].SavePending, test.ShouldBeTrue)
	test.That(t, views[3].SavePending, test.ShouldBeFalse)

	test.That(t, pcdFiles(t, dir), test.ShouldHaveLength, 1)
	test.That(t, loop.Results(), test.ShouldHaveLength, 1)
	test.That(t, loop.Results()[0].Points, test.ShouldEqual, 15)
	test.That(t, loop.Stats(), test.ShouldResemble, Stats{Frames: 3, Dropped: 1, Saves: 1})
	test.That(t, controller.State(), test.ShouldEqual, Idle)

	latest, ok := loop.Latest()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, latest.Pair.Sequence, test.ShouldEqual, uint64(5))
	test.That(t, loop.SessionID(), test.ShouldNotBeEmpty)
}

func TestLoopFailedSaveRecovers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := filepath.Join(t.TempDir(), "out")
	controller := NewController()
	pair := testPair(t, rimage.OrderBGR)
	logger, logs := logging.NewObservedTestLogger(t)

	mock := clock.NewMock()
	src := &scriptedSource{
		props:  testProperties(),
		cancel: cancel,
		steps: []step{
			{pair: seq(pair, 1), before: func() { controller.Trigger() }},
			{pair: seq(pair, 2), before: func() {
				test.That(t, controller.State(), test.ShouldEqual, Idle)
				test.That(t, os.Mkdir(dir, 0o755), test.ShouldBeNil)
				mock.Add(time.Second)
				controller.Trigger()
			}},
		},
	}
	loop := NewLoop(src, controller, nil, Options{OutputDir: dir}, mock, logger)

	test.That(t, loop.Run(ctx), test.ShouldBeNil)
	test.That(t, loop.Stats().FailedSaves, test.ShouldEqual, uint64(1))
	test.That(t, loop.Stats().Saves, test.ShouldEqual, uint64(1))
	test.That(t, pcdFiles(t, dir), test.ShouldHaveLength, 1)
	test.That(t, logs.FilterMessage("save failed, ready for the next request").Len(), test.ShouldEqual, 1)
}

func TestLoopMalformedFrame(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	controller := NewController()
	good := testPair(t, rimage.OrderBGR)
	bad := seq(good, 2)
	bad.Color = nil
	wrongOrder := seq(testPair(t, rimage.OrderRGB), 3)
	logger, logs := logging.NewObservedTestLogger(t)

	src := &scriptedSource{
		props:  testProperties(),
		cancel: cancel,
		steps: []step{
			{pair: seq(good, 1)},
			{pair: bad},
			{pair: wrongOrder, before: func() { controller.Trigger() }},
		},
	}
	var rendered []uint64
	renderer := RendererFunc(func(v FrameView) { rendered = append(rendered, v.Pair.Sequence) })
	loop := NewLoop(src, controller, renderer, Options{OutputDir: t.TempDir()}, clock.NewMock(), logger)

	test.That(t, loop.Run(ctx), test.ShouldBeNil)
	test.That(t, rendered, test.ShouldResemble, []uint64{1})
	test.That(t, loop.Stats().Malformed, test.ShouldEqual, uint64(2))
	test.That(t, loop.Stats().FailedSaves, test.ShouldEqual, uint64(1))
	test.That(t, controller.State(), test.ShouldEqual, Idle)
	test.That(t, logs.FilterMessage("skipping malformed frame").Len(), test.ShouldEqual, 1)
}

func TestLoopDeviceErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)

	src := &scriptedSource{props: testProperties(), startErr: errors.New("no device connected")}
	err := NewLoop(src, NewController(), nil, Options{}, nil, logger).Run(context.Background())
	test.That(t, errors.Is(err, camera.ErrDevice), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no device connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src = &scriptedSource{
		props:  testProperties(),
		cancel: cancel,
		steps:  []step{{err: errors.New("usb disconnected")}},
	}
	err = NewLoop(src, NewController(), nil, Options{}, nil, logger).Run(ctx)
	test.That(t, errors.Is(err, camera.ErrDevice), test.ShouldBeTrue)
	test.That(t, src.stopped, test.ShouldBeTrue)
}

func TestLoopColorOrderMismatch(t *testing.T) {
	src := &scriptedSource{props: testProperties()}
	loop := NewLoop(src, NewController(), nil, Options{ColorOrder: rimage.OrderRGB}, nil, logging.NewTestLogger(t))
	err := loop.Run(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "does not match")
	test.That(t, src.stopped, test.ShouldBeTrue)
}

func TestLoopWithFakeSource(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := t.TempDir()
	mock := clock.NewMock()
	src, err := fake.NewSource(fake.Config{Width: 32, Height: 24, FPS: 10}, mock, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	controller := NewController()
	frames := make(chan uint64, 8)
	renderer := RendererFunc(func(v FrameView) {
		select {
		case frames <- v.Pair.Sequence:
		default:
		}
	})
	loop := NewLoop(src, controller, renderer, Options{OutputDir: dir}, mock, logging.NewTestLogger(t))

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	// the ticker is created by Start on the loop goroutine
	for {
		mock.Add(100 * time.Millisecond)
		select {
		case <-frames:
		case <-time.After(10 * time.Millisecond):
			continue
		}
		break
	}
	test.That(t, controller.Trigger(), test.ShouldBeTrue)
	for controller.Pending() {
		mock.Add(100 * time.Millisecond)
		select {
		case <-frames:
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	test.That(t, <-done, test.ShouldBeNil)

	files := pcdFiles(t, dir)
	test.That(t, files, test.ShouldHaveLength, 1)
	// one column band has no depth return
	test.That(t, loop.Results()[0].Points, test.ShouldEqual, 32*24-24)
}

func TestLoopCarriesViewTransform(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pair := testPair(t, rimage.OrderBGR)
	logger, logs := logging.NewObservedTestLogger(t)

	orbit := ViewTransform{Yaw: 30, Pitch: -15, OffsetX: 0.2, OffsetY: -0.1}
	panned := ViewTransform{Yaw: 45, Pitch: 10, OffsetX: 1, OffsetY: 2}
	var loop *Loop
	src := &scriptedSource{
		props:  testProperties(),
		cancel: cancel,
		steps: []step{
			{pair: seq(pair, 1)},
			{err: camera.ErrNoNewFrame, before: func() { loop.SetViewTransform(panned) }},
			{pair: seq(pair, 2)},
		},
	}
	var views []FrameView
	renderer := RendererFunc(func(v FrameView) { views = append(views, v) })
	loop = NewLoop(src, NewController(), renderer, Options{OutputDir: t.TempDir()}, clock.NewMock(), logger)
	loop.SetViewTransform(orbit)

	test.That(t, loop.Run(ctx), test.ShouldBeNil)
	test.That(t, views, test.ShouldHaveLength, 3)
	test.That(t, views[0].Transform, test.ShouldResemble, orbit)
	test.That(t, views[1].Stale, test.ShouldBeTrue)
	test.That(t, views[1].Pair.Sequence, test.ShouldEqual, uint64(1))
	test.That(t, views[1].Transform, test.ShouldResemble, panned)
	test.That(t, views[2].Transform, test.ShouldResemble, panned)

	// fx equals the width, so each sensor sees 2*atan(1/2) in both directions
	ready := logs.FilterMessage("frame source ready").All()
	test.That(t, ready, test.ShouldHaveLength, 1)
	fields := ready[0].ContextMap()
	test.That(t, fields["color_order"], test.ShouldEqual, "bgr")
	fov, ok := fields["depth_fov_deg"].([]interface{})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, fov, test.ShouldHaveLength, 2)
	test.That(t, fov[0], test.ShouldAlmostEqual, 53.13, 0.01)
	test.That(t, fov[1], test.ShouldAlmostEqual, 53.13, 0.01)
}
