package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.viam.com/test"

	"github.com/capstone-rov/rgbdcapture/capture"
	"github.com/capstone-rov/rgbdcapture/logging"
	"github.com/capstone-rov/rgbdcapture/pointcloud"
	"github.com/capstone-rov/rgbdcapture/rimage"
	"github.com/capstone-rov/rgbdcapture/rimage/transform"
)

// syncBuffer is a bytes.Buffer safe for the loop and input goroutines to log into.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func runApp(t *testing.T, input string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut syncBuffer
	app := NewApp(strings.NewReader(input), &out, &errOut)
	err := app.Run(append([]string{"rgbdcapture"}, args...))
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)
	return path
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cloud.pcd")
	frame := pointcloud.NewFrameFromPoints([]pointcloud.ColoredPoint{
		pointcloud.NewColoredPoint(-1, 0, 1, 255, 0, 0),
		pointcloud.NewColoredPoint(1, 2, 3, 0, 255, 0),
	})
	test.That(t, pointcloud.WritePCDFile(path, frame), test.ShouldBeNil)

	out, _, err := runApp(t, "", "inspect", path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "POINTS")
	test.That(t, out, test.ShouldContainSubstring, path)
	test.That(t, out, test.ShouldContainSubstring, "-1.000, 0.000, 1.000")
	test.That(t, out, test.ShouldContainSubstring, "0.000, 1.000, 2.000")

	_, _, err = runApp(t, "", "inspect")
	test.That(t, err, test.ShouldNotBeNil)

	bad := writeFile(t, dir, "bad.pcd", "VERSION .7\nFIELDS x y\n")
	_, _, err = runApp(t, "", "inspect", bad)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot inspect")
}

func TestRecordThenReplay(t *testing.T) {
	dir := t.TempDir()
	recorded := filepath.Join(dir, "recorded")
	outDir := filepath.Join(dir, "out")
	test.That(t, os.Mkdir(outDir, 0o750), test.ShouldBeNil)

	fakeConfig := writeFile(t, dir, "fake.json", `{"source": {"type": "fake", "width": 16, "height": 12, "fps": 200}}`)
	out, _, err := runApp(t, "", "record", "--config", fakeConfig, "--dir", recorded, "--frames", "3")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "recorded 3 pairs")

	depths, err := filepath.Glob(filepath.Join(recorded, "*_depth.png"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, depths, test.ShouldHaveLength, 3)
	_, err = os.Stat(filepath.Join(recorded, "properties.json"))
	test.That(t, err, test.ShouldBeNil)

	replayConfig := writeFile(t, dir, "replay.json", `{
		"color_order": "bgr",
		"warmup_frames": 0,
		"source": {"type": "replay", "dir": "`+recorded+`", "fps": 10}
	}`)
	out, logs, err := runApp(t, "s\n", "run", "--config", replayConfig, "--output-dir", outDir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "saved "+outDir)
	test.That(t, logs, test.ShouldContainSubstring, "capture finished")

	clouds, err := filepath.Glob(filepath.Join(outDir, "captured_point_cloud_*.pcd"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, clouds, test.ShouldHaveLength, 1)

	saved, _, err := pointcloud.ReadPCDFile(clouds[0])
	test.That(t, err, test.ShouldBeNil)
	// the fake scene has one column with no depth return
	test.That(t, saved.Size(), test.ShouldEqual, 16*12-12)
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()

	_, _, err := runApp(t, "", "run", "--config", filepath.Join(dir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)

	emptyDir := filepath.Join(dir, "empty")
	test.That(t, os.Mkdir(emptyDir, 0o750), test.ShouldBeNil)
	replayConfig := writeFile(t, dir, "replay.json", `{"source": {"type": "replay", "dir": "`+emptyDir+`"}}`)
	_, _, err = runApp(t, "", "run", "--config", replayConfig)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no depth and color pairs")

	_, _, err = runApp(t, "", "record", "--config", replayConfig)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReadLines(t *testing.T) {
	logger := logging.NewTestLogger(t)
	controller := capture.NewController()
	quits := 0
	readLines(strings.NewReader("hello\nsave\nS\nquit\ns\n"), controller, func() { quits++ }, logger)
	test.That(t, controller.Pending(), test.ShouldBeTrue)
	test.That(t, quits, test.ShouldEqual, 1)

	controller = capture.NewController()
	readKeys(strings.NewReader("xs\x03s"), controller, func() { quits++ }, logger)
	test.That(t, controller.Pending(), test.ShouldBeTrue)
	test.That(t, quits, test.ShouldEqual, 2)

	// end of input does not quit
	readLines(strings.NewReader(""), controller, func() { quits++ }, logger)
	test.That(t, quits, test.ShouldEqual, 2)
}

func TestStatusLine(t *testing.T) {
	dm := rimage.NewEmptyDepthMap(4, 2)
	dm.Set(1, 1, 900)
	view := capture.FrameView{
		Projection: &transform.Projection{Width: 4, Height: 2},
	}
	view.Pair.Depth = dm
	view.Pair.Sequence = 12

	line := statusLine(view)
	test.That(t, line, test.ShouldStartWith, "\rframe 12")
	test.That(t, line, test.ShouldContainSubstring, "4x2")
	test.That(t, line, test.ShouldContainSubstring, "live")

	view.Stale = true
	test.That(t, statusLine(view), test.ShouldContainSubstring, "stale")
	view.SavePending = true
	test.That(t, statusLine(view), test.ShouldContainSubstring, "saving")

	var out bytes.Buffer
	r := newStatusRenderer(&out)
	r.Render(view)
	r.Render(view)
	// the second render is inside the rate limit
	test.That(t, strings.Count(out.String(), "\r"), test.ShouldEqual, 1)
}
