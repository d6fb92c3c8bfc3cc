// Package replay implements a frame source that plays back recorded depth and color image pairs
// from a directory. A pair is <stem>_depth.png (16-bit grayscale) and <stem>_color.png. An optional
// properties.json holds the camera properties.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/capstone-rov/rgbdcapture/components/camera"
	"github.com/capstone-rov/rgbdcapture/logging"
	"github.com/capstone-rov/rgbdcapture/rimage"
	"github.com/capstone-rov/rgbdcapture/rimage/transform"
)

const (
	depthSuffix    = "_depth.png"
	colorSuffix    = "_color.png"
	propertiesFile = "properties.json"

	// maxPairAttempts is how often a watched pair whose files stop changing may fail to decode
	// before it is skipped.
	maxPairAttempts = 3
)

// ErrEndOfDataset is returned once every pair was played and neither looping nor watching is on.
var ErrEndOfDataset = errors.New("reached end of dataset")

// Config describes how to configure the replay source.
type Config struct {
	Dir string `json:"dir"`
	// Loop restarts from the first pair after the last one.
	Loop bool `json:"loop,omitempty"`
	// Watch waits for new pairs written to Dir after the last one.
	Watch bool `json:"watch,omitempty"`
	// FPS paces playback. Zero plays as fast as frames are requested.
	FPS float64 `json:"fps,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate() error {
	if cfg.Dir == "" {
		return errors.New("replay source needs a dir")
	}
	if cfg.Loop && cfg.Watch {
		return errors.New("replay source cannot both loop and watch")
	}
	if cfg.FPS < 0 {
		return errors.Errorf("fps cannot be negative, got %v", cfg.FPS)
	}
	return nil
}

// Source plays back recorded pairs.
type Source struct {
	cfg    Config
	clock  clock.Clock
	logger logging.Logger

	mu       sync.Mutex
	started  bool
	ticker   *clock.Ticker
	watcher  *fsnotify.Watcher
	props    camera.Properties
	played   map[string]bool
	attempts map[string]pairAttempt
	skipped  []string
	queue    []string
	all      []string
	sequence uint64
}

// NewSource returns a replay source. A nil clock uses the wall clock.
func NewSource(cfg Config, clk clock.Clock, logger logging.Logger) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Source{cfg: cfg, clock: clk, logger: logger}, nil
}

// Start scans the directory and, in watch mode, begins watching it.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return camera.NewDeviceError(nil, "replay source already started")
	}
	info, err := os.Stat(s.cfg.Dir)
	if err != nil {
		return camera.NewDeviceError(err, "opening replay directory")
	}
	if !info.IsDir() {
		return camera.NewDeviceError(nil, s.cfg.Dir+" is not a directory")
	}

	props, err := readProperties(filepath.Join(s.cfg.Dir, propertiesFile))
	if err != nil {
		return camera.NewDeviceError(err, "reading replay properties")
	}
	s.props = props

	stems, err := scanPairs(s.cfg.Dir)
	if err != nil {
		return camera.NewDeviceError(err, "scanning replay directory")
	}
	if len(stems) == 0 && !s.cfg.Watch {
		return camera.NewDeviceError(nil, "no depth and color pairs in "+s.cfg.Dir)
	}
	s.all = stems
	s.queue = append([]string(nil), stems...)
	s.played = make(map[string]bool, len(stems))
	s.attempts = make(map[string]pairAttempt)
	s.skipped = nil

	if s.cfg.Watch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return camera.NewDeviceError(err, "creating replay watcher")
		}
		if err := watcher.Add(s.cfg.Dir); err != nil {
			return camera.NewDeviceError(multierr.Combine(err, watcher.Close()), "watching replay directory")
		}
		s.watcher = watcher
	}
	if s.cfg.FPS > 0 {
		s.ticker = s.clock.Ticker(time.Duration(float64(time.Second) / s.cfg.FPS))
	}
	s.started = true
	s.logger.Infow("replay source started", "dir", s.cfg.Dir, "pairs", len(stems), "watch", s.cfg.Watch)
	return nil
}

// WaitForFrames returns the next recorded pair. A pair that cannot be decoded yet in watch mode,
// such as one still being written, is reported as a dropped frame and retried after the pairs
// queued behind it.
func (s *Source) WaitForFrames(ctx context.Context) (camera.FramePair, error) {
	s.mu.Lock()
	started, ticker := s.started, s.ticker
	s.mu.Unlock()
	if !started {
		return camera.FramePair{}, camera.NewDeviceError(nil, "replay source is not streaming")
	}
	if ticker != nil {
		select {
		case <-ctx.Done():
			return camera.FramePair{}, ctx.Err()
		case <-ticker.C:
		}
	}

	stem, err := s.nextStem(ctx)
	if err != nil {
		return camera.FramePair{}, err
	}

	fp, err := s.readPair(stem)
	if err != nil {
		if s.cfg.Watch {
			s.retryLater(stem, err)
			return camera.FramePair{}, camera.ErrNoNewFrame
		}
		return camera.FramePair{}, camera.NewDeviceError(err, "reading replay pair "+stem)
	}

	s.mu.Lock()
	s.played[stem] = true
	delete(s.attempts, stem)
	s.sequence++
	fp.Sequence = s.sequence
	s.mu.Unlock()
	fp.CapturedAt = s.clock.Now()
	return fp, nil
}

func (s *Source) nextStem(ctx context.Context) (string, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			stem := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return stem, nil
		}
		if s.cfg.Loop && len(s.all) > 0 {
			s.queue = append(s.queue, s.all...)
			s.mu.Unlock()
			continue
		}
		watcher := s.watcher
		s.mu.Unlock()

		if watcher == nil {
			return "", camera.NewDeviceError(ErrEndOfDataset, "replay finished")
		}
		if err := s.waitForNewPair(ctx, watcher); err != nil {
			return "", err
		}
	}
}

// waitForNewPair blocks until the watcher reports a file that completes an unplayed pair.
func (s *Source) waitForNewPair(ctx context.Context, watcher *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-watcher.Errors:
			if !ok {
				return camera.NewDeviceError(nil, "replay watcher closed")
			}
			return camera.NewDeviceError(err, "watching replay directory")
		case ev, ok := <-watcher.Events:
			if !ok {
				return camera.NewDeviceError(nil, "replay watcher closed")
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if _, ok := stemOf(filepath.Base(ev.Name)); !ok {
				continue
			}
			if s.enqueueNew() > 0 {
				return nil
			}
		}
	}
}

// enqueueNew rescans the directory and queues complete pairs that were never queued.
func (s *Source) enqueueNew() int {
	stems, err := scanPairs(s.cfg.Dir)
	if err != nil {
		s.logger.Warnw("rescanning replay directory", "error", err)
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	known := make(map[string]bool, len(s.all))
	for _, stem := range s.all {
		known[stem] = true
	}
	added := 0
	for _, stem := range stems {
		if known[stem] {
			continue
		}
		s.all = append(s.all, stem)
		s.queue = append(s.queue, stem)
		added++
	}
	return added
}

type pairAttempt struct {
	failures  int
	signature string
}

// retryLater queues an unreadable pair behind the others. Failures are counted only while the
// pair's files stay unchanged; after maxPairAttempts of them the pair is skipped.
func (s *Source) retryLater(stem string, readErr error) {
	signature := s.pairSignature(stem)
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt := s.attempts[stem]
	if attempt.signature != signature {
		attempt = pairAttempt{signature: signature}
	}
	attempt.failures++
	if attempt.failures >= maxPairAttempts {
		delete(s.attempts, stem)
		s.skipped = append(s.skipped, stem)
		s.logger.Warnw("skipping unreadable replay pair", "stem", stem, "attempts", attempt.failures, "error", readErr)
		return
	}
	s.attempts[stem] = attempt
	s.queue = append(s.queue, stem)
	s.logger.Debugw("replay pair not readable yet", "stem", stem, "attempt", attempt.failures, "error", readErr)
}

// pairSignature identifies the current contents of a pair's files by size and modification time.
func (s *Source) pairSignature(stem string) string {
	var sig strings.Builder
	for _, suffix := range []string{depthSuffix, colorSuffix} {
		info, err := os.Stat(filepath.Join(s.cfg.Dir, stem+suffix))
		if err != nil {
			sig.WriteString("missing;")
			continue
		}
		fmt.Fprintf(&sig, "%d@%d;", info.Size(), info.ModTime().UnixNano())
	}
	return sig.String()
}

func (s *Source) readPair(stem string) (camera.FramePair, error) {
	dm, err := rimage.ReadDepthMapFromFile(filepath.Join(s.cfg.Dir, stem+depthSuffix))
	if err != nil {
		return camera.FramePair{}, err
	}
	img, err := rimage.ReadColorImageFromFile(filepath.Join(s.cfg.Dir, stem+colorSuffix), s.props.ColorOrder)
	if err != nil {
		return camera.FramePair{}, err
	}
	return camera.FramePair{Depth: dm, Color: img}, nil
}

// Properties returns the recorded properties. Pairs are packed in the recorded color order,
// BGR when none was recorded.
func (s *Source) Properties(ctx context.Context) (camera.Properties, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return camera.Properties{}, camera.NewPropertiesError("replay source " + s.cfg.Dir)
	}
	return s.props, nil
}

// Stop ends playback and closes the watcher.
func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	if s.watcher != nil {
		err := s.watcher.Close()
		s.watcher = nil
		return err
	}
	return nil
}

// Skipped returns the watched stems given up on because they never decoded, in skip order.
func (s *Source) Skipped() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.skipped...)
}

// Played returns the stems played so far, sorted.
func (s *Source) Played() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.played))
	for stem := range s.played {
		out = append(out, stem)
	}
	sort.Strings(out)
	return out
}

func readProperties(path string) (camera.Properties, error) {
	props := camera.Properties{DepthScale: transform.DefaultDepthScale}
	//nolint:gosec
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		props.ColorOrder = rimage.OrderBGR
		return props, nil
	}
	if err != nil {
		return props, err
	}
	if err := json.Unmarshal(data, &props); err != nil {
		return props, errors.Wrapf(err, "parsing %s", path)
	}
	if props.ColorOrder == rimage.OrderUnknown {
		props.ColorOrder = rimage.OrderBGR
	}
	return props, nil
}

func stemOf(name string) (string, bool) {
	switch {
	case strings.HasSuffix(name, depthSuffix):
		return strings.TrimSuffix(name, depthSuffix), true
	case strings.HasSuffix(name, colorSuffix):
		return strings.TrimSuffix(name, colorSuffix), true
	default:
		return "", false
	}
}

// scanPairs returns the sorted stems that have both a depth and a color file.
func scanPairs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	seen := map[string]int{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if stem, ok := stemOf(entry.Name()); ok {
			seen[stem]++
		}
	}
	var stems []string
	for stem, n := range seen {
		if n == 2 {
			stems = append(stems, stem)
		}
	}
	sort.Strings(stems)
	return stems, nil
}

// WritePair records a frame pair into dir with the given stem, in the layout the source reads.
func WritePair(dir, stem string, fp camera.FramePair) error {
	if err := fp.Validate(); err != nil {
		return err
	}
	return multierr.Combine(
		rimage.WriteImageToFile(filepath.Join(dir, stem+depthSuffix), fp.Depth),
		rimage.WriteImageToFile(filepath.Join(dir, stem+colorSuffix), fp.Color),
	)
}

// WriteProperties records camera properties into dir.
func WriteProperties(dir string, props camera.Properties) error {
	data, err := json.MarshalIndent(props, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, propertiesFile), data, 0o600)
}
