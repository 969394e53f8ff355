package capture

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vova616/screenshot"
)

// ErrCaptureUnavailable reports that the surface pixels could not be read.
var ErrCaptureUnavailable = errors.New("capture unavailable")

const statsLogInterval = 5 * time.Second

// Frame is one captured surface image. Image has origin (0,0), stride
// width*4 and opaque alpha. It must not be modified after capture.
type Frame struct {
	Image      *image.RGBA
	CapturedAt time.Time
	Sequence   uint64
}

// Width of the frame in pixels.
func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Rect.Dx()
}

// Height of the frame in pixels.
func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Rect.Dy()
}

// Stats summarises capture behaviour for instrumentation.
type Stats struct {
	Captures    uint64
	Failures    uint64
	AvgCapture  time.Duration
	LastCapture time.Time
	Sequence    uint64
}

// Grabber reads the pixels of a screen rectangle.
type Grabber func(rect image.Rectangle) (*image.RGBA, error)

// ScreenGrabber captures through github.com/vova616/screenshot.
func ScreenGrabber(rect image.Rectangle) (*image.RGBA, error) {
	return screenshot.CaptureRect(rect)
}

// Adapter turns raw screen captures into normalized frames.
type Adapter struct {
	grab   Grabber
	logger *slog.Logger

	captures     atomic.Uint64
	failures     atomic.Uint64
	captureNanos atomic.Uint64
	sequence     atomic.Uint64
	lastNanos    atomic.Int64
	lastLog      atomic.Int64
}

// NewAdapter constructs an adapter. A nil grab selects ScreenGrabber.
func NewAdapter(grab Grabber, logger *slog.Logger) *Adapter {
	if grab == nil {
		grab = ScreenGrabber
	}
	return &Adapter{grab: grab, logger: logger}
}

// Capture grabs rect (screen coordinates) and returns a normalized frame.
// There are no retries; any failure wraps ErrCaptureUnavailable.
func (a *Adapter) Capture(rect image.Rectangle) (Frame, error) {
	if rect.Empty() {
		a.failures.Add(1)
		return Frame{}, fmt.Errorf("%w: empty rect %v", ErrCaptureUnavailable, rect)
	}
	start := time.Now()
	raw, err := a.grab(rect)
	if err != nil {
		a.failures.Add(1)
		return Frame{}, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	if raw == nil || raw.Bounds().Empty() {
		a.failures.Add(1)
		return Frame{}, fmt.Errorf("%w: no pixels for %v", ErrCaptureUnavailable, rect)
	}
	img := normalize(raw)
	now := time.Now()
	a.captureNanos.Add(uint64(now.Sub(start).Nanoseconds()))
	a.captures.Add(1)
	a.lastNanos.Store(now.UnixNano())
	seq := a.sequence.Add(1)
	a.maybeLogStats(now)
	return Frame{Image: img, CapturedAt: now, Sequence: seq}, nil
}

// Release returns the frame buffer to the pool. The frame must not be used
// afterwards.
func (a *Adapter) Release(f Frame) { recycleFrame(f.Image) }

// Stats returns a snapshot of the capture counters.
func (a *Adapter) Stats() Stats {
	captures := a.captures.Load()
	total := a.captureNanos.Load()
	var avg time.Duration
	if captures > 0 {
		avg = time.Duration(total / captures)
	}
	var last time.Time
	if n := a.lastNanos.Load(); n != 0 {
		last = time.Unix(0, n)
	}
	return Stats{
		Captures:    captures,
		Failures:    a.failures.Load(),
		AvgCapture:  avg,
		LastCapture: last,
		Sequence:    a.sequence.Load(),
	}
}

func (a *Adapter) maybeLogStats(now time.Time) {
	if a.logger == nil {
		return
	}
	prev := a.lastLog.Load()
	if now.UnixNano()-prev < int64(statsLogInterval) {
		return
	}
	if !a.lastLog.CompareAndSwap(prev, now.UnixNano()) {
		return
	}
	stats := a.Stats()
	a.logger.Debug("capture.stats",
		"captures", stats.Captures,
		"failures", stats.Failures,
		"avg_capture", stats.AvgCapture,
	)
}
