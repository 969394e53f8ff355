package pull

import (
	"image"
	"time"

	"github.com/soocke/pull-bot-go/domain/cancel"
	"github.com/soocke/pull-bot-go/domain/capture"
	"github.com/soocke/pull-bot-go/domain/vision"
)

// State enumerates the stages of one pull cycle.
type State int

const (
	StateIdle State = iota
	StateDrawing
	StateConfirming
	StateDismissingOverlays
	StateEvaluating
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDrawing:
		return "drawing"
	case StateConfirming:
		return "confirming"
	case StateDismissingOverlays:
		return "dismissing"
	case StateEvaluating:
		return "evaluating"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Listener is called on each state transition.
type Listener func(prev, next State)

// Reason explains why Run returned.
type Reason int

const (
	ReasonTargetReached Reason = iota
	ReasonQualityReached
	ReasonCancelled
	ReasonMaxCycles
)

func (r Reason) String() string {
	switch r {
	case ReasonTargetReached:
		return "target reached"
	case ReasonQualityReached:
		return "quality target reached"
	case ReasonCancelled:
		return "cancelled"
	case ReasonMaxCycles:
		return "max cycles"
	default:
		return "unknown"
	}
}

// Outcome summarises a finished run.
type Outcome struct {
	Reason    Reason
	Cycles    int
	LastCount int
	Pulls     int
}

// Draw modes.
const (
	DrawRepeat = "repeat"
	DrawOnce   = "once"
	DrawWait   = "wait"
)

// Step is one find-and-act step. Threshold, Anchor and Region are already
// scaled to the live surface. Anchor takes precedence over Region; with
// neither the full frame is searched.
type Step struct {
	Name      string
	Templates []string
	Threshold float64
	Anchor    *image.Point
	Region    *image.Rectangle
}

// Plan is the immutable per-session configuration of the machine.
type Plan struct {
	Draw    Step
	Confirm Step
	Next    Step
	Rare    Step
	Quality Step

	DrawMode           string
	StopCount          int
	ScreenshotCount    int
	QualityTarget      int
	ROISize            int
	MaxCycles          int
	MaxDismissAttempts int
	Debug              bool
}

func (p Plan) qualityEnabled() bool { return p.QualityTarget > 0 && len(p.Quality.Templates) > 0 }

// Session is the explicit per-run context: the cancellation token, the
// captured surface rectangle and its scale factor.
type Session struct {
	Token   *cancel.Token
	Surface image.Rectangle
	Factor  float64
	Plan    Plan
}

// Capturer reads frames of the surface.
type Capturer interface {
	Capture(rect image.Rectangle) (capture.Frame, error)
	Release(capture.Frame)
}

// Matcher runs template matches on a frame.
type Matcher interface {
	Match(frame *image.RGBA, req vision.Request) (vision.Result, error)
}

// Clicker acts on frame locations and waits for the UI to settle.
type Clicker interface {
	ClickAt(p image.Point) error
	Settle() error
}

// StatsRecorder receives run statistics.
type StatsRecorder interface {
	RecordPull(at time.Time)
	RecordCycle(rare int)
	Flush() error
}

// Snapshotter saves screenshots.
type Snapshotter interface {
	SaveRare(img image.Image, count int) (string, error)
	SaveDebug(img image.Image, label string, box image.Rectangle) (string, error)
}

// Observer receives instrumentation events.
type Observer interface {
	StateChanged(prev, next State)
	Pulled()
	CycleCompleted(rare int)
	Matched(step string, d time.Duration)
	Clicked(step string)
	CaptureFailed()
}

// Deps are the collaborators of a machine. Snapshots and Observer are optional.
type Deps struct {
	Capture   Capturer
	Matcher   Matcher
	Clicker   Clicker
	Stats     StatsRecorder
	Snapshots Snapshotter
	Observer  Observer
}

type nopObserver struct{}

func (nopObserver) StateChanged(State, State) {}
func (nopObserver) Pulled() {}
func (nopObserver) CycleCompleted(int) {}
func (nopObserver) Matched(string, time.Duration) {}
func (nopObserver) Clicked(string) {}
func (nopObserver) CaptureFailed() {}
