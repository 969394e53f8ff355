package pull

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soocke/pull-bot-go/domain/cancel"
	"github.com/soocke/pull-bot-go/domain/capture"
	"github.com/soocke/pull-bot-go/domain/vision"
)

// Machine sequences draw, confirm, dismiss and evaluate steps until a stop
// condition fires or the session token is cancelled.
type Machine struct {
	state  atomic.Int32
	sess   Session
	deps   Deps
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	listeners []Listener

	cycles int
	pulls  int
}

// NewMachine constructs an idle machine for a session.
func NewMachine(sess Session, deps Deps, logger *slog.Logger) *Machine {
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if sess.Token == nil {
		sess.Token = cancel.NewToken(0)
	}
	if sess.Plan.MaxDismissAttempts < 1 {
		sess.Plan.MaxDismissAttempts = 1
	}
	if sess.Plan.StopCount < 1 {
		sess.Plan.StopCount = 1
	}
	return &Machine{sess: sess, deps: deps, logger: logger, now: time.Now}
}

// AddListener registers l for every subsequent transition.
func (m *Machine) AddListener(l Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// Current returns the current state. Safe from any goroutine.
func (m *Machine) Current() State { return State(m.state.Load()) }

func (m *Machine) transition(next State) {
	prev := m.Current()
	if prev == next {
		return
	}
	m.state.Store(int32(next))
	if m.logger != nil {
		m.logger.Debug("pull state transition", "from", prev.String(), "to", next.String())
	}
	m.deps.Observer.StateChanged(prev, next)
	m.mu.Lock()
	ls := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()
	for _, l := range ls {
		l(prev, next)
	}
}

// Run drives cycles until a stop condition. Cancellation is a clean stop and
// returns a nil error. Stats are flushed before returning.
func (m *Machine) Run() (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			if m.logger != nil {
				m.logger.Error("pull machine panic", "error", r, "stack", string(debug.Stack()))
			}
			err = fmt.Errorf("pull machine panic: %v", r)
		}
		if ferr := m.deps.Stats.Flush(); ferr != nil && err == nil {
			err = ferr
		}
		m.transition(StateStopped)
		out.Cycles, out.Pulls = m.cycles, m.pulls
	}()
	plan := m.sess.Plan
	for {
		if plan.MaxCycles > 0 && m.cycles >= plan.MaxCycles {
			return Outcome{Reason: ReasonMaxCycles}, nil
		}
		count, quality, err := m.cycle()
		if errors.Is(err, cancel.ErrCancelled) {
			if m.logger != nil {
				m.logger.Info("stopped by cancellation", "state", m.Current().String(), "cycles", m.cycles)
			}
			return Outcome{Reason: ReasonCancelled, LastCount: count}, nil
		}
		if err != nil {
			return Outcome{LastCount: count}, err
		}
		if count >= plan.StopCount {
			if m.logger != nil {
				m.logger.Info("target reached", "count", count, "cycles", m.cycles)
			}
			return Outcome{Reason: ReasonTargetReached, LastCount: count}, nil
		}
		if plan.qualityEnabled() && quality >= plan.QualityTarget {
			if m.logger != nil {
				m.logger.Info("quality target reached", "quality", quality, "cycles", m.cycles)
			}
			return Outcome{Reason: ReasonQualityReached, LastCount: count}, nil
		}
		m.transition(StateIdle)
	}
}

// cycle runs one Drawing to Evaluating traversal.
func (m *Machine) cycle() (count, quality int, err error) {
	plan := m.sess.Plan
	m.transition(StateDrawing)
	if err := m.draw(); err != nil {
		return 0, 0, err
	}

	m.transition(StateConfirming)
	ok, err := m.attempt(plan.Confirm)
	if err != nil {
		return 0, 0, err
	}
	if ok {
		m.pulls++
		m.deps.Stats.RecordPull(m.now())
		m.deps.Observer.Pulled()
	}

	m.transition(StateDismissingOverlays)
	if err := m.dismiss(); err != nil {
		return 0, 0, err
	}

	m.transition(StateEvaluating)
	return m.evaluate()
}

func (m *Machine) draw() error {
	step := m.sess.Plan.Draw
	switch m.sess.Plan.DrawMode {
	case DrawOnce:
		_, err := m.attempt(step)
		return err
	case DrawWait:
		for {
			ok, err := m.attempt(step)
			if err != nil || ok {
				return err
			}
		}
	default:
		for {
			ok, err := m.attempt(step)
			if err != nil || !ok {
				return err
			}
		}
	}
}

func (m *Machine) dismiss() error {
	step := m.sess.Plan.Next
	limit := m.sess.Plan.MaxDismissAttempts
	for i := 0; i < limit; i++ {
		ok, err := m.attempt(step)
		if err != nil || !ok {
			return err
		}
	}
	if m.logger != nil {
		m.logger.Warn("dismiss attempts exhausted", "attempts", limit)
	}
	return nil
}

// grab captures the surface, honouring cancellation first.
func (m *Machine) grab() (capture.Frame, error) {
	if err := m.sess.Token.Err(); err != nil {
		return capture.Frame{}, err
	}
	frame, err := m.deps.Capture.Capture(m.sess.Surface)
	if err != nil {
		m.deps.Observer.CaptureFailed()
		return capture.Frame{}, err
	}
	return frame, nil
}

// match runs req raced against the token. A frame whose match was abandoned
// is not released, since the engine may still be reading it.
func (m *Machine) match(frame capture.Frame, req vision.Request) (vision.Result, error) {
	return cancel.Await(m.sess.Token, func() (vision.Result, error) {
		return m.deps.Matcher.Match(frame.Image, req)
	})
}

// searchArea returns the ROI for step: a square around its anchor, its fixed
// region, or nil for the full frame.
func (m *Machine) searchArea(step Step, frame capture.Frame) *image.Rectangle {
	switch {
	case step.Anchor != nil:
		roi := vision.SelectROI(step.Anchor, m.sess.Plan.ROISize, frame.Image.Rect)
		return &roi
	case step.Region != nil:
		roi := step.Region.Intersect(frame.Image.Rect)
		return &roi
	}
	return nil
}

// attempt performs one capture, best-mode match and click. A miss waits the
// settle delay instead.
func (m *Machine) attempt(step Step) (bool, error) {
	frame, err := m.grab()
	if err != nil {
		return false, err
	}
	req := vision.Request{Templates: step.Templates, Mode: vision.ModeBest, Threshold: step.Threshold, ROI: m.searchArea(step, frame)}
	res, err := m.match(frame, req)
	if errors.Is(err, cancel.ErrCancelled) {
		return false, err
	}
	m.deps.Observer.Matched(step.Name, res.Duration)
	if err == nil && res.Best != nil && m.sess.Plan.Debug {
		m.saveDebug(frame.Image, step.Name, *res.Best)
	}
	m.deps.Capture.Release(frame)
	if err != nil {
		return false, fmt.Errorf("%s match: %w", step.Name, err)
	}
	if res.Best == nil {
		return false, m.deps.Clicker.Settle()
	}
	best := *res.Best
	if m.logger != nil {
		m.logger.Debug("step matched", "step", step.Name, "template", best.Template, "score", best.Score, "at", best.Location)
	}
	m.deps.Observer.Clicked(step.Name)
	if err := m.deps.Clicker.ClickAt(best.Center()); err != nil {
		return true, err
	}
	return true, nil
}

func (m *Machine) saveDebug(img image.Image, step string, c vision.Candidate) {
	if m.deps.Snapshots == nil {
		return
	}
	label := fmt.Sprintf("%s-%.2f", step, c.Score)
	if _, err := m.deps.Snapshots.SaveDebug(img, label, c.Rect()); err != nil && m.logger != nil {
		m.logger.Warn("debug screenshot failed", "step", step, "error", err)
	}
}

func (m *Machine) countRequest(step Step, frame capture.Frame) vision.Request {
	return vision.Request{Templates: step.Templates, Mode: vision.ModeAll, Threshold: step.Threshold, ROI: m.searchArea(step, frame)}
}

// evaluate counts rare outcomes and the quality score on one frame, records
// the cycle and persists stats.
func (m *Machine) evaluate() (count, quality int, err error) {
	plan := m.sess.Plan
	frame, err := m.grab()
	if err != nil {
		return 0, 0, err
	}
	rare, err := m.match(frame, m.countRequest(plan.Rare, frame))
	if errors.Is(err, cancel.ErrCancelled) {
		return 0, 0, err
	}
	if err != nil {
		m.deps.Capture.Release(frame)
		return 0, 0, fmt.Errorf("%s match: %w", plan.Rare.Name, err)
	}
	m.deps.Observer.Matched(plan.Rare.Name, rare.Duration)
	count = rare.Total
	if plan.Debug && rare.Best != nil {
		m.saveDebug(frame.Image, plan.Rare.Name, *rare.Best)
	}

	if plan.qualityEnabled() {
		q, err := m.match(frame, m.countRequest(plan.Quality, frame))
		if errors.Is(err, cancel.ErrCancelled) {
			return count, 0, err
		}
		if err != nil {
			m.deps.Capture.Release(frame)
			return count, 0, fmt.Errorf("%s match: %w", plan.Quality.Name, err)
		}
		m.deps.Observer.Matched(plan.Quality.Name, q.Duration)
		quality = q.Total
		if plan.Debug && q.Best != nil {
			m.saveDebug(frame.Image, plan.Quality.Name, *q.Best)
		}
	}

	if plan.ScreenshotCount > 0 && count >= plan.ScreenshotCount && m.deps.Snapshots != nil {
		if _, err := m.deps.Snapshots.SaveRare(frame.Image, count); err != nil && m.logger != nil {
			m.logger.Warn("screenshot failed", "error", err)
		}
	}
	m.deps.Capture.Release(frame)

	m.cycles++
	m.deps.Stats.RecordCycle(count)
	m.deps.Observer.CycleCompleted(count)
	if m.logger != nil {
		m.logger.Info("cycle complete", "cycle", m.cycles, "rare", count, "quality", quality, "pulls", m.pulls)
	}
	if err := m.deps.Stats.Flush(); err != nil {
		return count, quality, err
	}
	return count, quality, nil
}
