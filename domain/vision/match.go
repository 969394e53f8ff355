package vision

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// ErrTemplateLargerThanSearchArea reports a template that cannot be placed
// in the search area: zero area, fully transparent, or bigger than the area.
var ErrTemplateLargerThanSearchArea = errors.New("template larger than search area")

// Mode selects how candidates are extracted from a correlation surface.
type Mode int

const (
	// ModeBest reports the single highest scoring candidate.
	ModeBest Mode = iota
	// ModeAll reports every non-overlapping candidate above the threshold.
	ModeAll
)

func (m Mode) String() string {
	switch m {
	case ModeBest:
		return "best"
	case ModeAll:
		return "all"
	default:
		return "unknown"
	}
}

// Request describes one match call. Threshold is already session scaled.
// A nil ROI searches the full frame.
type Request struct {
	Templates []string
	Mode      Mode
	Threshold float64
	ROI       *image.Rectangle
}

// Candidate is a match location in frame coordinates.
type Candidate struct {
	Template string
	Score    float64
	Location image.Point // top-left
	Size     image.Point
}

// Center returns the midpoint of the matched footprint.
func (c Candidate) Center() image.Point {
	return c.Location.Add(c.Size.Div(2))
}

// Rect returns the matched footprint.
func (c Candidate) Rect() image.Rectangle {
	return image.Rectangle{Min: c.Location, Max: c.Location.Add(c.Size)}
}

// Result is the outcome of a match call. In best mode Best is the single
// action target and Total is 0 or 1; in all mode Total sums the candidates of
// every template.
type Result struct {
	Candidates []Candidate
	Total      int
	Best       *Candidate
	Skipped    []string
	Duration   time.Duration
}

// Found reports whether any candidate passed the threshold.
func (r Result) Found() bool { return r.Total > 0 }

// TemplateSource resolves template names.
type TemplateSource interface {
	Get(name string) (*Template, error)
}

// Engine matches templates against frames.
type Engine struct {
	templates TemplateSource
	logger    *slog.Logger
	workers   int
}

// NewEngine constructs a match engine over a template source.
func NewEngine(templates TemplateSource, logger *slog.Logger) *Engine {
	return &Engine{templates: templates, logger: logger, workers: runtime.NumCPU()}
}

type templateOutcome struct {
	candidates []Candidate
	skipped    bool
}

// Match runs req against frame. Templates are evaluated concurrently and
// combined in input order. Per-template failures skip that template.
func (e *Engine) Match(frame *image.RGBA, req Request) (Result, error) {
	start := time.Now()
	if frame == nil {
		return Result{}, errors.New("match: nil frame")
	}
	bounds := image.Rect(0, 0, frame.Rect.Dx(), frame.Rect.Dy())
	area := bounds
	if req.ROI != nil {
		area = req.ROI.Intersect(bounds)
	}
	var plane *grayPlane
	if !area.Empty() {
		plane = buildGrayPlane(frame, area.Add(frame.Rect.Min))
	}

	outcomes := make([]templateOutcome, len(req.Templates))
	var wg sync.WaitGroup
	sem := make(chan struct{}, max(e.workers, 1))
	for i, name := range req.Templates {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, name string) {
			defer wg.Done()
			defer func() { <-sem }()
			cands, err := e.matchOne(plane, area, name, req)
			if err != nil {
				outcomes[i].skipped = true
				if e.logger != nil {
					e.logger.Warn("template skipped", "template", name, "error", err)
				}
				return
			}
			outcomes[i].candidates = cands
		}(i, name)
	}
	wg.Wait()

	var res Result
	for i, o := range outcomes {
		if o.skipped {
			res.Skipped = append(res.Skipped, req.Templates[i])
			continue
		}
		res.Candidates = append(res.Candidates, o.candidates...)
	}
	switch req.Mode {
	case ModeBest:
		for i := range res.Candidates {
			if res.Best == nil || res.Candidates[i].Score > res.Best.Score {
				res.Best = &res.Candidates[i]
			}
		}
		if res.Best != nil {
			res.Candidates = []Candidate{*res.Best}
			res.Best = &res.Candidates[0]
			res.Total = 1
		} else {
			res.Candidates = nil
		}
	default:
		res.Total = len(res.Candidates)
		for i := range res.Candidates {
			if res.Best == nil || res.Candidates[i].Score > res.Best.Score {
				res.Best = &res.Candidates[i]
			}
		}
	}
	res.Duration = time.Since(start)
	if e.logger != nil {
		e.logger.Debug("match",
			"mode", req.Mode.String(),
			"templates", len(req.Templates),
			"total", res.Total,
			"threshold", req.Threshold,
			"area", area,
			"duration", res.Duration,
		)
	}
	return res, nil
}

func (e *Engine) matchOne(plane *grayPlane, area image.Rectangle, name string, req Request) ([]Candidate, error) {
	t, err := e.templates.Get(name)
	if err != nil {
		return nil, err
	}
	if !t.Usable() {
		return nil, fmt.Errorf("%w: %s has no visible pixels", ErrTemplateLargerThanSearchArea, name)
	}
	if plane == nil || t.Size.X > area.Dx() || t.Size.Y > area.Dy() {
		return nil, fmt.Errorf("%w: %s %v in %v", ErrTemplateLargerThanSearchArea, name, t.Size, area.Size())
	}
	surf := correlate(plane, t.stats)
	toCandidate := func(p peak) Candidate {
		return Candidate{Template: name, Score: p.Score, Location: p.At.Add(area.Min), Size: t.Size}
	}
	if req.Mode == ModeBest {
		p, score := surf.best()
		if score < req.Threshold {
			return nil, nil
		}
		return []Candidate{toCandidate(peak{At: p, Score: score})}, nil
	}
	peaks := surf.peaks(req.Threshold, t.Size.X, t.Size.Y)
	out := make([]Candidate, len(peaks))
	for i, p := range peaks {
		out[i] = toCandidate(p)
	}
	return out, nil
}
