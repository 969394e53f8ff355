package vision

import (
	"fmt"
	"image"
	"math"

	"github.com/soocke/pull-bot-go/domain/action"
)

// ComputeScale returns the session scale factor: live surface height over the
// reference design height. Width is ignored.
func ComputeScale(surface image.Rectangle, reference image.Point) (float64, error) {
	h := surface.Dy()
	if h <= 0 {
		return 0, fmt.Errorf("%w: surface %v has no height", action.ErrTargetSurfaceNotFound, surface)
	}
	if reference.Y <= 0 {
		return 0, fmt.Errorf("invalid reference resolution %v", reference)
	}
	return float64(h) / float64(reference.Y), nil
}

// ScaleThreshold multiplies a base threshold by factor, capped at 1.
func ScaleThreshold(base, factor float64) float64 {
	return math.Min(base*factor, 1)
}

// ScaleLength scales a pixel length, rounding to nearest and never below 1.
func ScaleLength(n int, factor float64) int {
	v := int(math.Round(float64(n) * factor))
	if v < 1 {
		return 1
	}
	return v
}

// ScalePoint maps a reference-resolution point to surface coordinates.
func ScalePoint(p image.Point, factor float64) image.Point {
	return image.Pt(int(math.Round(float64(p.X)*factor)), int(math.Round(float64(p.Y)*factor)))
}

// ScaleRect maps a reference-resolution rectangle to surface coordinates.
func ScaleRect(r image.Rectangle, factor float64) image.Rectangle {
	return image.Rectangle{Min: ScalePoint(r.Min, factor), Max: ScalePoint(r.Max, factor)}
}

// Thresholds holds the per-step similarity thresholds of a session.
type Thresholds struct {
	Draw    float64
	Confirm float64
	Next    float64
	Rare    float64
	Quality float64
}

// Scaled returns every threshold multiplied by factor and capped at 1.
func (t Thresholds) Scaled(factor float64) Thresholds {
	return Thresholds{
		Draw:    ScaleThreshold(t.Draw, factor),
		Confirm: ScaleThreshold(t.Confirm, factor),
		Next:    ScaleThreshold(t.Next, factor),
		Rare:    ScaleThreshold(t.Rare, factor),
		Quality: ScaleThreshold(t.Quality, factor),
	}
}
