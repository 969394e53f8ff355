package vision

import "image"

// ClampROI produces a square search rectangle of side size centered at
// center, shifted to lie inside a w x h frame. The side is truncated only
// along an axis the frame is smaller than; size < 1 yields a 1x1 rectangle.
func ClampROI(center image.Point, size, w, h int) image.Rectangle {
	if w <= 0 || h <= 0 {
		return image.Rectangle{}
	}
	if size < 1 {
		size = 1
	}
	sw, sh := min(size, w), min(size, h)
	x0 := clampInt(center.X-sw/2, 0, w-sw)
	y0 := clampInt(center.Y-sh/2, 0, h-sh)
	return image.Rect(x0, y0, x0+sw, y0+sh)
}

// SelectROI returns the search area for an optional hint. A nil center
// selects the full frame.
func SelectROI(center *image.Point, size int, frame image.Rectangle) image.Rectangle {
	full := image.Rect(0, 0, frame.Dx(), frame.Dy())
	if center == nil {
		return full
	}
	return ClampROI(*center, size, full.Dx(), full.Dy())
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
