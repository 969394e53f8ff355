package vision

import (
	"image"
	"math"
	"runtime"
	"sync"
)

// flatEpsilon is the per-pixel variance below which a window or template is
// treated as flat.
const flatEpsilon = 1e-6

// suppressed marks surface cells removed by non-maximum suppression. It sits
// below the score range so that thresholds <= 0 still terminate.
const suppressed = -2

// grayPlane stores luminance values of a search area and their summed-area
// tables (integral images) for O(1) window sum and variance queries.
type grayPlane struct {
	gray       []float64 // per pixel luminance (length W*H)
	integral   []float64 // summed-area table of luminance
	integralSq []float64 // summed-area table of luminance squared
	W, H       int
}

// templateStats caches zero-mean luminance and summary statistics for a
// scaled template.
type templateStats struct {
	centered []float64 // luminance minus mean, row-major
	sumSq    float64   // sum of centered squares
	mean     float64
	flat     bool
	W, H     int
}

func luminance(r, g, b uint8) float64 {
	return 0.2126*float64(r) + 0.7152*float64(g) + 0.0722*float64(b)
}

// buildGrayPlane computes luminance and its integrals over area of img.
func buildGrayPlane(img *image.RGBA, area image.Rectangle) *grayPlane {
	W, H := area.Dx(), area.Dy()
	need := W * H
	p := &grayPlane{
		gray:       make([]float64, need),
		integral:   make([]float64, need),
		integralSq: make([]float64, need),
		W:          W,
		H:          H,
	}
	for y := 0; y < H; y++ {
		var rowSum, rowSum2 float64
		so := img.PixOffset(area.Min.X, area.Min.Y+y)
		for x := 0; x < W; x++ {
			px := img.Pix[so+x*4 : so+x*4+3 : so+x*4+3]
			gray := luminance(px[0], px[1], px[2])
			off := y*W + x
			p.gray[off] = gray
			rowSum += gray
			rowSum2 += gray * gray
			if y == 0 {
				p.integral[off] = rowSum
				p.integralSq[off] = rowSum2
			} else {
				p.integral[off] = p.integral[(y-1)*W+x] + rowSum
				p.integralSq[off] = p.integralSq[(y-1)*W+x] + rowSum2
			}
		}
	}
	return p
}

// buildTemplateStats precomputes the template side of the correlation.
// It returns nil for zero-area or fully transparent templates.
func buildTemplateStats(img *image.RGBA) *templateStats {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil
	}
	n := w * h
	gray := make([]float64, n)
	visible := false
	var sum float64
	for y := 0; y < h; y++ {
		so := img.PixOffset(b.Min.X, b.Min.Y+y)
		for x := 0; x < w; x++ {
			px := img.Pix[so+x*4 : so+x*4+4 : so+x*4+4]
			if px[3] != 0 {
				visible = true
			}
			g := luminance(px[0], px[1], px[2])
			gray[y*w+x] = g
			sum += g
		}
	}
	if !visible {
		return nil
	}
	mean := sum / float64(n)
	var sumSq float64
	for i := range gray {
		gray[i] -= mean
		sumSq += gray[i] * gray[i]
	}
	return &templateStats{
		centered: gray,
		sumSq:    sumSq,
		mean:     mean,
		flat:     sumSq/float64(n) <= flatEpsilon,
		W:        w,
		H:        h,
	}
}

// integralSum returns the inclusive sum over rectangle [x0..x1] x [y0..y1]
// from an integral image stored in row-major order with width W.
func integralSum(I []float64, W int, x0, y0, x1, y1 int) float64 {
	if x0 > x1 || y0 > y1 {
		return 0
	}
	A := func(x, y int) float64 {
		if x < 0 || y < 0 {
			return 0
		}
		return I[y*W+x]
	}
	return A(x1, y1) - A(x0-1, y1) - A(x1, y0-1) + A(x0-1, y0-1)
}

// scoreSurface is a normalized correlation coefficient surface. Cell (x, y)
// holds the score of the template placed with its top-left at (x, y) of the
// search area.
type scoreSurface struct {
	scores []float64
	W, H   int
}

// correlate computes the full surface of tmpl over plane. The caller must
// ensure the template fits. Rows are split into bands computed in parallel;
// the returned buffer is owned by the caller.
func correlate(plane *grayPlane, tmpl *templateStats) *scoreSurface {
	sw := plane.W - tmpl.W + 1
	sh := plane.H - tmpl.H + 1
	surf := &scoreSurface{scores: make([]float64, sw*sh), W: sw, H: sh}

	workers := runtime.NumCPU()
	if workers > sh {
		workers = sh
	}
	if workers < 1 {
		workers = 1
	}
	band := (sh + workers - 1) / workers
	var wg sync.WaitGroup
	for y0 := 0; y0 < sh; y0 += band {
		y1 := min(y0+band, sh)
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			for y := y0; y < y1; y++ {
				row := surf.scores[y*sw : (y+1)*sw]
				for x := 0; x < sw; x++ {
					row[x] = windowScore(plane, tmpl, x, y)
				}
			}
		}(y0, y1)
	}
	wg.Wait()
	return surf
}

// windowScore evaluates TM_CCOEFF_NORMED for one placement. Flat windows or
// templates score 0, except when both are flat with equal mean (score 1).
func windowScore(plane *grayPlane, tmpl *templateStats, x, y int) float64 {
	w, h := tmpl.W, tmpl.H
	n := float64(w * h)
	sumF := integralSum(plane.integral, plane.W, x, y, x+w-1, y+h-1)
	sumF2 := integralSum(plane.integralSq, plane.W, x, y, x+w-1, y+h-1)
	varF := sumF2 - sumF*sumF/n
	flatF := varF/n <= flatEpsilon
	if flatF || tmpl.flat {
		if flatF && tmpl.flat && math.Abs(sumF/n-tmpl.mean) <= 1e-3 {
			return 1
		}
		return 0
	}
	var numer float64
	for ty := 0; ty < h; ty++ {
		frow := plane.gray[(y+ty)*plane.W+x : (y+ty)*plane.W+x+w]
		trow := tmpl.centered[ty*w : (ty+1)*w]
		for i, t := range trow {
			numer += frow[i] * t
		}
	}
	score := numer / math.Sqrt(varF*tmpl.sumSq)
	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}
	return score
}

// best returns the location and value of the global maximum. Ties keep the
// first cell in row-major order.
func (s *scoreSurface) best() (image.Point, float64) {
	bestIdx, bestScore := 0, math.Inf(-1)
	for i, v := range s.scores {
		if v > bestScore {
			bestIdx, bestScore = i, v
		}
	}
	return image.Pt(bestIdx%s.W, bestIdx/s.W), bestScore
}

// suppress removes every cell of the rectangle [x, x+w) x [y, y+h) that lies
// in the surface, so later maxima cannot overlap the recorded match's origin
// footprint.
func (s *scoreSurface) suppress(p image.Point, w, h int) {
	x1 := min(p.X+w, s.W)
	y1 := min(p.Y+h, s.H)
	for y := max(p.Y, 0); y < y1; y++ {
		row := s.scores[y*s.W : (y+1)*s.W]
		for x := max(p.X, 0); x < x1; x++ {
			row[x] = suppressed
		}
	}
}

// peaks repeatedly takes the global maximum while it is >= threshold,
// suppressing the template footprint after each hit.
func (s *scoreSurface) peaks(threshold float64, w, h int) []peak {
	var out []peak
	for {
		p, score := s.best()
		if score < threshold || score <= suppressed {
			return out
		}
		out = append(out, peak{At: p, Score: score})
		s.suppress(p, w, h)
	}
}

type peak struct {
	At    image.Point
	Score float64
}
