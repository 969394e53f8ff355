package capture

import (
	"image"
	"sync"
)

// Reusable frame pool. The screenshot library still returns a freshly
// allocated *image.RGBA per call; its pixels are copied into a pooled
// buffer so that long sessions do not retain one backing slice per frame.
//
// acquireFrame(w, h) returns an RGBA whose Pix slice is exactly w*h*4 bytes
// with origin (0,0). Release hands the buffer back once the match engine is
// done with it. Frames that are never released are simply collected.

var framePool sync.Pool // stores *image.RGBA

func acquireFrame(w, h int) *image.RGBA {
	rect := image.Rect(0, 0, w, h)
	if w <= 0 || h <= 0 {
		return &image.RGBA{Rect: rect}
	}
	needed := w * h * 4
	var img *image.RGBA
	if v := framePool.Get(); v != nil {
		img = v.(*image.RGBA)
	}
	if img == nil || cap(img.Pix) < needed {
		img = &image.RGBA{Pix: make([]byte, needed), Stride: w * 4, Rect: rect}
	} else {
		img.Stride = w * 4
		img.Rect = rect
		img.Pix = img.Pix[:needed]
	}
	return img
}

func recycleFrame(img *image.RGBA) {
	if img == nil || img.Pix == nil {
		return
	}
	framePool.Put(img)
}

// normalize copies src into a pooled opaque RGBA with origin (0,0) and a
// tight stride.
func normalize(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := acquireFrame(w, h)
	rowLen := w * 4
	for y := 0; y < h; y++ {
		so := src.PixOffset(b.Min.X, b.Min.Y+y)
		row := dst.Pix[y*dst.Stride : y*dst.Stride+rowLen]
		copy(row, src.Pix[so:so+rowLen])
		for i := 3; i < rowLen; i += 4 {
			row[i] = 0xFF
		}
	}
	return dst
}
