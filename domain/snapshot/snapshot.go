package snapshot

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/corona10/goimagehash"
	"golang.org/x/image/draw"
)

// MaxHashDistance is the perceptual-hash Hamming distance at or below which
// two rare-outcome screenshots are considered the same screen.
const MaxHashDistance = 4

const stampLayout = "2006-01-02T15-04-05.000"

var boxColor = color.RGBA{R: 0xFF, A: 0xFF}

// Saver writes PNG screenshots into a directory created on first write.
type Saver struct {
	dir    string
	dedupe bool
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	lastHash *goimagehash.ImageHash
	seq      int
}

// NewSaver constructs a saver. With dedupe, SaveRare skips an image whose
// perceptual hash is within MaxHashDistance of the previous saved one.
func NewSaver(dir string, dedupe bool, logger *slog.Logger) *Saver {
	return &Saver{dir: dir, dedupe: dedupe, logger: logger, now: time.Now}
}

// SaveRare stores a rare-outcome screenshot. It returns "" without error when
// the image was skipped as a duplicate.
func (s *Saver) SaveRare(img image.Image, count int) (string, error) {
	if s.dedupe && s.duplicate(img) {
		if s.logger != nil {
			s.logger.Debug("screenshot skipped, similar to previous", "count", count)
		}
		return "", nil
	}
	return s.write(fmt.Sprintf("rare%d", count), img)
}

func (s *Saver) duplicate(img image.Image) bool {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastHash == nil {
		s.lastHash = hash
		return false
	}
	dist, err := s.lastHash.Distance(hash)
	s.lastHash = hash
	return err == nil && dist <= MaxHashDistance
}

// SaveDebug stores a copy of img with box outlined, used to inspect matches.
func (s *Saver) SaveDebug(img image.Image, label string, box image.Rectangle) (string, error) {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	outline(out, box)
	return s.write("debug-"+label, out)
}

func outline(img *image.RGBA, r image.Rectangle) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		img.SetRGBA(x, r.Min.Y, boxColor)
		img.SetRGBA(x, r.Max.Y-1, boxColor)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.SetRGBA(r.Min.X, y, boxColor)
		img.SetRGBA(r.Max.X-1, y, boxColor)
	}
}

func (s *Saver) write(label string, img image.Image) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir %s: %w", s.dir, err)
	}
	s.mu.Lock()
	s.seq++
	name := fmt.Sprintf("%s-%s-%d.png", label, s.now().Format(stampLayout), s.seq)
	s.mu.Unlock()
	path := filepath.Join(s.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create screenshot: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("encode screenshot %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close screenshot %s: %w", path, err)
	}
	if s.logger != nil {
		s.logger.Info("screenshot saved", "path", path)
	}
	return path, nil
}
