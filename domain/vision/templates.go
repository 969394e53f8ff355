package vision

import (
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/image/draw"
)

// ErrTemplateNotFound reports a template name that is not usable or absent.
var ErrTemplateNotFound = errors.New("template not found")

const templateExt = ".png"

// Template is a reference image scaled for the session.
type Template struct {
	Name   string
	Image  *image.RGBA
	Native image.Point // size of the source file
	Size   image.Point // size after scaling
	stats  *templateStats
}

// Usable reports whether the template has visible pixels and a non-zero area.
func (t *Template) Usable() bool { return t != nil && t.stats != nil }

// ParseResampler maps a settings name to an x/image/draw interpolator.
// Unknown names select BiLinear.
func ParseResampler(name string) draw.Interpolator {
	switch strings.ToLower(name) {
	case "nearest":
		return draw.NearestNeighbor
	case "approx":
		return draw.ApproxBiLinear
	case "catmullrom":
		return draw.CatmullRom
	default:
		return draw.BiLinear
	}
}

// Store loads, scales and caches templates by name for the process
// lifetime. The scale factor and resampler are fixed at construction.
type Store struct {
	dir       string
	factor    float64
	resampler draw.Interpolator
	logger    *slog.Logger

	mu    sync.RWMutex
	cache map[string]*Template
}

// NewStore constructs a store reading from dir. factor <= 0 is treated as 1;
// a nil resampler selects BiLinear.
func NewStore(dir string, factor float64, resampler draw.Interpolator, logger *slog.Logger) *Store {
	if factor <= 0 {
		factor = 1
	}
	if resampler == nil {
		resampler = draw.BiLinear
	}
	return &Store{dir: dir, factor: factor, resampler: resampler, logger: logger, cache: map[string]*Template{}}
}

// Factor returns the scale factor applied to every template.
func (s *Store) Factor() float64 { return s.factor }

// Get returns the cached template, loading it on a miss. Concurrent loads of
// the same name keep whichever finished first.
func (s *Store) Get(name string) (*Template, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	s.mu.RLock()
	t := s.cache[name]
	s.mu.RUnlock()
	if t != nil {
		return t, nil
	}
	t, err := s.load(name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if existing := s.cache[name]; existing != nil {
		t = existing
	} else {
		s.cache[name] = t
	}
	s.mu.Unlock()
	return t, nil
}

// Preload warms the cache in the background and returns immediately.
func (s *Store) Preload(names []string) {
	names = append([]string(nil), names...)
	go func() {
		for _, n := range names {
			if _, err := s.Get(n); err != nil && s.logger != nil {
				s.logger.Warn("template preload failed", "template", n, "error", err)
			}
		}
		if s.logger != nil {
			s.logger.Debug("template preload done", "count", len(names))
		}
	}()
}

// List enumerates the template files in the directory, sorted by name.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list templates %s: %w", s.dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !validName(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

func validName(name string) bool {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), templateExt) && len(name) > len(templateExt)
}

func (s *Store) load(name string) (*Template, error) {
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
		}
		return nil, fmt.Errorf("open template %s: %w", name, err)
	}
	defer f.Close()
	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode template %s: %w", name, err)
	}
	t := NewTemplate(name, src, s.factor, s.resampler)
	if s.logger != nil {
		s.logger.Debug("template loaded", "template", name, "native", t.Native, "scaled", t.Size)
	}
	return t, nil
}

// NewTemplate scales src by factor with the given resampler and precomputes
// its correlation statistics.
func NewTemplate(name string, src image.Image, factor float64, resampler draw.Interpolator) *Template {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	sw, sh := w, h
	if factor != 1 && w > 0 && h > 0 {
		sw, sh = ScaleLength(w, factor), ScaleLength(h, factor)
	}
	dst := image.NewRGBA(image.Rect(0, 0, sw, sh))
	if w > 0 && h > 0 {
		if sw == w && sh == h {
			draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		} else {
			if resampler == nil {
				resampler = draw.BiLinear
			}
			resampler.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
		}
	}
	return &Template{
		Name:   name,
		Image:  dst,
		Native: image.Pt(w, h),
		Size:   image.Pt(sw, sh),
		stats:  buildTemplateStats(dst),
	}
}
