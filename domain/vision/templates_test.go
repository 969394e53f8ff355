package vision

import (
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestStoreScalesAndCaches(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "draw.png"), noiseFrame(20, 10, 1))
	s := NewStore(dir, 2, ParseResampler("bilinear"), discardLogger())
	tmpl, err := s.Get("draw.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tmpl.Size != image.Pt(40, 20) || tmpl.Native != image.Pt(20, 10) {
		t.Fatalf("size=%v native=%v", tmpl.Size, tmpl.Native)
	}
	if !tmpl.Usable() {
		t.Fatalf("template should be usable")
	}
	again, _ := s.Get("draw.png")
	if again != tmpl {
		t.Fatalf("expected cached pointer")
	}
}

func TestStoreConcurrentGetKeepsOneWinner(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "next.png"), noiseFrame(16, 16, 2))
	s := NewStore(dir, 1, nil, nil)
	const n = 16
	got := make([]*Template, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], _ = s.Get("next.png")
		}(i)
	}
	wg.Wait()
	final, _ := s.Get("next.png")
	for i, tmpl := range got {
		if tmpl == nil {
			t.Fatalf("get %d returned nil", i)
		}
	}
	if final == nil {
		t.Fatalf("nil final")
	}
	// every later caller sees the winner
	for i := 0; i < 4; i++ {
		if v, _ := s.Get("next.png"); v != final {
			t.Fatalf("cache entry changed")
		}
	}
}

func TestStoreRejectsInvalidNames(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "ok.png"), noiseFrame(4, 4, 3))
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewStore(dir, 1, nil, nil)
	for _, name := range []string{"", "notes.txt", "../ok.png", "sub/ok.png", ".png", "missing.png"} {
		if _, err := s.Get(name); !errors.Is(err, ErrTemplateNotFound) {
			t.Errorf("Get(%q) err=%v", name, err)
		}
	}
	names, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "ok.png" {
		t.Fatalf("list=%v", names)
	}
}

func TestStorePreload(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), noiseFrame(8, 8, 4))
	s := NewStore(dir, 1, nil, discardLogger())
	s.Preload([]string{"a.png", "missing.png"})
	// a Get racing the warm-up loads synchronously
	tmpl, err := s.Get("a.png")
	if err != nil || tmpl == nil {
		t.Fatalf("get during preload: %v", err)
	}
}

func TestParseResampler(t *testing.T) {
	for _, name := range []string{"nearest", "approx", "bilinear", "catmullrom", "other"} {
		if ParseResampler(name) == nil {
			t.Fatalf("nil resampler for %s", name)
		}
	}
}
