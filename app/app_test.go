package app

import (
	"encoding/json"
	"errors"
	"image"
	"image/draw"
	"image/png"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/soocke/pull-bot-go/config"
	"github.com/soocke/pull-bot-go/domain/action"
	"github.com/soocke/pull-bot-go/domain/cancel"
	"github.com/soocke/pull-bot-go/domain/pull"
	"github.com/soocke/pull-bot-go/domain/stats"
)

var discardLogger = slog.New(slog.NewTextHandler(&discardWriter{}, nil))

type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (int, error) { return len(p), nil }

type fakeActuator struct {
	bounds    image.Rectangle
	locateErr error

	mu     sync.Mutex
	clicks []image.Point
}

func (f *fakeActuator) LocateSurface(hint string) (action.Surface, error) {
	if f.locateErr != nil {
		return action.Surface{}, f.locateErr
	}
	return action.Surface{Title: hint}, nil
}

func (f *fakeActuator) BringToFront(action.Surface) error { return nil }

func (f *fakeActuator) Bounds(action.Surface) (image.Rectangle, error) { return f.bounds, nil }

func (f *fakeActuator) MoveAndClick(p image.Point) error {
	f.mu.Lock()
	f.clicks = append(f.clicks, p)
	f.mu.Unlock()
	return nil
}

func noise(w, h int, seed int64) *image.RGBA {
	r := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(r.Intn(256))
		img.Pix[i+1] = uint8(r.Intn(256))
		img.Pix[i+2] = uint8(r.Intn(256))
		img.Pix[i+3] = 0xFF
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

// testConfig returns a config whose reference height equals the 120px test
// surface, so the scale factor is 1.
func testConfig(dir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.ReferenceHeight = 120
	cfg.SettleDelay = 0
	cfg.TemplateDir = filepath.Join(dir, "templates")
	cfg.ScreenshotDir = filepath.Join(dir, "screenshots")
	cfg.StatsFile = filepath.Join(dir, "log.txt")
	cfg.StopCount = 1
	cfg.ScreenshotCount = 1
	return cfg
}

func build(t *testing.T, cfg *config.Config, act *fakeActuator, frame *image.RGBA) *Container {
	t.Helper()
	grab := func(image.Rectangle) (*image.RGBA, error) {
		cp := image.NewRGBA(frame.Rect)
		copy(cp.Pix, frame.Pix)
		return cp, nil
	}
	c, err := BuildContainer(cfg, discardLogger, cancel.NewToken(0), act, grab)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	c.ListenKeys = nil
	return c
}

func readStats(t *testing.T, path string) stats.PullStats {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read stats: %v", err)
	}
	var s stats.PullStats
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	return s
}

func TestPlanFromConfigScalesEverything(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Draw.Anchor = &image.Point{X: 400, Y: 200}
	cfg.DrawMode = config.DrawWait
	cfg.Quality.Templates = []string{"eleanor.png", "5star.png"}

	p := PlanFromConfig(cfg, 0.5)
	if p.Draw.Threshold != 0.3 || p.Rare.Threshold != 0.45 || p.Next.Threshold != 0.25 {
		t.Fatalf("thresholds not scaled: draw=%v rare=%v next=%v", p.Draw.Threshold, p.Rare.Threshold, p.Next.Threshold)
	}
	if p.Draw.Anchor == nil || *p.Draw.Anchor != image.Pt(200, 100) {
		t.Fatalf("anchor=%v", p.Draw.Anchor)
	}
	if p.Confirm.Anchor != nil {
		t.Fatalf("confirm anchor should be unset")
	}
	if p.ROISize != 200 {
		t.Fatalf("roi=%d", p.ROISize)
	}
	if p.DrawMode != pull.DrawWait {
		t.Fatalf("mode=%q", p.DrawMode)
	}
	if p.Draw.Name != "draw" || p.Rare.Name != "rare" {
		t.Fatalf("step names %q %q", p.Draw.Name, p.Rare.Name)
	}

	big := PlanFromConfig(cfg, 2)
	if big.Rare.Threshold != 1 || big.Draw.Threshold != 1 {
		t.Fatalf("thresholds should cap at 1: %v %v", big.Rare.Threshold, big.Draw.Threshold)
	}
}

func TestPlanFromConfigScalesRareRegion(t *testing.T) {
	cfg := config.DefaultConfig()
	if p := PlanFromConfig(cfg, 1); p.Rare.Region != nil || p.Quality.Region != nil {
		t.Fatalf("rare search should default to the full frame")
	}
	cfg.RareRegion = &image.Rectangle{Min: image.Pt(280, 200), Max: image.Pt(2280, 700)}
	p := PlanFromConfig(cfg, 0.5)
	want := image.Rect(140, 100, 1140, 350)
	if p.Rare.Region == nil || *p.Rare.Region != want {
		t.Fatalf("rare region %v", p.Rare.Region)
	}
	if p.Quality.Region == nil || *p.Quality.Region != want {
		t.Fatalf("quality region %v", p.Quality.Region)
	}
	if p.Draw.Region != nil {
		t.Fatalf("draw should not inherit the rare region")
	}
}

func TestPlanFromConfigCopiesTemplates(t *testing.T) {
	cfg := config.DefaultConfig()
	p := PlanFromConfig(cfg, 1)
	p.Draw.Templates[0] = "changed.png"
	if cfg.Draw.Templates[0] != "draw.png" {
		t.Fatalf("plan shares the template slice with the config")
	}
}

func TestTemplateNamesDeduplicates(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Quality.Templates = []string{"5star.png", "eleanor.png"}
	names := templateNames(PlanFromConfig(cfg, 1))
	want := []string{"draw.png", "confirm.png", "next.png", "5star.png", "eleanor.png"}
	if len(names) != len(want) {
		t.Fatalf("names=%v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names=%v want %v", names, want)
		}
	}
}

func TestBuildContainerSurfaceNotFound(t *testing.T) {
	cfg := testConfig(t.TempDir())
	act := &fakeActuator{locateErr: action.ErrTargetSurfaceNotFound}
	_, err := BuildContainer(cfg, discardLogger, nil, act, nil)
	if !errors.Is(err, action.ErrTargetSurfaceNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestBuildContainerZeroHeightSurface(t *testing.T) {
	cfg := testConfig(t.TempDir())
	act := &fakeActuator{bounds: image.Rect(0, 0, 100, 0)}
	_, err := BuildContainer(cfg, discardLogger, nil, act, nil)
	if !errors.Is(err, action.ErrTargetSurfaceNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestBuildContainerCreatesTemplateDir(t *testing.T) {
	cfg := testConfig(t.TempDir())
	act := &fakeActuator{bounds: image.Rect(0, 0, 160, 120)}
	c := build(t, cfg, act, noise(160, 120, 1))
	if fi, err := os.Stat(cfg.TemplateDir); err != nil || !fi.IsDir() {
		t.Fatalf("template dir not created: %v", err)
	}
	if c.Factor != 1 {
		t.Fatalf("factor=%v", c.Factor)
	}
}

func TestRunStopsWhenRareCountReached(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	if err := os.MkdirAll(cfg.TemplateDir, 0o755); err != nil {
		t.Fatal(err)
	}
	rare := noise(20, 20, 42)
	confirm := noise(20, 20, 7)
	writePNG(t, filepath.Join(cfg.TemplateDir, "5star.png"), rare)
	writePNG(t, filepath.Join(cfg.TemplateDir, "confirm.png"), confirm)

	frame := noise(160, 120, 1)
	draw.Draw(frame, image.Rect(30, 40, 50, 60), rare, image.Point{}, draw.Src)
	draw.Draw(frame, image.Rect(100, 60, 120, 80), confirm, image.Point{}, draw.Src)

	act := &fakeActuator{bounds: image.Rect(100, 200, 260, 320)}
	c := build(t, cfg, act, frame)
	out, err := c.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Reason != pull.ReasonTargetReached || out.LastCount != 1 || out.Cycles != 1 || out.Pulls != 1 {
		t.Fatalf("outcome=%+v", out)
	}
	if len(act.clicks) != 1 || act.clicks[0] != image.Pt(210, 270) {
		t.Fatalf("clicks=%v", act.clicks)
	}
	if !c.Token.Cancelled() {
		t.Fatalf("token should be cancelled after run")
	}

	s := readStats(t, cfg.StatsFile)
	if s.Pulls != 1 || s.FiveStars["1"] != 1 || len(s.HourlyPulls) != 1 {
		t.Fatalf("stats=%+v", s)
	}
	shots, err := os.ReadDir(cfg.ScreenshotDir)
	if err != nil || len(shots) != 1 {
		t.Fatalf("screenshots=%v err=%v", shots, err)
	}
}

func TestRunStopsAtMaxCycles(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.MaxCycles = 2
	act := &fakeActuator{bounds: image.Rect(0, 0, 160, 120)}
	c := build(t, cfg, act, noise(160, 120, 3))
	out, err := c.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Reason != pull.ReasonMaxCycles || out.Cycles != 2 {
		t.Fatalf("outcome=%+v", out)
	}
	if len(act.clicks) != 0 {
		t.Fatalf("unexpected clicks %v", act.clicks)
	}
	s := readStats(t, cfg.StatsFile)
	if s.Pulls != 0 || s.FiveStars["0"] != 2 {
		t.Fatalf("stats=%+v", s)
	}
	if _, err := os.Stat(cfg.ScreenshotDir); !os.IsNotExist(err) {
		t.Fatalf("screenshot dir should not exist: %v", err)
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	cfg := testConfig(t.TempDir())
	act := &fakeActuator{bounds: image.Rect(0, 0, 160, 120)}
	c := build(t, cfg, act, noise(160, 120, 4))
	c.Token.Cancel()
	out, err := c.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Reason != pull.ReasonCancelled || out.Cycles != 0 {
		t.Fatalf("outcome=%+v", out)
	}
}
