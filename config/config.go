package config

import (
	"image"
	"strings"
	"time"
)

// Settings keys.
const (
	KeyStopCount          = "fiveStarsToPull"
	KeyScreenshotCount    = "fiveStarsToScreenshot"
	KeyQualityTarget      = "qualityTarget"
	KeyQualityTemplates   = "qualityTemplates"
	KeyDebug              = "debug"
	KeyWindowTitle        = "windowTitle"
	KeyReferenceWidth     = "referenceWidth"
	KeyReferenceHeight    = "referenceHeight"
	KeyDrawTemplates      = "drawTemplates"
	KeyConfirmTemplates   = "confirmTemplates"
	KeyNextTemplates      = "nextTemplates"
	KeyRareTemplates      = "rareTemplates"
	KeyDrawThreshold      = "drawThreshold"
	KeyConfirmThreshold   = "confirmThreshold"
	KeyNextThreshold      = "nextThreshold"
	KeyRareThreshold      = "rareThreshold"
	KeyQualityThreshold   = "qualityThreshold"
	KeyDrawPoint          = "drawPoint"
	KeyConfirmPoint       = "confirmPoint"
	KeyNextPoint          = "nextPoint"
	KeyROISize            = "roiSize"
	KeyRareRegion         = "rareRegion"
	KeyDrawMode           = "drawMode"
	KeySettleDelayMs      = "settleDelayMs"
	KeyPollIntervalMs     = "pollIntervalMs"
	KeyMaxCycles          = "maxCycles"
	KeyMaxDismissAttempts = "maxDismissAttempts"
	KeyTemplateDir        = "templateDir"
	KeyScreenshotDir      = "screenshotDir"
	KeyStatsFile          = "statsFile"
	KeyResampler          = "resampler"
	KeyDedupeScreenshots  = "dedupeScreenshots"
	KeyMetricsAddr        = "metricsAddr"
)

// Draw modes.
const (
	DrawRepeat = "repeat" // click until the draw control is gone
	DrawOnce   = "once"   // a single attempt
	DrawWait   = "wait"   // retry until a click lands
)

// DefaultSettings returns the values written to a fresh settings file.
func DefaultSettings() map[string]any {
	return map[string]any{
		KeyStopCount:          2.0,
		KeyScreenshotCount:    1.0,
		KeyQualityTarget:      0.0,
		KeyQualityTemplates:   "",
		KeyDebug:              false,
		KeyWindowTitle:        "browndust",
		KeyReferenceWidth:     2560.0,
		KeyReferenceHeight:    1080.0,
		KeyDrawTemplates:      "draw.png",
		KeyConfirmTemplates:   "confirm.png",
		KeyNextTemplates:      "next.png",
		KeyRareTemplates:      "5star.png",
		KeyDrawThreshold:      0.6,
		KeyConfirmThreshold:   0.6,
		KeyNextThreshold:      0.5,
		KeyRareThreshold:      0.9,
		KeyQualityThreshold:   0.9,
		KeyDrawPoint:          "",
		KeyConfirmPoint:       "",
		KeyNextPoint:          "",
		KeyROISize:            400.0,
		KeyRareRegion:         "",
		KeyDrawMode:           DrawRepeat,
		KeySettleDelayMs:      300.0,
		KeyPollIntervalMs:     50.0,
		KeyMaxCycles:          0.0,
		KeyMaxDismissAttempts: 50.0,
		KeyTemplateDir:        "templates",
		KeyScreenshotDir:      "screenshots",
		KeyStatsFile:          "log.txt",
		KeyResampler:          "bilinear",
		KeyDedupeScreenshots:  true,
		KeyMetricsAddr:        "",
	}
}

// Step describes one find-and-act step: which templates to look for, the
// unscaled threshold and an optional anchor in reference coordinates.
type Step struct {
	Templates []string
	Threshold float64
	Anchor    *image.Point
}

// Config is the typed view of Settings used by the rest of the program.
type Config struct {
	Debug bool

	WindowTitle     string
	ReferenceWidth  int
	ReferenceHeight int

	Draw    Step
	Confirm Step
	Next    Step
	Rare    Step
	Quality Step

	StopCount       int
	ScreenshotCount int
	QualityTarget   int

	ROISize            int
	RareRegion         *image.Rectangle // reference coords; nil searches the full frame
	DrawMode           string
	SettleDelay        time.Duration
	PollInterval       time.Duration
	MaxCycles          int
	MaxDismissAttempts int

	TemplateDir       string
	ScreenshotDir     string
	StatsFile         string
	Resampler         string
	DedupeScreenshots bool
	MetricsAddr       string
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return FromSettings(NewSettings(DefaultSettings()))
}

// FromSettings builds a validated Config from a settings record.
func FromSettings(s *Settings) *Config {
	d := DefaultSettings()
	step := func(templatesKey, thresholdKey, pointKey string) Step {
		st := Step{
			Templates: s.List(templatesKey),
			Threshold: s.Float(thresholdKey, d[thresholdKey].(float64)),
		}
		if pointKey != "" {
			if p, ok := s.Point(pointKey); ok {
				st.Anchor = &p
			}
		}
		return st
	}
	c := &Config{
		Debug:              s.Bool(KeyDebug, false),
		WindowTitle:        s.String(KeyWindowTitle, d[KeyWindowTitle].(string)),
		ReferenceWidth:     s.Int(KeyReferenceWidth, 2560),
		ReferenceHeight:    s.Int(KeyReferenceHeight, 1080),
		Draw:               step(KeyDrawTemplates, KeyDrawThreshold, KeyDrawPoint),
		Confirm:            step(KeyConfirmTemplates, KeyConfirmThreshold, KeyConfirmPoint),
		Next:               step(KeyNextTemplates, KeyNextThreshold, KeyNextPoint),
		Rare:               step(KeyRareTemplates, KeyRareThreshold, ""),
		Quality:            step(KeyQualityTemplates, KeyQualityThreshold, ""),
		StopCount:          s.Int(KeyStopCount, 2),
		ScreenshotCount:    s.Int(KeyScreenshotCount, 1),
		QualityTarget:      s.Int(KeyQualityTarget, 0),
		ROISize:            s.Int(KeyROISize, 400),
		DrawMode:           strings.ToLower(s.String(KeyDrawMode, DrawRepeat)),
		SettleDelay:        time.Duration(s.Int(KeySettleDelayMs, 300)) * time.Millisecond,
		PollInterval:       time.Duration(s.Int(KeyPollIntervalMs, 50)) * time.Millisecond,
		MaxCycles:          s.Int(KeyMaxCycles, 0),
		MaxDismissAttempts: s.Int(KeyMaxDismissAttempts, 50),
		TemplateDir:        s.String(KeyTemplateDir, "templates"),
		ScreenshotDir:      s.String(KeyScreenshotDir, "screenshots"),
		StatsFile:          s.String(KeyStatsFile, "log.txt"),
		Resampler:          strings.ToLower(s.String(KeyResampler, "bilinear")),
		DedupeScreenshots:  s.Bool(KeyDedupeScreenshots, true),
		MetricsAddr:        s.String(KeyMetricsAddr, ""),
	}
	if r, ok := s.Rect(KeyRareRegion); ok {
		c.RareRegion = &r
	}
	_ = c.Validate()
	return c
}

// Validate clamps/normalizes values to safe ranges.
func (c *Config) Validate() error {
	if c.ReferenceWidth <= 0 {
		c.ReferenceWidth = 2560
	}
	if c.ReferenceHeight <= 0 {
		c.ReferenceHeight = 1080
	}
	for _, st := range []*Step{&c.Draw, &c.Confirm, &c.Next, &c.Rare, &c.Quality} {
		if st.Threshold > 1 {
			st.Threshold = 1
		}
		if st.Threshold < -1 {
			st.Threshold = -1
		}
	}
	if len(c.Draw.Templates) == 0 {
		c.Draw.Templates = []string{"draw.png"}
	}
	if len(c.Confirm.Templates) == 0 {
		c.Confirm.Templates = []string{"confirm.png"}
	}
	if len(c.Next.Templates) == 0 {
		c.Next.Templates = []string{"next.png"}
	}
	if len(c.Rare.Templates) == 0 {
		c.Rare.Templates = []string{"5star.png"}
	}
	if c.StopCount < 1 {
		c.StopCount = 1
	}
	if c.ScreenshotCount < 0 {
		c.ScreenshotCount = 0
	}
	if c.QualityTarget < 0 {
		c.QualityTarget = 0
	}
	if c.ROISize < 1 {
		c.ROISize = 400
	}
	switch c.DrawMode {
	case DrawRepeat, DrawOnce, DrawWait:
	default:
		c.DrawMode = DrawRepeat
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 300 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 50 * time.Millisecond
	}
	if c.MaxCycles < 0 {
		c.MaxCycles = 0
	}
	if c.MaxDismissAttempts < 1 {
		c.MaxDismissAttempts = 50
	}
	if c.TemplateDir == "" {
		c.TemplateDir = "templates"
	}
	if c.ScreenshotDir == "" {
		c.ScreenshotDir = "screenshots"
	}
	if c.StatsFile == "" {
		c.StatsFile = "log.txt"
	}
	switch c.Resampler {
	case "nearest", "approx", "bilinear", "catmullrom":
	default:
		c.Resampler = "bilinear"
	}
	return nil
}

// QualityEnabled reports whether a quality stop condition is configured.
func (c *Config) QualityEnabled() bool {
	return c.QualityTarget > 0 && len(c.Quality.Templates) > 0
}
