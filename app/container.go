package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"time"

	"github.com/soocke/pull-bot-go/config"
	"github.com/soocke/pull-bot-go/debug"
	"github.com/soocke/pull-bot-go/domain/action"
	"github.com/soocke/pull-bot-go/domain/cancel"
	"github.com/soocke/pull-bot-go/domain/capture"
	"github.com/soocke/pull-bot-go/domain/input"
	"github.com/soocke/pull-bot-go/domain/pull"
	"github.com/soocke/pull-bot-go/domain/snapshot"
	"github.com/soocke/pull-bot-go/domain/stats"
	"github.com/soocke/pull-bot-go/domain/vision"
	"github.com/soocke/pull-bot-go/metrics"
)

// Container holds the wired components of one session.
type Container struct {
	Config *config.Config
	Logger *slog.Logger
	Token  *cancel.Token

	Actuator   action.Actuator
	Surface    action.Surface
	Factor     float64
	Plan       pull.Plan
	Templates  *vision.Store
	Engine     *vision.Engine
	Capture    *capture.Adapter
	Dispatcher *action.Dispatcher
	Stats      *stats.Store
	Snapshots  *snapshot.Saver
	Metrics    *metrics.Metrics
	Machine    *pull.Machine

	// ListenKeys starts the cancellation key listener; replaced in tests.
	ListenKeys func(*cancel.Token, *slog.Logger) func()
}

// BuildContainer locates and focuses the target surface, calibrates the scale
// factor and constructs every component. A missing surface is fatal.
func BuildContainer(cfg *config.Config, logger *slog.Logger, tok *cancel.Token, act action.Actuator, grab capture.Grabber) (*Container, error) {
	if tok == nil {
		tok = cancel.NewToken(cfg.PollInterval)
	}
	c := &Container{Config: cfg, Logger: logger, Token: tok, Actuator: act, ListenKeys: input.ListenEscape}

	surface, err := act.LocateSurface(cfg.WindowTitle)
	if err != nil {
		return nil, fmt.Errorf("locate %q: %w", cfg.WindowTitle, err)
	}
	if err := act.BringToFront(surface); err != nil {
		return nil, fmt.Errorf("focus %q: %w", surface.Title, err)
	}
	bounds, err := act.Bounds(surface)
	if err != nil {
		return nil, fmt.Errorf("bounds of %q: %w", surface.Title, err)
	}
	surface.Bounds = bounds
	c.Surface = surface

	c.Factor, err = vision.ComputeScale(bounds, image.Pt(cfg.ReferenceWidth, cfg.ReferenceHeight))
	if err != nil {
		return nil, err
	}
	logger.Info("surface located",
		"title", surface.Title,
		"bounds", bounds.String(),
		"scale", c.Factor,
	)

	if err := ensureDir(cfg.TemplateDir, logger); err != nil {
		return nil, err
	}
	c.Plan = PlanFromConfig(cfg, c.Factor)
	c.Templates = vision.NewStore(cfg.TemplateDir, c.Factor, vision.ParseResampler(cfg.Resampler), logger)
	c.Templates.Preload(templateNames(c.Plan))
	c.Engine = vision.NewEngine(c.Templates, logger)
	c.Capture = capture.NewAdapter(grab, logger)
	c.Dispatcher = action.NewDispatcher(act, surface, cfg.SettleDelay, tok, logger)
	c.Stats = stats.Open(cfg.StatsFile, logger)
	c.Snapshots = snapshot.NewSaver(cfg.ScreenshotDir, cfg.DedupeScreenshots, logger)
	c.Metrics = metrics.New()

	c.Machine = pull.NewMachine(pull.Session{
		Token:   tok,
		Surface: bounds,
		Factor:  c.Factor,
		Plan:    c.Plan,
	}, pull.Deps{
		Capture:   c.Capture,
		Matcher:   c.Engine,
		Clicker:   c.Dispatcher,
		Stats:     c.Stats,
		Snapshots: c.Snapshots,
		Observer:  c.Metrics,
	}, logger)
	return c, nil
}

// ensureDir creates the template directory when it is missing so the user
// has somewhere to drop templates.
func ensureDir(dir string, logger *slog.Logger) error {
	_, err := os.Stat(dir)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("template dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create template dir: %w", err)
	}
	logger.Warn("template directory created, it contains no templates", "dir", dir)
	return nil
}

// Run starts the metrics endpoint, the key listener and the debug loggers,
// then drives the machine until it stops. The token is cancelled on return
// so that background loggers and listeners exit.
func (c *Container) Run() (pull.Outcome, error) {
	defer c.Token.Cancel()
	if c.Config.MetricsAddr != "" {
		if err := c.Metrics.StartServer(c.Config.MetricsAddr, c.Logger); err != nil {
			c.Logger.Warn("metrics disabled", "addr", c.Config.MetricsAddr, "error", err)
		}
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.Metrics.Shutdown(ctx); err != nil {
			c.Logger.Warn("metrics shutdown", "error", err)
		}
	}()

	if c.ListenKeys != nil {
		stop := c.ListenKeys(c.Token, c.Logger)
		defer stop()
	}
	if c.Config.Debug {
		debug.StartGoroutineLogger(5*time.Second, c.Token, c.Logger)
		debug.StartMemLogger(5*time.Second, c.Token, c.Logger)
	}

	c.Logger.Info("session started", "drawMode", c.Plan.DrawMode, "stopCount", c.Plan.StopCount, "qualityTarget", c.Plan.QualityTarget)
	out, err := c.Machine.Run()
	st := c.Capture.Stats()
	c.Logger.Info("session finished",
		"reason", out.Reason.String(),
		"cycles", out.Cycles,
		"pulls", out.Pulls,
		"lastCount", out.LastCount,
		"captures", st.Captures,
		"captureFailures", st.Failures,
	)
	return out, err
}
