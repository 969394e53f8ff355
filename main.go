package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/soocke/pull-bot-go/app"
	"github.com/soocke/pull-bot-go/config"
	"github.com/soocke/pull-bot-go/domain/action"
	"github.com/soocke/pull-bot-go/domain/cancel"
	"github.com/soocke/pull-bot-go/domain/capture"
)

func main() {
	os.Exit(run())
}

func run() int {
	settingsPath := flag.String("settings", "settings.txt", "path of the key=value settings file")
	debugFlag := flag.Bool("debug", false, "debug logging, debug screenshots and runtime loggers")
	flag.Parse()

	settings, created, err := config.LoadSettings(*settingsPath)
	if err != nil {
		NewLogger(slog.LevelInfo).Error("load settings", "path", *settingsPath, "error", err)
		return 1
	}
	cfg := config.FromSettings(settings)
	if *debugFlag {
		cfg.Debug = true
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := NewLogger(level)
	if created {
		logger.Info("settings file created with defaults", "path", *settingsPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	tok := cancel.NewToken(cfg.PollInterval)
	tok.Tie(ctx)

	c, err := app.BuildContainer(cfg, logger, tok, action.NewActuator(), capture.ScreenGrabber)
	if err != nil {
		if errors.Is(err, action.ErrTargetSurfaceNotFound) {
			logger.Error("target window not found", "windowTitle", cfg.WindowTitle, "error", err)
		} else {
			logger.Error("startup failed", "error", err)
		}
		return 1
	}
	out, err := c.Run()
	if err != nil {
		logger.Error("session failed", "error", err, "cycles", out.Cycles)
		return 1
	}
	logger.Info("stopped", "reason", out.Reason.String())
	return 0
}
