package app

import (
	"github.com/soocke/pull-bot-go/config"
	"github.com/soocke/pull-bot-go/domain/pull"
	"github.com/soocke/pull-bot-go/domain/vision"
)

// PlanFromConfig converts the reference-resolution configuration into the
// machine plan for a surface scaled by factor. Thresholds, anchors, the ROI
// size and the rare-outcome region all use the same factor.
func PlanFromConfig(cfg *config.Config, factor float64) pull.Plan {
	th := vision.Thresholds{
		Draw:    cfg.Draw.Threshold,
		Confirm: cfg.Confirm.Threshold,
		Next:    cfg.Next.Threshold,
		Rare:    cfg.Rare.Threshold,
		Quality: cfg.Quality.Threshold,
	}.Scaled(factor)

	step := func(name string, s config.Step, threshold float64) pull.Step {
		out := pull.Step{
			Name:      name,
			Templates: append([]string(nil), s.Templates...),
			Threshold: threshold,
		}
		if s.Anchor != nil {
			p := vision.ScalePoint(*s.Anchor, factor)
			out.Anchor = &p
		}
		return out
	}

	rare := step("rare", cfg.Rare, th.Rare)
	quality := step("quality", cfg.Quality, th.Quality)
	if cfg.RareRegion != nil {
		r := vision.ScaleRect(*cfg.RareRegion, factor)
		rare.Region, quality.Region = &r, &r
	}

	return pull.Plan{
		Draw:               step("draw", cfg.Draw, th.Draw),
		Confirm:            step("confirm", cfg.Confirm, th.Confirm),
		Next:               step("next", cfg.Next, th.Next),
		Rare:               rare,
		Quality:            quality,
		DrawMode:           drawMode(cfg.DrawMode),
		StopCount:          cfg.StopCount,
		ScreenshotCount:    cfg.ScreenshotCount,
		QualityTarget:      cfg.QualityTarget,
		ROISize:            vision.ScaleLength(cfg.ROISize, factor),
		MaxCycles:          cfg.MaxCycles,
		MaxDismissAttempts: cfg.MaxDismissAttempts,
		Debug:              cfg.Debug,
	}
}

func drawMode(m string) string {
	switch m {
	case config.DrawOnce:
		return pull.DrawOnce
	case config.DrawWait:
		return pull.DrawWait
	default:
		return pull.DrawRepeat
	}
}

// templateNames lists every template the plan may request, without duplicates.
func templateNames(p pull.Plan) []string {
	seen := map[string]bool{}
	var names []string
	for _, s := range []pull.Step{p.Draw, p.Confirm, p.Next, p.Rare, p.Quality} {
		for _, n := range s.Templates {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	return names
}

