package action

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/soocke/pull-bot-go/domain/cancel"
)

// ErrTargetSurfaceNotFound reports that no window matched the title hint, or
// that the matched window has no usable area.
var ErrTargetSurfaceNotFound = errors.New("target surface not found")

// Surface identifies the target window.
type Surface struct {
	Handle uintptr
	Title  string
	Bounds image.Rectangle // client area in screen coordinates
}

// Actuator is the physical input and window-focus capability.
type Actuator interface {
	LocateSurface(titleHint string) (Surface, error)
	BringToFront(s Surface) error
	Bounds(s Surface) (image.Rectangle, error)
	MoveAndClick(p image.Point) error
}

// Dispatcher turns matched frame locations into clicks on the surface.
type Dispatcher struct {
	act    Actuator
	origin image.Point
	settle time.Duration
	token  *cancel.Token
	logger *slog.Logger
}

// NewDispatcher builds a dispatcher clicking relative to the surface origin
// and waiting settle after every click.
func NewDispatcher(act Actuator, surface Surface, settle time.Duration, token *cancel.Token, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{act: act, origin: surface.Bounds.Min, settle: settle, token: token, logger: logger}
}

// ClickAt clicks the frame point p once and then settles. The settle wait
// returns cancel.ErrCancelled as soon as the token fires.
func (d *Dispatcher) ClickAt(p image.Point) error {
	if err := d.token.Err(); err != nil {
		return err
	}
	screen := p.Add(d.origin)
	if err := d.act.MoveAndClick(screen); err != nil {
		return fmt.Errorf("click at %v: %w", screen, err)
	}
	if d.logger != nil {
		d.logger.Debug("click", "frame", p, "screen", screen)
	}
	return d.Settle()
}

// Settle waits the settle delay, interruptible by cancellation.
func (d *Dispatcher) Settle() error { return d.token.Sleep(d.settle) }
