//go:build !windows

package action

import (
	"errors"
	"fmt"
	"image"
)

var errUnsupported = errors.New("input injection is only implemented on windows")

type noopActuator struct{}

// NewActuator returns an actuator that cannot locate any surface.
func NewActuator() Actuator { return noopActuator{} }

func (noopActuator) LocateSurface(titleHint string) (Surface, error) {
	return Surface{}, fmt.Errorf("%w: %q: %v", ErrTargetSurfaceNotFound, titleHint, errUnsupported)
}

func (noopActuator) BringToFront(Surface) error { return errUnsupported }

func (noopActuator) Bounds(Surface) (image.Rectangle, error) {
	return image.Rectangle{}, fmt.Errorf("%w: %v", ErrTargetSurfaceNotFound, errUnsupported)
}

func (noopActuator) MoveAndClick(image.Point) error { return errUnsupported }
