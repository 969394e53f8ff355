//go:build windows

package action

import (
	"fmt"
	"image"
	"strings"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	mouseeventfLeftDown = 0x0002
	mouseeventfLeftUp   = 0x0004
	swRestore           = 9
)

var (
	user32              = windows.NewLazySystemDLL("user32.dll")
	procEnumWindows     = user32.NewProc("EnumWindows")
	procGetWindowTextW  = user32.NewProc("GetWindowTextW")
	procIsWindowVisible = user32.NewProc("IsWindowVisible")
	procIsIconic        = user32.NewProc("IsIconic")
	procShowWindow      = user32.NewProc("ShowWindow")
	procSetForeground   = user32.NewProc("SetForegroundWindow")
	procGetClientRect   = user32.NewProc("GetClientRect")
	procClientToScreen  = user32.NewProc("ClientToScreen")
	procSetCursorPos    = user32.NewProc("SetCursorPos")
	procMouseEvent      = user32.NewProc("mouse_event")
	procIsWindow        = user32.NewProc("IsWindow")
)

type rect struct{ Left, Top, Right, Bottom int32 }

type point struct{ X, Y int32 }

type winActuator struct{}

// NewActuator returns the Win32 actuator.
func NewActuator() Actuator { return winActuator{} }

// LocateSurface returns the first visible top-level window whose title
// contains titleHint, compared case-insensitively.
func (winActuator) LocateSurface(titleHint string) (Surface, error) {
	hint := strings.ToLower(strings.TrimSpace(titleHint))
	var found Surface
	cb := windows.NewCallback(func(hwnd uintptr, lparam uintptr) uintptr {
		vis, _, _ := procIsWindowVisible.Call(hwnd)
		if vis == 0 {
			return 1 // continue
		}
		title := windowTitle(hwnd)
		if title == "" || !strings.Contains(strings.ToLower(title), hint) {
			return 1
		}
		found = Surface{Handle: hwnd, Title: title}
		return 0 // stop enumeration
	})
	_, _, _ = procEnumWindows.Call(cb, 0)
	if found.Handle == 0 {
		return Surface{}, fmt.Errorf("%w: no window titled %q", ErrTargetSurfaceNotFound, titleHint)
	}
	b, err := winActuator{}.Bounds(found)
	if err != nil {
		return Surface{}, err
	}
	found.Bounds = b
	return found, nil
}

func windowTitle(hwnd uintptr) string {
	const maxChars = 256
	buf := make([]uint16, maxChars)
	r, _, _ := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if r == 0 {
		return ""
	}
	return strings.TrimSpace(windows.UTF16ToString(buf[:r]))
}

// BringToFront restores a minimized window and makes it the foreground window.
func (winActuator) BringToFront(s Surface) error {
	if ok, _, _ := procIsWindow.Call(s.Handle); ok == 0 {
		return fmt.Errorf("%w: handle %#x is gone", ErrTargetSurfaceNotFound, s.Handle)
	}
	if iconic, _, _ := procIsIconic.Call(s.Handle); iconic != 0 {
		_, _, _ = procShowWindow.Call(s.Handle, swRestore)
	}
	_, _, _ = procSetForeground.Call(s.Handle)
	// give the window manager a moment to repaint before the first capture
	time.Sleep(100 * time.Millisecond)
	return nil
}

// Bounds returns the client area in screen coordinates.
func (winActuator) Bounds(s Surface) (image.Rectangle, error) {
	var r rect
	if ok, _, err := procGetClientRect.Call(s.Handle, uintptr(unsafe.Pointer(&r))); ok == 0 {
		return image.Rectangle{}, fmt.Errorf("%w: GetClientRect: %v", ErrTargetSurfaceNotFound, err)
	}
	var origin point
	if ok, _, err := procClientToScreen.Call(s.Handle, uintptr(unsafe.Pointer(&origin))); ok == 0 {
		return image.Rectangle{}, fmt.Errorf("%w: ClientToScreen: %v", ErrTargetSurfaceNotFound, err)
	}
	tl := image.Pt(int(origin.X), int(origin.Y))
	return image.Rectangle{Min: tl, Max: tl.Add(image.Pt(int(r.Right-r.Left), int(r.Bottom-r.Top)))}, nil
}

// MoveAndClick moves the pointer to p (screen coordinates) and sends one
// left click.
func (winActuator) MoveAndClick(p image.Point) error {
	if ok, _, err := procSetCursorPos.Call(uintptr(int32(p.X)), uintptr(int32(p.Y))); ok == 0 {
		return fmt.Errorf("SetCursorPos: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	_, _, _ = procMouseEvent.Call(mouseeventfLeftDown, 0, 0, 0, 0)
	time.Sleep(30 * time.Millisecond)
	_, _, _ = procMouseEvent.Call(mouseeventfLeftUp, 0, 0, 0, 0)
	return nil
}
