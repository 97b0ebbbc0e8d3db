package schemas

import (
	"context"
	"errors"
	"image"
)

// -- Device Control Interfaces --

// MouseButton identifies a mouse button.
type MouseButton string

const (
	MouseLeft   MouseButton = "left"
	MouseRight  MouseButton = "right"
	MouseMiddle MouseButton = "middle"
)

// Key names a keyboard key. Printable characters are passed as themselves.
type Key string

const (
	KeyAlt    Key = "alt"
	KeyCtrl   Key = "ctrl"
	KeyShift  Key = "shift"
	KeyEscape Key = "esc"
	KeyReturn Key = "return"
	KeyTab    Key = "tab"
	KeyUp     Key = "up"
	KeyDown   Key = "down"
)

// Mouse moves the pointer in absolute screen coordinates and clicks at the
// current pointer position.
type Mouse interface {
	Move(ctx context.Context, x, y int) error
	Click(ctx context.Context, button MouseButton) error
}

// Keyboard injects key events into the device.
type Keyboard interface {
	// Press presses and releases a single key.
	Press(ctx context.Context, key Key) error
	// Type sends the given text one character at a time.
	Type(ctx context.Context, text string) error
	// Down and Up hold and release a key. Callers must pair them.
	Down(ctx context.Context, key Key) error
	Up(ctx context.Context, key Key) error
}

// SnapshotToken is an opaque handle to a saved device state.
type SnapshotToken string

// DeviceState saves and restores whole-device snapshots.
type DeviceState interface {
	Save(ctx context.Context) (SnapshotToken, error)
	Restore(ctx context.Context, token SnapshotToken) error
	// Discard releases a snapshot taken during the session.
	Discard(ctx context.Context, token SnapshotToken) error
}

// Controller groups the input and state handles of a single device.
type Controller interface {
	Mouse() Mouse
	Keyboard() Keyboard
	State() DeviceState
}

// -- Feedback Interfaces --

// Load holds device load samples normalized to 0.0 - 1.0.
type Load struct {
	CPU     float64 `json:"cpu"`
	Disk    float64 `json:"disk"`
	Network float64 `json:"network"`
}

// Feedback exposes what the device currently shows and how loaded it is.
type Feedback interface {
	// Screenshot captures the full screen.
	Screenshot(ctx context.Context) (image.Image, error)
	// Load samples the current device load.
	Load(ctx context.Context) (Load, error)
}

// ErrWindowNotFound is returned by scrapers when no foreground window exists.
var ErrWindowNotFound = errors.New("no foreground window found")

// WindowScraper turns the live foreground window into a structured tree.
type WindowScraper interface {
	ScrapeWindow(ctx context.Context) (ScrapedWindow, error)
}
