package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

// keyNames maps device keys to DOM key values.
var keyNames = map[schemas.Key]string{
	schemas.KeyAlt:    "Alt",
	schemas.KeyCtrl:   "Control",
	schemas.KeyShift:  "Shift",
	schemas.KeyEscape: "Escape",
	schemas.KeyReturn: "Enter",
	schemas.KeyTab:    "Tab",
	schemas.KeyUp:     "ArrowUp",
	schemas.KeyDown:   "ArrowDown",
}

var modifierBits = map[schemas.Key]input.Modifier{
	schemas.KeyAlt:   input.ModifierAlt,
	schemas.KeyCtrl:  input.ModifierCtrl,
	schemas.KeyShift: input.ModifierShift,
}

func keyName(key schemas.Key) string {
	if name, ok := keyNames[key]; ok {
		return name
	}
	return string(key)
}

func cdpButton(button schemas.MouseButton) input.MouseButton {
	switch button {
	case schemas.MouseRight:
		return input.Right
	case schemas.MouseMiddle:
		return input.Middle
	default:
		return input.Left
	}
}

// -- Mouse --

// Move moves the pointer to (x, y) in viewport coordinates.
func (d *Device) Move(ctx context.Context, x, y int) error {
	fx, fy := float64(x), float64(y)
	if err := d.run(ctx, input.DispatchMouseEvent(input.MouseMoved, fx, fy).WithModifiers(d.modifiers())); err != nil {
		return fmt.Errorf("failed to move mouse: %w", err)
	}
	d.mu.Lock()
	d.x, d.y = fx, fy
	d.mu.Unlock()
	return nil
}

// Click presses and releases button at the pointer position.
func (d *Device) Click(ctx context.Context, button schemas.MouseButton) error {
	d.mu.Lock()
	x, y := d.x, d.y
	d.mu.Unlock()
	b, mods := cdpButton(button), d.modifiers()
	err := d.run(ctx,
		input.DispatchMouseEvent(input.MousePressed, x, y).WithButton(b).WithClickCount(1).WithModifiers(mods),
		input.DispatchMouseEvent(input.MouseReleased, x, y).WithButton(b).WithClickCount(1).WithModifiers(mods),
	)
	if err != nil {
		return fmt.Errorf("failed to click: %w", err)
	}
	return nil
}

// -- Keyboard --

func (d *Device) modifiers() input.Modifier {
	d.mu.Lock()
	defer d.mu.Unlock()
	var mods input.Modifier
	for key := range d.held {
		mods |= modifierBits[key]
	}
	return mods
}

// Press presses and releases key.
func (d *Device) Press(ctx context.Context, key schemas.Key) error {
	name, mods := keyName(key), d.modifiers()
	err := d.run(ctx,
		input.DispatchKeyEvent(input.KeyDown).WithKey(name).WithModifiers(mods),
		input.DispatchKeyEvent(input.KeyUp).WithKey(name).WithModifiers(mods),
	)
	if err != nil {
		return fmt.Errorf("failed to press %q: %w", key, err)
	}
	return nil
}

// Type sends text as individual key strokes.
func (d *Device) Type(ctx context.Context, text string) error {
	if err := d.run(ctx, chromedp.KeyEvent(text)); err != nil {
		return fmt.Errorf("failed to type: %w", err)
	}
	return nil
}

// Down holds key until Up is called.
func (d *Device) Down(ctx context.Context, key schemas.Key) error {
	d.mu.Lock()
	d.held[key] = true
	d.mu.Unlock()
	if err := d.run(ctx, input.DispatchKeyEvent(input.KeyDown).WithKey(keyName(key)).WithModifiers(d.modifiers())); err != nil {
		d.mu.Lock()
		delete(d.held, key)
		d.mu.Unlock()
		return fmt.Errorf("failed to hold %q: %w", key, err)
	}
	return nil
}

// Up releases a held key.
func (d *Device) Up(ctx context.Context, key schemas.Key) error {
	d.mu.Lock()
	delete(d.held, key)
	d.mu.Unlock()
	if err := d.run(ctx, input.DispatchKeyEvent(input.KeyUp).WithKey(keyName(key)).WithModifiers(d.modifiers())); err != nil {
		return fmt.Errorf("failed to release %q: %w", key, err)
	}
	return nil
}
