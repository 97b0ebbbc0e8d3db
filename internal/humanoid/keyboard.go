// internal/humanoid/keyboard.go
package humanoid

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

// Hold presses keys in order, runs fn, and releases the pressed keys in
// reverse order. Keys are released on every exit path, including when fn
// panics or a later key fails to go down.
func (h *Humanoid) Hold(ctx context.Context, keys []schemas.Key, fn func(ctx context.Context) error) (err error) {
	kb := h.ctl.Keyboard()
	held := make([]schemas.Key, 0, len(keys))

	defer func() {
		// Release with a context that survives cancellation of the caller.
		releaseCtx := context.WithoutCancel(ctx)
		for i := len(held) - 1; i >= 0; i-- {
			if upErr := kb.Up(releaseCtx, held[i]); upErr != nil {
				h.logger.Warn("Failed to release key", zap.String("key", string(held[i])), zap.Error(upErr))
				err = errors.Join(err, fmt.Errorf("humanoid: failed to release %q: %w", held[i], upErr))
			}
		}
	}()

	for _, key := range keys {
		if err := kb.Down(ctx, key); err != nil {
			return fmt.Errorf("humanoid: failed to hold %q: %w", key, err)
		}
		held = append(held, key)
	}

	return fn(ctx)
}

// SwitchFocus performs the alt+esc gesture that sends the foreground window
// to the back, bringing another one into focus.
func (h *Humanoid) SwitchFocus(ctx context.Context) error {
	h.logger.Debug("Switching focus")
	return h.Hold(ctx, []schemas.Key{schemas.KeyAlt}, func(ctx context.Context) error {
		return h.ctl.Keyboard().Press(ctx, schemas.KeyEscape)
	})
}

// PressRepeated presses key n times.
func (h *Humanoid) PressRepeated(ctx context.Context, key schemas.Key, n int) error {
	kb := h.ctl.Keyboard()
	for i := 0; i < n; i++ {
		if err := kb.Press(ctx, key); err != nil {
			return fmt.Errorf("humanoid: failed to press %q (%d/%d): %w", key, i+1, n, err)
		}
	}
	return nil
}

// Type sends text to the focused element.
func (h *Humanoid) Type(ctx context.Context, text string) error {
	if err := h.ctl.Keyboard().Type(ctx, text); err != nil {
		return fmt.Errorf("humanoid: failed to type: %w", err)
	}
	return nil
}
