// internal/humanoid/mouse.go
package humanoid

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

// ClickPoint picks a uniformly random pixel inside r, keeping ClickMargin
// pixels away from every border. Elements too small for the margin are
// clicked at their center.
func (h *Humanoid) ClickPoint(r schemas.Rect) (x, y int) {
	return h.pick(r.Left, r.Right), h.pick(r.Top, r.Bottom)
}

// pick chooses a value in [lo+margin, hi-1-margin].
func (h *Humanoid) pick(lo, hi int) int {
	first, last := lo+h.cfg.ClickMargin, hi-1-h.cfg.ClickMargin
	if last < first {
		return (lo + hi) / 2
	}
	return first + h.intn(last-first+1)
}

// Click moves the cursor to a random point inside r (screen coordinates) and
// clicks the left button.
func (h *Humanoid) Click(ctx context.Context, r schemas.Rect) error {
	x, y := h.ClickPoint(r)
	mouse := h.ctl.Mouse()
	if err := mouse.Move(ctx, x, y); err != nil {
		return fmt.Errorf("humanoid: failed to move to (%d, %d): %w", x, y, err)
	}
	if err := mouse.Click(ctx, schemas.MouseLeft); err != nil {
		return fmt.Errorf("humanoid: failed to click at (%d, %d): %w", x, y, err)
	}
	h.logger.Debug("Clicked", zap.Int("x", x), zap.Int("y", y), zap.Stringer("rect", r))
	return nil
}

// ParkCursor moves the cursor to (x, y) so it does not overlap what is going
// to be captured next.
func (h *Humanoid) ParkCursor(ctx context.Context, x, y int) error {
	if err := h.ctl.Mouse().Move(ctx, x, y); err != nil {
		return fmt.Errorf("humanoid: failed to park cursor: %w", err)
	}
	return nil
}
