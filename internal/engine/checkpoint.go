package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

var (
	// ErrAlreadySaved is returned when saving a second initial snapshot.
	ErrAlreadySaved = errors.New("state already saved")
	// ErrNotSaved is returned when restoring before any snapshot was saved.
	ErrNotSaved = errors.New("state was not saved")
)

// Checkpoint owns the initial device snapshot of a session.
type Checkpoint struct {
	device schemas.DeviceState
	logger *zap.Logger

	token schemas.SnapshotToken
	saved bool
	taken []schemas.SnapshotToken
}

// NewCheckpoint wraps a device state handle.
func NewCheckpoint(device schemas.DeviceState, logger *zap.Logger) *Checkpoint {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checkpoint{device: device, logger: logger.Named("checkpoint")}
}

// Saved reports whether the initial snapshot exists.
func (c *Checkpoint) Saved() bool { return c.saved }

// Save snapshots the device. It can succeed only once per session.
func (c *Checkpoint) Save(ctx context.Context) (schemas.SnapshotToken, error) {
	if c.saved {
		return "", ErrAlreadySaved
	}
	token, err := c.device.Save(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to save device state: %w", err)
	}
	c.token, c.saved = token, true
	c.taken = append(c.taken, token)
	c.logger.Info("State saved", zap.String("token", string(token)))
	return token, nil
}

// Restore brings the device back to the saved snapshot.
func (c *Checkpoint) Restore(ctx context.Context) error {
	if !c.saved {
		return ErrNotSaved
	}
	if err := c.device.Restore(ctx, c.token); err != nil {
		return fmt.Errorf("failed to restore device state: %w", err)
	}
	c.logger.Info("State restored", zap.String("token", string(c.token)))
	return nil
}

// Close restores the initial snapshot, if any, and discards every snapshot
// taken by the session. It attempts every step even if one fails.
func (c *Checkpoint) Close(ctx context.Context) error {
	var errs []error
	if c.saved {
		errs = append(errs, c.Restore(ctx))
	}
	for _, token := range c.taken {
		if err := c.device.Discard(ctx, token); err != nil {
			errs = append(errs, fmt.Errorf("failed to discard snapshot %s: %w", token, err))
		}
	}
	c.taken = nil
	c.saved = false
	return errors.Join(errs...)
}
