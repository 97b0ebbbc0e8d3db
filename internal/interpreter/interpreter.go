// Package interpreter turns raw device feedback into model states.
package interpreter

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
	"github.com/xkilldash9x/mrmurphy/internal/model"
)

// LoadJudge decides whether a load sample makes the device busy.
type LoadJudge interface {
	Busy(load schemas.Load) bool
}

// Interpreter observes the foreground window through a scraper and the
// device feedback channels. It is not safe for concurrent use.
type Interpreter struct {
	ctl      schemas.Controller
	feedback schemas.Feedback
	scraper  schemas.WindowScraper
	judge    LoadJudge
	logger   *zap.Logger

	screen image.Rectangle
}

// New creates an Interpreter.
func New(ctl schemas.Controller, feedback schemas.Feedback, scraper schemas.WindowScraper, judge LoadJudge, logger *zap.Logger) *Interpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interpreter{
		ctl:      ctl,
		feedback: feedback,
		scraper:  scraper,
		judge:    judge,
		logger:   logger.Named("interpreter"),
	}
}

// InterpretState captures the current state. The order of the calls
// matters: the cursor is moved out of the way first, the load is sampled
// before the scrape disturbs it, and the screenshot is taken last.
func (i *Interpreter) InterpretState(ctx context.Context) (*model.State, error) {
	if err := i.parkCursor(ctx); err != nil {
		return nil, err
	}

	load, err := i.feedback.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sample device load: %w", err)
	}
	window, err := i.scraper.ScrapeWindow(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape window: %w", err)
	}
	shot, err := i.feedback.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screen: %w", err)
	}

	area := window.Rect.Image().Intersect(shot.Bounds())
	if area.Empty() {
		return nil, fmt.Errorf("%w: window %s lies outside the screen", schemas.ErrWindowNotFound, window.Rect)
	}

	busy := i.judge.Busy(load)
	i.logger.Info("Load",
		zap.Float64("cpu", load.CPU),
		zap.Float64("disk", load.Disk),
		zap.Float64("network", load.Network),
		zap.Bool("busy", busy))

	return model.NewState(window, model.Crop(shot, area), load, busy), nil
}

// parkCursor moves the cursor to the bottom right corner of the screen. The
// screen size is learnt from the first screenshot.
func (i *Interpreter) parkCursor(ctx context.Context) error {
	if i.screen.Empty() {
		shot, err := i.feedback.Screenshot(ctx)
		if err != nil {
			return fmt.Errorf("failed to measure screen: %w", err)
		}
		i.screen = shot.Bounds()
	}
	if err := i.ctl.Mouse().Move(ctx, i.screen.Max.X-1, i.screen.Max.Y-1); err != nil {
		return fmt.Errorf("failed to park cursor: %w", err)
	}
	return nil
}
