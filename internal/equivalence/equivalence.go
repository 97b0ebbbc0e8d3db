// Package equivalence decides when two observations are the same application
// state and when the device is too busy for an observation to be trusted.
package equivalence

import (
	"errors"
	"image"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
	"github.com/xkilldash9x/mrmurphy/internal/model"
)

// ErrSizeMismatch is returned when comparing images of different dimensions.
var ErrSizeMismatch = errors.New("images differ in size")

// Tolerance holds the thresholds below which measurements count as equal.
type Tolerance struct {
	// Image is the maximum RMS distance between two window images.
	Image float64
	// Load is the per resource load above which the device is busy.
	Load schemas.Load
	// Coordinates is the pixel slack used to recognise control highlights.
	Coordinates int
}

// DefaultTolerance matches a locally rendered desktop.
func DefaultTolerance() Tolerance {
	return Tolerance{
		Image:       1.0,
		Load:        schemas.Load{CPU: 0.10, Disk: 0.10, Network: 0.10},
		Coordinates: 10,
	}
}

// Engine compares states.
type Engine struct {
	tolerance Tolerance
	logger    *zap.Logger
}

// New creates an Engine with the given tolerance.
func New(tolerance Tolerance, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{tolerance: tolerance, logger: logger.Named("equivalence")}
}

// Tolerance returns the configured thresholds.
func (e *Engine) Tolerance() Tolerance { return e.tolerance }

// Equivalent reports whether a and b are the same state: equal titles, equal
// action multisets and window images closer than the image tolerance.
func (e *Engine) Equivalent(a, b *model.State) bool {
	if a.Window.Title != b.Window.Title {
		return false
	}
	if !SameActions(a.Actions, b.Actions) {
		return false
	}

	distance, err := e.Distance(a.Window.Image, b.Window.Image, ActionRects(a))
	if err != nil {
		e.logger.Debug("Images not comparable", zap.String("title", a.Window.Title), zap.Error(err))
		return false
	}
	e.logger.Debug("Images distance", zap.String("title", a.Window.Title), zap.Float64("distance", distance))
	return distance < e.tolerance.Image
}

// ActionRects returns the areas of s that may show control highlights.
func ActionRects(s *model.State) []schemas.Rect {
	rects := make([]schemas.Rect, len(s.Actions))
	for i, action := range s.Actions {
		rects[i] = action.Rect()
	}
	return rects
}

// Distance computes the RMS distance between two images after suppressing
// highlights on the given action areas. Rects are relative to the image origin.
func (e *Engine) Distance(a, b image.Image, rects []schemas.Rect) (float64, error) {
	if a == nil || b == nil {
		if a == nil && b == nil {
			return 0, nil
		}
		return 0, ErrSizeMismatch
	}
	if a.Bounds().Size() != b.Bounds().Size() {
		return 0, ErrSizeMismatch
	}
	diff := Difference(Grayscale(a), Grayscale(b))
	RemoveHighlights(diff, rects, e.tolerance.Coordinates)
	return RMS(diff), nil
}

// Busy reports whether any load sample exceeds its tolerance.
func (e *Engine) Busy(load schemas.Load) bool {
	tol := e.tolerance.Load
	return load.CPU > tol.CPU || load.Disk > tol.Disk || load.Network > tol.Network
}

// SameActions compares two action lists as multisets.
func SameActions(a, b []model.Action) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, action := range a {
		counts[action.Key()]++
	}
	for _, action := range b {
		k := action.Key()
		if counts[k] == 0 {
			return false
		}
		counts[k]--
	}
	return true
}
