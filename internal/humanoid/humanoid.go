// internal/humanoid/humanoid.go
package humanoid

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

// Config tunes the input helpers.
type Config struct {
	// Rng drives click point selection. A time seeded source is used when nil.
	Rng *rand.Rand
	// ClickMargin keeps clicks this many pixels away from an element's border.
	ClickMargin int
}

// DefaultConfig returns the settings used by the exploration engine.
func DefaultConfig() Config {
	return Config{ClickMargin: 1}
}

// Humanoid wraps a device Controller with the composite gestures used while
// exploring: clicking inside an element, parking the cursor, holding keys.
type Humanoid struct {
	ctl    schemas.Controller
	cfg    Config
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Humanoid driving the given controller.
func New(ctl schemas.Controller, config Config, logger *zap.Logger) *Humanoid {
	if logger == nil {
		logger = zap.NewNop()
	}
	rng := config.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if config.ClickMargin < 0 {
		config.ClickMargin = 0
	}
	return &Humanoid{
		ctl:    ctl,
		cfg:    config,
		logger: logger.Named("humanoid"),
		rng:    rng,
	}
}

// Controller returns the underlying device controller.
func (h *Humanoid) Controller() schemas.Controller {
	return h.ctl
}

// intn is rng.Intn guarded for concurrent callers.
func (h *Humanoid) intn(n int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Intn(n)
}
