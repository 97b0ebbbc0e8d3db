// Package scoring ranks the actions of a state and picks the next one to try.
package scoring

import (
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
	"github.com/xkilldash9x/mrmurphy/internal/model"
)

const (
	DefaultScore     = 2
	GraylistedScore  = 0
	BlacklistedScore = -10

	TopScore         = -1
	BottomScore      = 1
	BottomRightScore = 2
)

// Heuristic computes the initial score of an action.
type Heuristic struct {
	// Default is the base score of every action.
	Default int
	// Labels enables the label policy when non nil.
	Labels *Labels
	// Position enables the position policy.
	Position bool
}

// Plain scores every action with base.
func Plain(base int) Heuristic {
	return Heuristic{Default: base}
}

// Installer favors confirmation buttons in the lower right corner and avoids
// navigation labels.
func Installer(base int, labels Labels) Heuristic {
	return Heuristic{Default: base, Labels: &labels, Position: true}
}

// Evaluate returns the initial score of a located in window. Blacklisted
// actions get BlacklistedScore plus the position score; graylisted actions
// get exactly GraylistedScore.
func (h Heuristic) Evaluate(a model.Action, window schemas.Rect) int {
	score := h.Default
	if h.Labels != nil {
		switch {
		case h.Labels.Blacklisted(a.Text()):
			score = BlacklistedScore
		case h.Labels.Graylisted(a.Text()):
			return GraylistedScore
		}
	}
	if h.Position {
		score += PositionScore(a.Rect(), window)
	}
	return score
}

// PositionScore compares an action rectangle, relative to its window, with
// the window midpoint.
func PositionScore(action, window schemas.Rect) int {
	cx, cy := window.Width()/2, window.Height()/2
	switch {
	case action.Left > cx && action.Top > cy:
		return BottomRightScore
	case action.Bottom > cy:
		return BottomScore
	case action.Bottom < cy:
		return TopScore
	default:
		return 0
	}
}

// Scorer filters the actions of a state by kind, scores them lazily and
// selects among the eligible ones.
type Scorer struct {
	heuristic Heuristic
	kinds     []model.Kind

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Scorer for actions of the given kinds. A time seeded source is
// used when rng is nil.
func New(h Heuristic, kinds []model.Kind, rng *rand.Rand) *Scorer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Scorer{heuristic: h, kinds: kinds, rng: rng}
}

// Accepts reports whether the scorer considers actions of a's kind.
func (s *Scorer) Accepts(a model.Action) bool {
	return slices.Contains(s.kinds, a.Kind())
}

// Candidates returns the actions of state with a positive score, assigning
// initial scores to actions seen for the first time.
func (s *Scorer) Candidates(state *model.State) []model.Action {
	var out []model.Action
	for _, a := range state.Actions {
		if !s.Accepts(a) {
			continue
		}
		a.InitScore(s.heuristic.Evaluate(a, state.Window.Rect))
		if score, _ := a.Score(); score > 0 {
			out = append(out, a)
		}
	}
	return out
}

// Choose picks the highest scored candidate of state, choosing uniformly among
// ties, and lowers its score by one. It returns false when no action is
// eligible.
func (s *Scorer) Choose(state *model.State) (model.Action, bool) {
	candidates := s.Candidates(state)
	if len(candidates) == 0 {
		return nil, false
	}

	best, _ := candidates[0].Score()
	var ties []model.Action
	for _, a := range candidates {
		score, _ := a.Score()
		switch {
		case score > best:
			best, ties = score, []model.Action{a}
		case score == best:
			ties = append(ties, a)
		}
	}

	s.mu.Lock()
	chosen := ties[s.rng.Intn(len(ties))]
	s.mu.Unlock()

	chosen.DecrementScore()
	return chosen, true
}
