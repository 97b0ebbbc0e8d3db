// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
	"github.com/xkilldash9x/mrmurphy/internal/events"
	"github.com/xkilldash9x/mrmurphy/internal/humanoid"
	"github.com/xkilldash9x/mrmurphy/internal/journal"
	"github.com/xkilldash9x/mrmurphy/internal/model"
	"github.com/xkilldash9x/mrmurphy/internal/scoring"
)

// ErrMaxDepthReached signals that the current node sits at the configured
// maximum depth and the device was reset. It never escapes Run.
var ErrMaxDepthReached = errors.New("max depth reached")

var errUnreachable = errors.New("node unreachable from the initial node")

// Interpreter produces the observed state of the device under exploration.
type Interpreter interface {
	InterpretState(ctx context.Context) (*model.State, error)
}

// Phase is the position of the engine in its state machine.
type Phase int

const (
	PhaseRunning Phase = iota
	PhaseResetPending
	PhaseWaitingFocus
	PhaseWaitingBusy
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "RUNNING"
	case PhaseResetPending:
		return "RESET-PENDING"
	case PhaseWaitingFocus:
		return "WAITING-FOCUS"
	case PhaseWaitingBusy:
		return "WAITING-BUSY"
	case PhaseDone:
		return "DONE"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Session end reasons.
const (
	ReasonExhausted = "exhausted"
	ReasonTimeout   = "timeout"
	ReasonCancelled = "cancelled"
	ReasonFailed    = "failed"
)

// Config tunes a session. Zero values fall back to the policy defaults.
type Config struct {
	SessionID string
	// Timeout bounds the whole session. Zero means no deadline.
	Timeout      time.Duration
	Frequency    time.Duration
	MaxDepth     int
	FocusTimeout time.Duration
	BusyTimeout  time.Duration
	// RenderFormat re-renders the journal after every update when set.
	RenderFormat string
	// Seed makes action selection and click points reproducible. Zero seeds
	// from the clock.
	Seed int64
}

func (c Config) withDefaults(p Policy) Config {
	if c.SessionID == "" {
		c.SessionID = uuid.NewString()
	}
	if c.Frequency <= 0 {
		c.Frequency = p.Frequency
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = p.MaxDepth
	}
	if c.FocusTimeout <= 0 {
		c.FocusTimeout = p.FocusTimeout
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = p.BusyTimeout
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	return c
}

// Dependencies are the collaborators of an Engine. Publisher and Clock are
// optional.
type Dependencies struct {
	Journal     *journal.Journal
	Interpreter Interpreter
	Controller  schemas.Controller
	Publisher   events.Publisher
	Clock       Clock
}

// Result summarizes a finished session.
type Result struct {
	SessionID string
	Policy    string
	Reason    string
	Nodes     int
	Edges     int
	Resets    int
	Actions   int
	Duration  time.Duration
}

// Status is a point in time view of a running session, safe to read from
// other goroutines.
type Status struct {
	SessionID string    `json:"session_id"`
	Policy    string    `json:"policy"`
	Phase     string    `json:"phase"`
	Current   int       `json:"current"`
	Nodes     int       `json:"nodes"`
	Edges     int       `json:"edges"`
	Resets    int       `json:"resets"`
	Actions   int       `json:"actions"`
	Started   time.Time `json:"started"`
}

// Engine explores an application by repeatedly observing it, placing the
// observation in the journal and performing the best scored action. One
// Engine runs one session on one device; it is not reentrant.
type Engine struct {
	policy     Policy
	cfg        Config
	journal    *journal.Journal
	interp     Interpreter
	human      *humanoid.Humanoid
	scorer     *scoring.Scorer
	checkpoint *Checkpoint
	publisher  events.Publisher
	clock      Clock
	logger     *zap.Logger

	phase      Phase
	pending    model.Action
	resetted   bool
	stallStart time.Time
	reason     string
	resets     int
	actions    int

	statusMu sync.RWMutex
	status   Status
}

// New wires an Engine for the given policy.
func New(policy Policy, cfg Config, deps Dependencies, logger *zap.Logger) (*Engine, error) {
	if deps.Journal == nil {
		return nil, errors.New("journal cannot be nil")
	}
	if deps.Interpreter == nil {
		return nil, errors.New("interpreter cannot be nil")
	}
	if deps.Controller == nil {
		return nil, errors.New("controller cannot be nil")
	}
	if policy.OutOfFocus == nil {
		return nil, fmt.Errorf("policy %q has no focus predicate", policy.Name)
	}
	for _, kind := range policy.Kinds {
		// Choose spends a unit of score, so every candidate must be
		// performable by act.
		if kind != model.KindButton && kind != model.KindLink {
			return nil, fmt.Errorf("policy %q selects %s actions, which cannot be performed by a click", policy.Name, kind)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Publisher == nil {
		deps.Publisher = &events.NoopPublisher{}
	}
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}

	cfg = cfg.withDefaults(policy)
	logger = logger.Named("engine").With(zap.String("session_id", cfg.SessionID), zap.String("policy", policy.Name))

	scorerRng := rand.New(rand.NewSource(cfg.Seed))
	clickRng := rand.New(rand.NewSource(cfg.Seed + 1))

	return &Engine{
		policy:     policy,
		cfg:        cfg,
		journal:    deps.Journal,
		interp:     deps.Interpreter,
		human:      humanoid.New(deps.Controller, humanoid.Config{Rng: clickRng, ClickMargin: 1}, logger),
		scorer:     scoring.New(policy.Heuristic, policy.Kinds, scorerRng),
		checkpoint: NewCheckpoint(deps.Controller.State(), logger),
		publisher:  deps.Publisher,
		clock:      deps.Clock,
		logger:     logger,
		status:     Status{SessionID: cfg.SessionID, Policy: policy.Name, Current: -1},
	}, nil
}

// SessionID identifies the session in logs and events.
func (e *Engine) SessionID() string { return e.cfg.SessionID }

// Phase returns the current state machine phase.
func (e *Engine) Phase() Phase { return e.phase }

// Status returns a snapshot of the session progress.
func (e *Engine) Status() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

func (e *Engine) refreshStatus() {
	current := -1
	if n := e.journal.Current(); n != nil {
		current = n.Index
	}
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	e.status.Phase = e.phase.String()
	e.status.Current = current
	e.status.Nodes = e.journal.Len()
	e.status.Edges = e.journal.EdgeCount()
	e.status.Resets = e.resets
	e.status.Actions = e.actions
}

// Run drives the exploration until the graph is exhausted, the session
// timeout expires or ctx is cancelled. Whatever the outcome, the device is
// restored to its initial snapshot and every snapshot taken is discarded
// before Run returns, including when a tick panics.
func (e *Engine) Run(ctx context.Context) (result Result, err error) {
	start := e.clock.Now()
	e.statusMu.Lock()
	e.status.Started = start
	e.statusMu.Unlock()

	e.logger.Info("Starting exploration",
		zap.Duration("timeout", e.cfg.Timeout),
		zap.Duration("frequency", e.cfg.Frequency),
		zap.Int("max_depth", e.cfg.MaxDepth))

	defer func() {
		r := recover()
		if r != nil {
			e.reason = ReasonFailed
		}
		cleanupCtx := context.WithoutCancel(ctx)
		if cerr := e.checkpoint.Close(cleanupCtx); cerr != nil {
			e.logger.Error("Failed to clean up device state", zap.Error(cerr))
			err = errors.Join(err, cerr)
		}
		if derr := e.journal.Dump(false); derr != nil {
			e.logger.Warn("Failed to dump journal", zap.Error(derr))
		}
		if r != nil {
			panic(r)
		}
		result = e.finish(cleanupCtx, start)
	}()

	for {
		if ctx.Err() != nil {
			e.reason = ReasonCancelled
			return result, ctx.Err()
		}
		if e.cfg.Timeout > 0 && e.clock.Now().Sub(start) >= e.cfg.Timeout {
			e.logger.Info("Exploration timed out")
			e.reason = ReasonTimeout
			return result, nil
		}
		if err := e.clock.Sleep(ctx, e.cfg.Frequency); err != nil {
			e.reason = ReasonCancelled
			return result, err
		}
		done, err := e.Tick(ctx)
		if err != nil {
			e.reason = ReasonFailed
			e.logger.Error("Exploration aborted", zap.Error(err))
			return result, err
		}
		if done {
			return result, nil
		}
	}
}

func (e *Engine) finish(ctx context.Context, start time.Time) Result {
	res := Result{
		SessionID: e.cfg.SessionID,
		Policy:    e.policy.Name,
		Reason:    e.reason,
		Nodes:     e.journal.Len(),
		Edges:     e.journal.EdgeCount(),
		Resets:    e.resets,
		Actions:   e.actions,
		Duration:  e.clock.Now().Sub(start),
	}
	e.publish(ctx, schemas.TopicSessionFinished, schemas.SessionEvent{
		SessionID: res.SessionID,
		Policy:    res.Policy,
		Reason:    res.Reason,
		Nodes:     res.Nodes,
		Edges:     res.Edges,
		Resets:    res.Resets,
		Actions:   res.Actions,
		Duration:  res.Duration,
		Timestamp: e.clock.Now(),
	})
	e.logger.Info("Exploration finished",
		zap.String("reason", res.Reason),
		zap.Int("nodes", res.Nodes),
		zap.Int("edges", res.Edges),
		zap.Int("resets", res.Resets),
		zap.Duration("duration", res.Duration))
	return res
}

// Tick runs one iteration of the state machine. It reports true once the
// exploration is exhausted. Returned errors are fatal to the session.
func (e *Engine) Tick(ctx context.Context) (bool, error) {
	defer e.refreshStatus()
	if e.phase == PhaseDone {
		return true, nil
	}

	var node *journal.Node
	if e.resetted {
		// The restore may not have settled yet; trust the snapshot instead
		// of observing.
		e.resetted = false
		node = e.journal.Initial()
	} else {
		state, err := e.interp.InterpretState(ctx)
		if err != nil {
			e.logger.Warn("Failed to interpret state", zap.Error(err))
			e.switchFocus(ctx)
			return false, e.stall(ctx, PhaseWaitingFocus)
		}
		node = e.locate(ctx, state)
		if node == nil {
			return false, e.handleFiltered(ctx, state)
		}
	}

	e.clearStall()
	e.phase = PhaseRunning
	if err := e.updateJournal(ctx, node); err != nil {
		if errors.Is(err, ErrMaxDepthReached) || errors.Is(err, errUnreachable) {
			return false, nil
		}
		return false, err
	}
	return e.act(ctx, node)
}

// locate finds the node of state, creating it when state is usable. It
// returns nil for filtered observations.
func (e *Engine) locate(ctx context.Context, state *model.State) *journal.Node {
	if n := e.journal.FindNode(state); n != nil {
		e.logger.Info("Old node", zap.Stringer("node", n))
		return n
	}
	if e.filtered(state) {
		return nil
	}
	n := e.journal.NewNode(state)
	e.logger.Info("New node", zap.Stringer("node", n), zap.Int("actions", len(state.Actions)))
	e.publish(ctx, schemas.TopicNodeDiscovered, schemas.NodeEvent{
		SessionID: e.cfg.SessionID,
		Index:     n.Index,
		Title:     state.Window.Title,
		Actions:   len(state.Actions),
		Timestamp: e.clock.Now(),
	})
	return n
}

func (e *Engine) filtered(state *model.State) bool {
	return e.policy.OutOfFocus(state) || (e.policy.WaitBusy && state.Busy)
}

func (e *Engine) handleFiltered(ctx context.Context, state *model.State) error {
	if e.policy.WaitBusy && state.Busy && !e.policy.OutOfFocus(state) {
		e.logger.Info("Device busy, waiting", zap.String("title", state.Window.Title))
		return e.stall(ctx, PhaseWaitingBusy)
	}
	e.logger.Info("Window out of focus", zap.String("title", state.Window.Title))
	e.switchFocus(ctx)
	return e.stall(ctx, PhaseWaitingFocus)
}

func (e *Engine) switchFocus(ctx context.Context) {
	if err := e.human.SwitchFocus(ctx); err != nil {
		e.logger.Warn("Failed to switch focus", zap.Error(err))
	}
}

// stall tracks how long the engine has been stuck in phase and resets the
// device once the matching timeout has elapsed.
func (e *Engine) stall(ctx context.Context, phase Phase) error {
	now := e.clock.Now()
	if e.phase != phase || e.stallStart.IsZero() {
		e.phase = phase
		e.stallStart = now
		return nil
	}

	timeout := e.cfg.FocusTimeout
	if phase == PhaseWaitingBusy {
		timeout = e.cfg.BusyTimeout
	}
	waited := now.Sub(e.stallStart)
	if waited <= timeout {
		return nil
	}
	e.logger.Warn("Stall timed out", zap.Stringer("phase", phase), zap.Duration("waited", waited))
	return e.reset(ctx, fmt.Sprintf("%s timeout", phase))
}

func (e *Engine) clearStall() {
	e.stallStart = time.Time{}
}

// updateJournal commits the pending action, moves the cursor to node,
// persists the graph and enforces the maximum depth.
func (e *Engine) updateJournal(ctx context.Context, node *journal.Node) error {
	if !e.checkpoint.Saved() {
		token, err := e.checkpoint.Save(ctx)
		if err != nil {
			return err
		}
		e.journal.Initial().State.SetSnapshot(token)
	} else if prev := e.journal.Current(); e.pending != nil && prev != nil {
		e.commit(ctx, prev, node)
	}
	e.pending = nil
	e.journal.SetCurrent(node)
	e.persist(ctx)

	depth, err := e.journal.Distance(e.journal.Initial(), node)
	if err != nil {
		e.logger.Warn("Current node unreachable from the initial node", zap.Stringer("node", node), zap.Error(err))
		if rerr := e.reset(ctx, "unreachable"); rerr != nil {
			return rerr
		}
		return errUnreachable
	}
	if depth >= e.cfg.MaxDepth {
		e.logger.Info("Max depth reached", zap.Stringer("node", node), zap.Int("depth", depth))
		if rerr := e.reset(ctx, "max depth"); rerr != nil {
			return rerr
		}
		return ErrMaxDepthReached
	}
	return nil
}

func (e *Engine) commit(ctx context.Context, head, tail *journal.Node) {
	edge, change := e.journal.Record(head, tail, e.pending)
	if change == journal.EdgeUnchanged {
		return
	}
	e.publish(ctx, schemas.TopicEdgeRecorded, schemas.EdgeEvent{
		SessionID: e.cfg.SessionID,
		Head:      edge.Head,
		Tail:      edge.Tail,
		Action:    edge.Action.Text(),
		Kind:      edge.Action.Kind().String(),
		Rect:      edge.Action.Rect(),
		Replaced:  change == journal.EdgeRetargeted,
		Timestamp: e.clock.Now(),
	})
}

func (e *Engine) persist(ctx context.Context) {
	if e.cfg.RenderFormat != "" {
		if _, err := e.journal.Render(ctx, e.cfg.RenderFormat); err != nil {
			e.logger.Warn("Failed to render journal", zap.Error(err))
		}
		return
	}
	if err := e.journal.Dump(false); err != nil {
		e.logger.Warn("Failed to dump journal", zap.Error(err))
	}
}

// act performs the best candidate of node. Without candidates the
// exploration either ends, on the initial node, or resets.
func (e *Engine) act(ctx context.Context, node *journal.Node) (bool, error) {
	action, ok := e.scorer.Choose(node.State)
	if !ok {
		if node == e.journal.Initial() {
			e.logger.Info("All possible paths have been explored.")
			e.phase = PhaseDone
			e.reason = ReasonExhausted
			return true, nil
		}
		return false, e.reset(ctx, "no actions left")
	}

	clickable, ok := action.(model.Clickable)
	if !ok {
		e.logger.Warn("Action cannot be performed by a click", zap.Stringer("kind", action.Kind()), zap.String("text", action.Text()))
		return false, nil
	}
	score, _ := action.Score()
	if err := clickable.Perform(ctx, e.human); err != nil {
		e.logger.Warn("Failed to perform action", zap.String("text", action.Text()), zap.Error(err))
		return false, nil
	}
	e.pending = action
	e.actions++
	e.logger.Info("Performed", zap.Stringer("node", node), zap.String("action", action.Text()), zap.Int("score", score))
	e.publish(ctx, schemas.TopicActionPerformed, schemas.ActionEvent{
		SessionID: e.cfg.SessionID,
		Node:      node.Index,
		Action:    action.Text(),
		Kind:      action.Kind().String(),
		Score:     score,
		Timestamp: e.clock.Now(),
	})
	return false, nil
}

// reset restores the initial snapshot and moves the cursor back to the
// initial node. Checkpoint failures are fatal.
func (e *Engine) reset(ctx context.Context, reason string) error {
	e.clearStall()
	e.pending = nil
	initial := e.journal.Initial()
	if initial == nil {
		e.logger.Warn("Cannot reset before the initial state is known", zap.String("reason", reason))
		e.phase = PhaseRunning
		return nil
	}
	if err := e.checkpoint.Restore(ctx); err != nil {
		return err
	}
	e.journal.SetCurrent(initial)
	e.resetted = true
	e.phase = PhaseResetPending
	e.resets++
	e.logger.Info("Reset to initial state", zap.String("reason", reason))
	e.publish(ctx, schemas.TopicSessionReset, schemas.ResetEvent{
		SessionID: e.cfg.SessionID,
		Reason:    reason,
		Timestamp: e.clock.Now(),
	})
	return nil
}

func (e *Engine) publish(ctx context.Context, topic schemas.EventTopic, event any) {
	if err := e.publisher.Publish(ctx, topic, event); err != nil {
		e.logger.Debug("Failed to publish event", zap.String("topic", string(topic)), zap.Error(err))
	}
}
