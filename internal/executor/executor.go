// internal/executor/executor.go

// Package executor performs the DOM actions of each wizard stage.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/isde-autofill/api/schemas"
	"github.com/xkilldash9x/isde-autofill/internal/browser/dom"
	"github.com/xkilldash9x/isde-autofill/internal/session"
	"github.com/xkilldash9x/isde-autofill/internal/steps"
)

// -- Collaborators --

// Page is the DOM interaction primitive set of the live tab. Targets resolve
// to their first visible match unless noted otherwise; a missing element is
// reported as dom.ErrNoMatch.
type Page interface {
	Snapshot(ctx context.Context) (*dom.Snapshot, error)
	Click(ctx context.Context, t dom.Target) error
	Fill(ctx context.Context, t dom.Target, value string) error
	Select(ctx context.Context, t dom.Target, label string) error
	// SetChecked applies to every match, so a checkbox group is one call.
	SetChecked(ctx context.Context, t dom.Target, checked bool) error
	// InjectFile materialises f as a File and assigns it to the file input t.
	InjectFile(ctx context.Context, t dom.Target, f *schemas.FileAttachment) error
	// Dispatch fires a bubbling DOM event of the given type on t.
	Dispatch(ctx context.Context, t dom.Target, event string) error
}

// StateWriter persists stage progress. *session.Repository implements it.
type StateWriter interface {
	SaveStep(ctx context.Context, id steps.ID) error
	LastNavClick(ctx context.Context) (session.NavClick, bool, error)
	MarkNavClick(ctx context.Context, click session.NavClick) error
	ClearNavClick(ctx context.Context) error
}

// Detector classifies a snapshot.
type Detector interface {
	Detect(s *dom.Snapshot) steps.ID
}

// Pacer inserts interaction delays.
type Pacer interface {
	Pause(ctx context.Context) error
	BeforeInteraction(ctx context.Context) error
}

// Sleeper waits cancellably. *timers.Registry implements it.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// -- Outcomes --

// Transition says how the engine continues after a stage ran.
type Transition int

const (
	// Stay means the stage did not advance; the engine retries later.
	Stay Transition = iota
	// Navigate means a click is unloading the page; the next tick comes from
	// the page lifecycle.
	Navigate
	// Chain means the page changed in place; the engine re-ticks after the
	// settle delay.
	Chain
	// Halt means the operator has to act.
	Halt
	// Complete means the terminal stage was reached.
	Complete
)

func (t Transition) String() string {
	switch t {
	case Navigate:
		return "navigate"
	case Chain:
		return "chain"
	case Halt:
		return "halt"
	case Complete:
		return "complete"
	default:
		return "stay"
	}
}

// Outcome is the result of executing one stage.
type Outcome struct {
	Next       steps.ID
	Transition Transition
	Message    string
}

// Run is the input of a stage handler.
type Run struct {
	Step     steps.ID
	Config   *schemas.AutomationConfig
	Snapshot *dom.Snapshot
}

// Handler performs a stage's side effects.
type Handler func(ctx context.Context, run *Run) (Outcome, error)

// Definition is one entry of the stage table.
type Definition struct {
	ID         steps.ID
	Action     Handler
	Successors []steps.ID
}

// Config holds the executor's timing.
type Config struct {
	ElementTimeout     time.Duration
	PollInterval       time.Duration
	SettleDelay        time.Duration
	NavigationDebounce time.Duration
}

// DefaultConfig returns the timing used when none is configured.
func DefaultConfig() Config {
	return Config{
		ElementTimeout:     10 * time.Second,
		PollInterval:       250 * time.Millisecond,
		SettleDelay:        1500 * time.Millisecond,
		NavigationDebounce: 5 * time.Second,
	}
}

// Executor dispatches a stage to its handler.
type Executor struct {
	cfg      Config
	logger   *zap.Logger
	page     Page
	state    StateWriter
	detector Detector
	pacer    Pacer
	sleeper  Sleeper
	now      func() time.Time

	table map[steps.ID]Definition
}

// New wires an executor.
func New(cfg Config, logger *zap.Logger, page Page, state StateWriter, detector Detector, pacer Pacer, sleeper Sleeper) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		cfg:      cfg,
		logger:   logger.Named("executor"),
		page:     page,
		state:    state,
		detector: detector,
		pacer:    pacer,
		sleeper:  sleeper,
		now:      time.Now,
	}
	e.table = make(map[steps.ID]Definition)
	for _, d := range e.definitions() {
		e.table[d.ID] = d
	}
	return e
}

// Definition returns the table entry for id.
func (e *Executor) Definition(id steps.ID) (Definition, bool) {
	d, ok := e.table[id]
	return d, ok
}

// Execute runs the handler of step. Panics are recovered into an
// *UnexpectedError; stage-local errors come back with a Stay or Halt outcome.
func (e *Executor) Execute(ctx context.Context, step steps.ID, cfg *schemas.AutomationConfig, snap *dom.Snapshot) (out Outcome, err error) {
	def, ok := e.table[step]
	if !ok {
		return Outcome{Next: step, Transition: Stay, Message: "Waiting for a recognisable page"}, nil
	}

	if cfg == nil {
		// Handlers then report the first field they need as missing.
		cfg = &schemas.AutomationConfig{}
	}

	logger := e.logger.With(zap.String("step", step.String()))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Stage handler panicked.", zap.Any("panic", r))
			e.restoreStep(step)
			out = Outcome{Next: step, Transition: Stay}
			err = &UnexpectedError{Step: step, Value: r, Stack: debug.Stack()}
		}
	}()

	logger.Debug("Executing stage.")
	out, err = def.Action(ctx, &Run{Step: step, Config: cfg, Snapshot: snap})
	if err != nil {
		var missing *MissingInputError
		if errors.As(err, &missing) {
			return Outcome{Next: step, Transition: Halt, Message: missing.Error()}, err
		}
		return Outcome{Next: step, Transition: Stay, Message: err.Error()}, err
	}

	if out.Transition == Chain {
		if err := e.state.SaveStep(ctx, out.Next); err != nil {
			return Outcome{Next: step, Transition: Stay}, fmt.Errorf("failed to persist successor: %w", err)
		}
	}
	logger.Debug("Stage executed.", zap.String("next", out.Next.String()), zap.Stringer("transition", out.Transition))
	return out, nil
}
