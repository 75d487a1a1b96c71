// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/isde-autofill/api/schemas"
	"github.com/xkilldash9x/isde-autofill/internal/browser/dom"
	"github.com/xkilldash9x/isde-autofill/internal/executor"
	"github.com/xkilldash9x/isde-autofill/internal/guard"
	"github.com/xkilldash9x/isde-autofill/internal/reconcile"
	"github.com/xkilldash9x/isde-autofill/internal/session"
	"github.com/xkilldash9x/isde-autofill/internal/steps"
	"github.com/xkilldash9x/isde-autofill/internal/timers"
)

// -- Interfaces for Dependency Inversion --

// Page captures snapshots of the live tab.
type Page interface {
	Snapshot(ctx context.Context) (*dom.Snapshot, error)
}

// Detector classifies a snapshot.
type Detector interface {
	Detect(s *dom.Snapshot) steps.ID
}

// Executor runs stage handlers. *executor.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, step steps.ID, cfg *schemas.AutomationConfig, snap *dom.Snapshot) (executor.Outcome, error)
	FillCurrentPage(ctx context.Context, cfg *schemas.AutomationConfig) (int, error)
}

// Repository persists the session. *session.Repository implements it.
type Repository interface {
	reconcile.StepWriter
	Save(ctx context.Context, s *session.AutomationSession) error
	SaveState(ctx context.Context, s *session.AutomationSession) error
	LoadStep(ctx context.Context) (steps.ID, error)
	Load(ctx context.Context) (*session.AutomationSession, bool, error)
	Clear(ctx context.Context) error
}

// StatusSink receives every status change.
type StatusSink interface {
	Publish(status schemas.Status)
}

// ErrNoSession is returned by commands that need an active session.
var ErrNoSession = errors.New("no automation session")

// Config holds the driver's timing.
type Config struct {
	MaxRepeats         int
	SettleDelay        time.Duration
	RetryDelay         time.Duration
	NavigationFallback time.Duration
	TriggerBuffer      int
}

// DefaultConfig returns the timing used when none is configured.
func DefaultConfig() Config {
	return Config{
		MaxRepeats:         guard.DefaultMaxRepeats,
		SettleDelay:        1500 * time.Millisecond,
		RetryDelay:         3 * time.Second,
		NavigationFallback: 10 * time.Second,
		TriggerBuffer:      16,
	}
}

// Engine is the driver: it turns triggers into ticks, one at a time.
type Engine struct {
	cfg        Config
	logger     *zap.Logger
	page       Page
	detector   Detector
	reconciler *reconcile.Reconciler
	guard      *guard.Guard
	exec       Executor
	repo       Repository
	timers     *timers.Registry
	sink       StatusSink

	triggers chan Trigger

	// Owned by the loop goroutine.
	lastGeneration uint64
	fallback       timers.Handle

	mu         sync.Mutex
	sess       *session.AutomationSession
	status     schemas.Status
	detailView bool
	tickCancel context.CancelFunc
}

// New wires an engine. The registry is shared with the executor so that
// pause and stop cancel every continuation in one place.
func New(cfg Config, logger *zap.Logger, page Page, detector Detector, exec Executor, repo Repository, registry *timers.Registry, sink StatusSink) (*Engine, error) {
	if page == nil {
		return nil, errors.New("page cannot be nil")
	}
	if detector == nil {
		return nil, errors.New("detector cannot be nil")
	}
	if exec == nil {
		return nil, errors.New("executor cannot be nil")
	}
	if repo == nil {
		return nil, errors.New("repository cannot be nil")
	}
	if registry == nil {
		return nil, errors.New("timer registry cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TriggerBuffer <= 0 {
		cfg.TriggerBuffer = DefaultConfig().TriggerBuffer
	}
	return &Engine{
		cfg:        cfg,
		logger:     logger.Named("engine"),
		page:       page,
		detector:   detector,
		reconciler: reconcile.New(logger, repo),
		guard:      guard.New(logger, cfg.MaxRepeats),
		exec:       exec,
		repo:       repo,
		timers:     registry,
		sink:       sink,
		triggers:   make(chan Trigger, cfg.TriggerBuffer),
		status:     schemas.Status{Kind: schemas.StatusIdle, Line: "Idle", UpdatedAt: time.Now()},
	}, nil
}

// Run consumes triggers until ctx ends. Ticks never overlap.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Engine loop started.")
	for {
		select {
		case <-ctx.Done():
			e.timers.CancelAll()
			e.logger.Info("Engine loop stopped.", zap.Error(ctx.Err()))
			return nil
		case t := <-e.triggers:
			e.handleTrigger(ctx, t)
		}
	}
}

// Trigger enqueues t without blocking. It reports false when the queue is
// full; a full queue already holds a pending tick, so dropping is harmless.
func (e *Engine) Trigger(t Trigger) bool {
	select {
	case e.triggers <- t:
		return true
	default:
		e.logger.Debug("Trigger queue full, dropping trigger.", zap.Stringer("source", t.Source))
		return false
	}
}

// Status returns the last published status.
func (e *Engine) Status() schemas.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Session returns a copy of the active session, or nil.
func (e *Engine) Session() *session.AutomationSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Clone()
}

// Restore reloads a persisted session, typically after the host process
// restarted while the tab kept its storage. An active session is resumed.
func (e *Engine) Restore(ctx context.Context) (bool, error) {
	s, ok, err := e.repo.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to restore session: %w", err)
	}
	if !ok || s.Stopped {
		return false, nil
	}
	e.mu.Lock()
	e.sess = s
	e.mu.Unlock()

	e.logger.Info("Restored persisted session.", zap.String("session_id", s.ID), zap.String("step", s.CurrentStep.String()), zap.Bool("paused", s.Paused))
	if s.Paused {
		e.report(schemas.StatusPaused, "Paused (restored)", s.CurrentStep, "")
		return true, nil
	}
	e.Trigger(Trigger{Source: SourceResume})
	return true, nil
}

// report stores and publishes a status. Callers must not hold e.mu.
func (e *Engine) report(kind schemas.StatusKind, line string, current, detected steps.ID) {
	e.mu.Lock()
	st := schemas.Status{
		Line:         line,
		Kind:         kind,
		CurrentStep:  current.String(),
		DetectedStep: detected.String(),
		DetailView:   e.detailView,
		UpdatedAt:    time.Now(),
	}
	e.status = st
	e.mu.Unlock()

	if e.sink != nil {
		e.sink.Publish(st)
	}
}

// schedule registers a continuation that re-enters the loop.
func (e *Engine) schedule(delay time.Duration, source Source) timers.Handle {
	return e.timers.Schedule(delay, func() {
		e.Trigger(Trigger{Source: source})
	})
}

// scheduleFor registers a continuation only while the session with the given
// id is active. The check and the registration share e.mu, so a pause or stop
// either sees the entry in CancelAll or the continuation is never registered.
func (e *Engine) scheduleFor(id string, delay time.Duration, source Source) timers.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil || e.sess.ID != id || !e.sess.Active() {
		return 0
	}
	return e.schedule(delay, source)
}
