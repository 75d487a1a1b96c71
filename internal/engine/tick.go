// internal/engine/tick.go
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/isde-autofill/api/schemas"
	"github.com/xkilldash9x/isde-autofill/internal/executor"
	"github.com/xkilldash9x/isde-autofill/internal/guard"
	"github.com/xkilldash9x/isde-autofill/internal/session"
	"github.com/xkilldash9x/isde-autofill/internal/steps"
	"github.com/xkilldash9x/isde-autofill/internal/timers"
)

func (e *Engine) handleTrigger(ctx context.Context, t Trigger) {
	if t.Source.IsPageLifecycle() {
		if t.Generation != 0 && t.Generation == e.lastGeneration {
			e.logger.Debug("Document already handled, ignoring lifecycle event.", zap.Stringer("source", t.Source), zap.Uint64("generation", t.Generation))
			return
		}
		e.lastGeneration = t.Generation
		// The page arrived; the navigation fallback is no longer needed.
		if e.fallback != 0 {
			e.timers.Cancel(e.fallback)
			e.fallback = 0
		}
	}

	if t.Source == SourceManualFill {
		e.manualFill(ctx, t.Config)
		return
	}
	e.tick(ctx, t)
}

// beginTick checks the flags and registers a cancellable context for the
// tick. It returns a working copy of the session.
func (e *Engine) beginTick(ctx context.Context) (context.Context, *session.AutomationSession, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return nil, nil, false
	}
	if e.sess.Stopped {
		e.timers.CancelAll()
		return nil, nil, false
	}
	if e.sess.Paused {
		return nil, nil, false
	}
	tickCtx, cancel := context.WithCancel(ctx)
	e.tickCancel = cancel
	return tickCtx, e.sess.Clone(), true
}

func (e *Engine) endTick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tickCancel != nil {
		e.tickCancel()
		e.tickCancel = nil
	}
}

// stillActive reports whether the session the tick started with is still
// the active, unpaused session.
func (e *Engine) stillActive(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess != nil && e.sess.ID == id && e.sess.Active()
}

// tick runs one pass: flags, detect, reconcile, loop guard, execute, persist.
func (e *Engine) tick(ctx context.Context, t Trigger) {
	tickCtx, sess, ok := e.beginTick(ctx)
	if !ok {
		e.logger.Debug("Tick skipped, no active session.", zap.Stringer("source", t.Source))
		return
	}
	defer e.endTick()
	logger := e.logger.With(zap.String("session_id", sess.ID), zap.Stringer("source", t.Source))

	snap, err := e.page.Snapshot(tickCtx)
	if err != nil {
		if e.aborted(tickCtx, err, sess.ID) {
			return
		}
		logger.Warn("Failed to capture page.", zap.Error(err))
		e.report(schemas.StatusWaiting, "Waiting for the page", sess.CurrentStep, "")
		e.scheduleFor(sess.ID, e.cfg.RetryDelay, SourceRetry)
		return
	}

	detected := e.detector.Detect(snap)
	persisted, err := e.repo.LoadStep(tickCtx)
	if err != nil {
		logger.Warn("Failed to read persisted step, using session state.", zap.Error(err))
		persisted = sess.CurrentStep
	}
	current, err := e.reconciler.Reconcile(tickCtx, detected, persisted)
	if err != nil {
		logger.Warn("Failed to persist reconciled step.", zap.Error(err))
	}
	logger.Debug("Tick state resolved.",
		zap.String("detected", detected.String()),
		zap.String("persisted", persisted.String()),
		zap.String("current", current.String()))

	decision, ok, guardErr := e.observe(tickCtx, sess.ID, current)
	if !ok {
		return
	}
	if decision == guard.ForcePause {
		logger.Warn("Manual intervention required.", zap.Error(guardErr))
		e.report(schemas.StatusManualIntervention, fmt.Sprintf("Manual intervention required: stuck at %s", current.Label()), current, detected)
		return
	}

	e.report(schemas.StatusRunning, fmt.Sprintf("Running: %s", current.Label()), current, detected)
	out, err := e.exec.Execute(tickCtx, current, sess.Config, snap)
	if e.aborted(tickCtx, err, sess.ID) {
		logger.Debug("Tick aborted by a control command.")
		return
	}
	if err != nil {
		e.handleStageError(tickCtx, logger, sess.ID, current, detected, out, err)
		return
	}
	e.advance(tickCtx, logger, sess.ID, current, detected, out)
}

// observe applies the loop guard to the live session and persists counters.
func (e *Engine) observe(ctx context.Context, id string, current steps.ID) (guard.Decision, bool, error) {
	e.mu.Lock()
	if e.sess == nil || e.sess.ID != id || !e.sess.Active() {
		e.mu.Unlock()
		return guard.Proceed, false, nil
	}
	e.sess.CurrentStep = current
	decision, guardErr := e.guard.Observe(&e.sess.Loop, current)
	if decision == guard.ForcePause {
		e.sess.Paused = true
		e.timers.CancelAll()
	}
	snapshot := e.sess.Clone()
	e.mu.Unlock()

	if err := e.repo.SaveState(ctx, snapshot); err != nil {
		e.logger.Warn("Failed to persist session state.", zap.Error(err))
	}
	return decision, true, guardErr
}

// aborted reports whether err or the tick state means a pause, stop or
// shutdown interrupted the tick.
func (e *Engine) aborted(ctx context.Context, err error, id string) bool {
	if errors.Is(err, timers.ErrCancelled) || errors.Is(err, context.Canceled) {
		return true
	}
	return ctx.Err() != nil || !e.stillActive(id)
}

func (e *Engine) handleStageError(ctx context.Context, logger *zap.Logger, id string, current, detected steps.ID, out executor.Outcome, err error) {
	var (
		unexpected *executor.UnexpectedError
		missing    *executor.MissingInputError
		notFound   *executor.ElementNotFoundError
		upload     *executor.UploadError
	)
	switch {
	case errors.As(err, &unexpected):
		logger.Error("Tick halted by an unexpected failure.", zap.Error(err), zap.ByteString("stack", unexpected.Stack))
		e.report(schemas.StatusError, fmt.Sprintf("Error: %v", unexpected.Value), current, detected)

	case errors.As(err, &missing) || out.Transition == executor.Halt:
		logger.Warn("Stage needs input that is not available.", zap.Error(err))
		e.pauseSession(ctx, id)
		e.report(schemas.StatusManualIntervention, fmt.Sprintf("Manual intervention required: %v", err), current, detected)

	case errors.As(err, &notFound):
		logger.Info("Element not found, retrying later.", zap.Stringer("target", notFound.Target))
		e.report(schemas.StatusWaiting, fmt.Sprintf("Waiting for %s", notFound.Target.Name), current, detected)
		e.scheduleFor(id, e.cfg.RetryDelay, SourceRetry)

	case errors.As(err, &upload):
		logger.Warn("Upload failed.", zap.Error(err))
		e.report(schemas.StatusError, fmt.Sprintf("Upload failed: %v", err), current, detected)
		e.scheduleFor(id, e.cfg.RetryDelay, SourceRetry)

	default:
		logger.Warn("Stage failed, retrying later.", zap.Error(err))
		e.report(schemas.StatusError, fmt.Sprintf("Error: %v", err), current, detected)
		e.scheduleFor(id, e.cfg.RetryDelay, SourceRetry)
	}
}

func (e *Engine) advance(ctx context.Context, logger *zap.Logger, id string, current, detected steps.ID, out executor.Outcome) {
	e.mu.Lock()
	if e.sess != nil && out.Next.Valid() {
		e.sess.CurrentStep = out.Next
	}
	e.mu.Unlock()

	switch out.Transition {
	case executor.Navigate:
		e.fallback = e.scheduleFor(id, e.cfg.NavigationFallback, SourceNavigationFallback)
		e.report(schemas.StatusWaiting, fmt.Sprintf("Waiting for page: %s", out.Next.Label()), out.Next, detected)

	case executor.Chain:
		e.scheduleFor(id, e.cfg.SettleDelay, SourceContinuation)
		e.report(schemas.StatusRunning, fmt.Sprintf("Running: %s", out.Next.Label()), out.Next, detected)

	case executor.Complete:
		logger.Info("Terminal stage reached.", zap.String("step", out.Next.String()))
		e.complete(ctx)
		line := out.Message
		if line == "" {
			line = "Completed"
		}
		e.report(schemas.StatusCompleted, line, out.Next, detected)

	case executor.Halt:
		e.pauseSession(ctx, id)
		e.report(schemas.StatusManualIntervention, out.Message, current, detected)

	default:
		line := out.Message
		if line == "" {
			line = fmt.Sprintf("Waiting: %s", current.Label())
		}
		e.scheduleFor(id, e.cfg.RetryDelay, SourceRetry)
		e.report(schemas.StatusWaiting, line, current, detected)
	}
}

// pauseSession pauses the session with the given id on behalf of the engine.
func (e *Engine) pauseSession(ctx context.Context, id string) {
	e.mu.Lock()
	if e.sess == nil || e.sess.ID != id {
		e.mu.Unlock()
		return
	}
	e.sess.Paused = true
	e.timers.CancelAll()
	snapshot := e.sess.Clone()
	e.mu.Unlock()

	if err := e.repo.SaveState(ctx, snapshot); err != nil {
		e.logger.Warn("Failed to persist paused session.", zap.Error(err))
	}
}

// complete destroys the session after the terminal stage.
func (e *Engine) complete(ctx context.Context) {
	e.mu.Lock()
	e.sess = nil
	e.timers.CancelAll()
	e.mu.Unlock()
	if err := e.repo.Clear(ctx); err != nil {
		e.logger.Warn("Failed to clear completed session.", zap.Error(err))
	}
}

func (e *Engine) manualFill(ctx context.Context, cfg *schemas.AutomationConfig) {
	e.mu.Lock()
	if cfg == nil && e.sess != nil {
		cfg = e.sess.Config
	}
	fillCtx, cancel := context.WithCancel(ctx)
	e.tickCancel = cancel
	e.mu.Unlock()
	defer e.endTick()

	status := e.Status()
	current, detected := steps.ID(status.CurrentStep), steps.ID(status.DetectedStep)
	n, err := e.exec.FillCurrentPage(fillCtx, cfg)
	if err != nil {
		if errors.Is(err, timers.ErrCancelled) || errors.Is(err, context.Canceled) {
			return
		}
		e.logger.Warn("Manual fill failed.", zap.Error(err))
		e.report(schemas.StatusError, fmt.Sprintf("Manual fill failed: %v", err), current, detected)
		return
	}
	e.report(status.Kind, fmt.Sprintf("Filled %d fields on this page", n), current, detected)
}
