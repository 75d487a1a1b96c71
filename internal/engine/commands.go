// internal/engine/commands.go
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/isde-autofill/api/schemas"
	"github.com/xkilldash9x/isde-autofill/internal/session"
	"github.com/xkilldash9x/isde-autofill/internal/steps"
)

// HandleCommand applies a control command. Commands take effect
// synchronously: once pause or stop returns, no further page mutation
// happens on behalf of the session.
func (e *Engine) HandleCommand(ctx context.Context, cmd schemas.Command) error {
	e.logger.Info("Control command received.", zap.String("action", string(cmd.Action)))
	switch cmd.Action {
	case schemas.ActionStartAutomation:
		return e.start(ctx, cmd.Config)
	case schemas.ActionFillCurrentPage:
		e.Trigger(Trigger{Source: SourceManualFill, Config: cmd.Config})
		return nil
	case schemas.ActionPause:
		return e.pause(ctx)
	case schemas.ActionResume:
		return e.resume(ctx)
	case schemas.ActionStop:
		return e.stop(ctx)
	case schemas.ActionToggleDetailView:
		e.toggleDetailView()
		return nil
	default:
		return fmt.Errorf("unsupported command %q", cmd.Action)
	}
}

// start discards any previous session and begins a new one at the initial
// stage.
func (e *Engine) start(ctx context.Context, cfg *schemas.AutomationConfig) error {
	if cfg == nil {
		return errors.New("start requires an applicant configuration")
	}
	sess := session.New(cfg)

	// The previous session ends here. The new one is installed only once it
	// is persisted; until then no trigger finds an active session.
	e.mu.Lock()
	e.interruptLocked()
	e.sess = nil
	e.mu.Unlock()

	if err := e.repo.Clear(ctx); err != nil {
		e.logger.Warn("Failed to clear previous session.", zap.Error(err))
	}
	if err := e.repo.Save(ctx, sess.Clone()); err != nil {
		if clearErr := e.repo.Clear(ctx); clearErr != nil {
			e.logger.Warn("Failed to clear partially persisted session.", zap.Error(clearErr))
		}
		e.report(schemas.StatusError, fmt.Sprintf("Could not start: %v", err), steps.Initial, "")
		return fmt.Errorf("failed to persist new session: %w", err)
	}

	e.mu.Lock()
	e.sess = sess
	e.mu.Unlock()
	e.logger.Info("Automation session started.", zap.String("session_id", sess.ID))
	e.report(schemas.StatusRunning, "Running: starting", steps.Initial, "")
	e.Trigger(Trigger{Source: SourceStart})
	return nil
}

func (e *Engine) pause(ctx context.Context) error {
	e.mu.Lock()
	if e.sess == nil {
		e.mu.Unlock()
		return ErrNoSession
	}
	e.sess.Paused = true
	e.interruptLocked()
	snapshot := e.sess.Clone()
	e.mu.Unlock()

	if err := e.repo.SaveState(ctx, snapshot); err != nil {
		e.logger.Warn("Failed to persist paused session.", zap.Error(err))
	}
	e.report(schemas.StatusPaused, "Paused", snapshot.CurrentStep, "")
	return nil
}

// resume clears the pause flag and the loop-guard counters, then re-enters
// the loop.
func (e *Engine) resume(ctx context.Context) error {
	e.mu.Lock()
	if e.sess == nil || e.sess.Stopped {
		e.mu.Unlock()
		return ErrNoSession
	}
	e.sess.Paused = false
	e.sess.ResetLoopCounters()
	snapshot := e.sess.Clone()
	e.mu.Unlock()

	if err := e.repo.SaveState(ctx, snapshot); err != nil {
		e.logger.Warn("Failed to persist resumed session.", zap.Error(err))
	}
	e.report(schemas.StatusRunning, fmt.Sprintf("Running: %s", snapshot.CurrentStep.Label()), snapshot.CurrentStep, "")
	e.Trigger(Trigger{Source: SourceResume})
	return nil
}

// stop ends the session. The stopped session stays in memory so later
// continuations see the flag, but its persisted state is removed.
func (e *Engine) stop(ctx context.Context) error {
	e.mu.Lock()
	if e.sess == nil {
		e.mu.Unlock()
		return ErrNoSession
	}
	e.sess.Stopped = true
	e.interruptLocked()
	current := e.sess.CurrentStep
	e.mu.Unlock()

	if err := e.repo.Clear(ctx); err != nil {
		e.logger.Warn("Failed to clear stopped session.", zap.Error(err))
	}
	e.report(schemas.StatusStopped, "Stopped", current, "")
	return nil
}

func (e *Engine) toggleDetailView() {
	e.mu.Lock()
	e.detailView = !e.detailView
	st := e.status
	e.mu.Unlock()
	e.report(st.Kind, st.Line, steps.ID(st.CurrentStep), steps.ID(st.DetectedStep))
}

// interruptLocked cancels every pending continuation and the running tick.
// Callers hold e.mu.
func (e *Engine) interruptLocked() {
	e.timers.CancelAll()
	if e.tickCancel != nil {
		e.tickCancel()
		e.tickCancel = nil
	}
}
