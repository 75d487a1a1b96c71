// internal/executor/primitives.go
package executor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/isde-autofill/api/schemas"
	"github.com/xkilldash9x/isde-autofill/internal/browser/dom"
	"github.com/xkilldash9x/isde-autofill/internal/portal"
	"github.com/xkilldash9x/isde-autofill/internal/session"
	"github.com/xkilldash9x/isde-autofill/internal/steps"
)

// waitFor polls the page until t matches or the element timeout elapses.
// Polling sleeps through the registry, so pause and stop interrupt it.
func (e *Executor) waitFor(ctx context.Context, t dom.Target) (*dom.Snapshot, error) {
	deadline := e.now().Add(e.cfg.ElementTimeout)
	for {
		snap, err := e.page.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to capture DOM snapshot: %w", err)
		}
		if snap.Has(t) {
			return snap, nil
		}
		if !e.now().Before(deadline) {
			e.logger.Debug("Element did not appear.", zap.Stringer("target", t), zap.Duration("timeout", e.cfg.ElementTimeout))
			return snap, &ElementNotFoundError{Target: t, Timeout: e.cfg.ElementTimeout}
		}
		if err := e.sleeper.Sleep(ctx, e.cfg.PollInterval); err != nil {
			return nil, err
		}
	}
}

// interact waits for t, paces, and performs op.
func (e *Executor) interact(ctx context.Context, t dom.Target, op func() error) error {
	if _, err := e.waitFor(ctx, t); err != nil {
		return err
	}
	if err := e.pacer.BeforeInteraction(ctx); err != nil {
		return err
	}
	if err := op(); err != nil {
		if errors.Is(err, dom.ErrNoMatch) {
			return &ElementNotFoundError{Target: t, Timeout: e.cfg.ElementTimeout}
		}
		return err
	}
	return e.pacer.Pause(ctx)
}

func (e *Executor) click(ctx context.Context, t dom.Target) error {
	e.logger.Debug("Attempting to click element.", zap.Stringer("target", t))
	return e.interact(ctx, t, func() error { return e.page.Click(ctx, t) })
}

func (e *Executor) fill(ctx context.Context, t dom.Target, value string) error {
	// The value key is redacted by the logger.
	e.logger.Debug("Filling field.", zap.Stringer("target", t), zap.String("value", value))
	return e.interact(ctx, t, func() error { return e.page.Fill(ctx, t, value) })
}

// fillOptional fills t when value is set and the field is on the page.
func (e *Executor) fillOptional(ctx context.Context, snap *dom.Snapshot, t dom.Target, value string) error {
	if value == "" || !snap.Has(t) {
		return nil
	}
	return e.fill(ctx, t, value)
}

func (e *Executor) selectOption(ctx context.Context, t dom.Target, label string) error {
	return e.interact(ctx, t, func() error { return e.page.Select(ctx, t, label) })
}

func (e *Executor) setChecked(ctx context.Context, t dom.Target, checked bool) error {
	return e.interact(ctx, t, func() error { return e.page.SetChecked(ctx, t, checked) })
}

// settle waits the settle delay and returns a fresh snapshot.
func (e *Executor) settle(ctx context.Context) (*dom.Snapshot, error) {
	if err := e.sleeper.Sleep(ctx, e.cfg.SettleDelay); err != nil {
		return nil, err
	}
	snap, err := e.page.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to capture DOM snapshot: %w", err)
	}
	return snap, nil
}

// navClick clicks a navigation-triggering element. The successor and the
// click stamp are persisted before the click since the click may unload the
// page before any later write lands; both are rolled back when the click
// fails. A second click for the same successor within the debounce window is
// suppressed.
func (e *Executor) navClick(ctx context.Context, run *Run, t dom.Target, next steps.ID) (Outcome, error) {
	if _, err := e.waitFor(ctx, t); err != nil {
		return Outcome{}, err
	}

	last, ok, err := e.state.LastNavClick(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if ok && last.Next == next && e.now().Sub(last.At) < e.cfg.NavigationDebounce {
		e.logger.Debug("Navigation click debounced.", zap.String("next", next.String()), zap.Time("last_click", last.At))
		return Outcome{Next: run.Step, Transition: Stay, Message: "Waiting for the page to load"}, nil
	}

	if err := e.state.SaveStep(ctx, next); err != nil {
		return Outcome{}, err
	}
	if err := e.state.MarkNavClick(ctx, session.NavClick{Next: next, At: e.now()}); err != nil {
		return Outcome{}, err
	}
	undo := func() {
		e.restoreStep(run.Step)
		e.restoreNavClick(last, ok)
	}
	if err := e.pacer.BeforeInteraction(ctx); err != nil {
		undo()
		return Outcome{}, err
	}
	e.logger.Debug("Clicking navigation element.", zap.Stringer("target", t), zap.String("next", next.String()))
	if err := e.page.Click(ctx, t); err != nil {
		undo()
		if errors.Is(err, dom.ErrNoMatch) {
			return Outcome{}, &ElementNotFoundError{Target: t, Timeout: e.cfg.ElementTimeout}
		}
		return Outcome{}, fmt.Errorf("navigation click failed: %w", err)
	}
	return Outcome{Next: next, Transition: Navigate}, nil
}

// restoreStep undoes the pre-click persist when the click never happened.
func (e *Executor) restoreStep(step steps.ID) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ElementTimeout)
	defer cancel()
	if err := e.state.SaveStep(ctx, step); err != nil {
		e.logger.Warn("Failed to restore stage after an aborted click.", zap.String("step", step.String()), zap.Error(err))
	}
}

// restoreNavClick puts back the click record that preceded an aborted click,
// so the retry is not debounced against a click that never happened.
func (e *Executor) restoreNavClick(prev session.NavClick, had bool) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ElementTimeout)
	defer cancel()
	var err error
	if had {
		err = e.state.MarkNavClick(ctx, prev)
	} else {
		err = e.state.ClearNavClick(ctx)
	}
	if err != nil {
		e.logger.Warn("Failed to restore navigation click after an aborted click.", zap.Error(err))
	}
}

// upload runs the attachment sub-protocol: open the widget, inject the file
// into the native input, notify the page, then wait for the listing.
func (e *Executor) upload(ctx context.Context, name string, doc *schemas.FileAttachment) error {
	if err := doc.Validate(); err != nil {
		return &UploadError{Document: name, Err: err}
	}
	if err := e.click(ctx, portal.AddAttachmentButton); err != nil {
		return err
	}
	if _, err := e.waitFor(ctx, portal.FileInput); err != nil {
		return err
	}
	if err := e.page.InjectFile(ctx, portal.FileInput, doc); err != nil {
		return &UploadError{Document: name, Err: err}
	}
	if err := e.page.Dispatch(ctx, portal.FileInput, "change"); err != nil {
		return &UploadError{Document: name, Err: err}
	}
	if _, err := e.waitFor(ctx, portal.AttachmentItem(doc.Name)); err != nil {
		var notFound *ElementNotFoundError
		if errors.As(err, &notFound) {
			return &UploadError{Document: name, Err: fmt.Errorf("%s was not listed after upload", doc.Name)}
		}
		return err
	}
	e.logger.Info("Attachment uploaded.", zap.String("document", name), zap.String("file", doc.Name))
	return e.pacer.Pause(ctx)
}
