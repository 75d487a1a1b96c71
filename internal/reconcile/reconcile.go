// internal/reconcile/reconcile.go

// Package reconcile merges the detected stage with the persisted one.
package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/isde-autofill/internal/steps"
)

// Resolve picks the authoritative stage.
//
// At flow start the persisted value wins over a detected landing page, since
// the portal header makes every page look like the landing page. Once the flow
// is underway any conclusive detection wins over persisted state, which can be
// stale after a navigation raced the last write.
//
// A genuine return to the landing page mid-flow (session expiry) is therefore
// reported as the persisted stage.
func Resolve(detected, persisted steps.ID) steps.ID {
	if persisted.IsEmpty() || persisted == steps.Initial {
		if detected == steps.Unknown || detected.IsEmpty() {
			return steps.Initial
		}
		return detected
	}
	if detected != steps.Unknown && !detected.IsEmpty() && detected != steps.Initial {
		return detected
	}
	return persisted
}

// StepWriter persists the authoritative stage.
type StepWriter interface {
	SaveStep(ctx context.Context, id steps.ID) error
}

// Reconciler applies Resolve and persists the result.
type Reconciler struct {
	logger *zap.Logger
	writer StepWriter
}

// New creates a Reconciler writing through w.
func New(logger *zap.Logger, w StepWriter) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{logger: logger.Named("reconcile"), writer: w}
}

// Reconcile resolves and persists the authoritative stage. The resolved stage
// is returned even when persisting fails.
func (r *Reconciler) Reconcile(ctx context.Context, detected, persisted steps.ID) (steps.ID, error) {
	chosen := Resolve(detected, persisted)
	if chosen != persisted {
		r.logger.Debug("Authoritative stage changed.",
			zap.String("detected", detected.String()),
			zap.String("persisted", persisted.String()),
			zap.String("chosen", chosen.String()))
	}
	if err := r.writer.SaveStep(ctx, chosen); err != nil {
		return chosen, fmt.Errorf("failed to persist reconciled stage %s: %w", chosen, err)
	}
	return chosen, nil
}
