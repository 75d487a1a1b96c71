// internal/session/session.go

// Package session defines the automation session and its persisted layout.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/isde-autofill/api/schemas"
	"github.com/xkilldash9x/isde-autofill/internal/guard"
	"github.com/xkilldash9x/isde-autofill/internal/steps"
)

// AutomationSession is the unit of work: one applicant record driven through
// the wizard in one browser tab.
type AutomationSession struct {
	ID          string                    `json:"id"`
	Config      *schemas.AutomationConfig `json:"-"`
	CurrentStep steps.ID                  `json:"-"`
	Loop        guard.Counters            `json:"loop"`
	Paused      bool                      `json:"paused"`
	Stopped     bool                      `json:"stopped"`
	StartedAt   time.Time                 `json:"startedAt"`
}

// New creates a session at the initial stage.
func New(cfg *schemas.AutomationConfig) *AutomationSession {
	return &AutomationSession{
		ID:          uuid.NewString(),
		Config:      cfg,
		CurrentStep: steps.Initial,
		StartedAt:   time.Now().UTC(),
	}
}

// Active reports whether ticks may run.
func (s *AutomationSession) Active() bool {
	return s != nil && !s.Paused && !s.Stopped
}

// ResetLoopCounters clears the loop guard bookkeeping.
func (s *AutomationSession) ResetLoopCounters() {
	s.Loop.Reset()
}

// Clone returns a copy safe to hand to other goroutines. The config is shared;
// it is never mutated after the session is created.
func (s *AutomationSession) Clone() *AutomationSession {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
