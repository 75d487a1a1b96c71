// internal/guard/guard.go

// Package guard stops the automation when a stage keeps repeating.
package guard

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/isde-autofill/internal/steps"
)

// DefaultMaxRepeats is the number of consecutive executions of one stage that
// triggers a forced pause.
const DefaultMaxRepeats = 4

// ErrLoopDetected accompanies a ForcePause decision.
var ErrLoopDetected = errors.New("stage repeated without progress")

// Decision is the outcome of an observation.
type Decision int

const (
	Proceed Decision = iota
	ForcePause
)

func (d Decision) String() string {
	if d == ForcePause {
		return "forcePause"
	}
	return "proceed"
}

// Counters is the loop-detection bookkeeping stored with the session.
type Counters struct {
	LastStep steps.ID `json:"lastExecutedStepId,omitempty"`
	Count    int      `json:"executionCount"`
}

// Reset clears the counters.
func (c *Counters) Reset() {
	c.LastStep = ""
	c.Count = 0
}

// IsZero reports whether the counters are reset.
func (c Counters) IsZero() bool {
	return c.LastStep == "" && c.Count == 0
}

// Guard applies the repeat limit to a set of counters.
type Guard struct {
	logger     *zap.Logger
	maxRepeats int
}

// New creates a Guard. A non-positive maxRepeats selects DefaultMaxRepeats.
func New(logger *zap.Logger, maxRepeats int) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRepeats <= 0 {
		maxRepeats = DefaultMaxRepeats
	}
	return &Guard{logger: logger.Named("guard"), maxRepeats: maxRepeats}
}

// MaxRepeats returns the configured limit.
func (g *Guard) MaxRepeats() int { return g.maxRepeats }

// Observe records one execution of id. When the same stage has been observed
// MaxRepeats times in a row it resets c and returns ForcePause together with
// an error wrapping ErrLoopDetected.
func (g *Guard) Observe(c *Counters, id steps.ID) (Decision, error) {
	if c.LastStep == id {
		c.Count++
	} else {
		c.LastStep = id
		c.Count = 1
	}

	if c.Count < g.maxRepeats {
		return Proceed, nil
	}

	g.logger.Warn("Loop detected, forcing pause.", zap.String("step", id.String()), zap.Int("repeats", c.Count))
	repeats := c.Count
	c.Reset()
	return ForcePause, fmt.Errorf("%w: %s executed %d times", ErrLoopDetected, id, repeats)
}
