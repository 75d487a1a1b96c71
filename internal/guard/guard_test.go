// internal/guard/guard_test.go
package guard_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/isde-autofill/internal/guard"
	"github.com/xkilldash9x/isde-autofill/internal/steps"
)

func TestObserve_ForcesPauseOnFourthRepeat(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	g := guard.New(zap.New(core), 0)
	require.Equal(t, guard.DefaultMaxRepeats, g.MaxRepeats())

	var c guard.Counters
	for i := 1; i <= 3; i++ {
		d, err := g.Observe(&c, steps.MeasureAdded)
		require.NoError(t, err)
		assert.Equal(t, guard.Proceed, d)
		assert.Equal(t, i, c.Count)
	}

	d, err := g.Observe(&c, steps.MeasureAdded)
	assert.Equal(t, guard.ForcePause, d)
	assert.ErrorIs(t, err, guard.ErrLoopDetected)
	assert.True(t, c.IsZero(), "counters reset after forcePause")
	assert.Equal(t, 1, logs.FilterMessage("Loop detected, forcing pause.").Len())

	// A fifth observation starts a fresh count.
	d, err = g.Observe(&c, steps.MeasureAdded)
	require.NoError(t, err)
	assert.Equal(t, guard.Proceed, d)
	assert.Equal(t, 1, c.Count)
	assert.Equal(t, steps.MeasureAdded, c.LastStep)
}

func TestObserve_StepChangeResets(t *testing.T) {
	g := guard.New(nil, 3)
	var c guard.Counters

	g.Observe(&c, steps.Start)
	g.Observe(&c, steps.Start)
	assert.Equal(t, 2, c.Count)

	d, err := g.Observe(&c, steps.NieuweAanvraagClicked)
	require.NoError(t, err)
	assert.Equal(t, guard.Proceed, d)
	assert.Equal(t, guard.Counters{LastStep: steps.NieuweAanvraagClicked, Count: 1}, c)

	g.Observe(&c, steps.NieuweAanvraagClicked)
	d, _ = g.Observe(&c, steps.NieuweAanvraagClicked)
	assert.Equal(t, guard.ForcePause, d)
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "proceed", guard.Proceed.String())
	assert.Equal(t, "forcePause", guard.ForcePause.String())
}
