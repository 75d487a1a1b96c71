// internal/session/repository_test.go
package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/isde-autofill/api/schemas"
	"github.com/xkilldash9x/isde-autofill/internal/guard"
	"github.com/xkilldash9x/isde-autofill/internal/session"
	"github.com/xkilldash9x/isde-autofill/internal/steps"
	"github.com/xkilldash9x/isde-autofill/internal/store"
)

type failingKV struct{ err error }

func (f failingKV) Get(context.Context, string) (string, bool, error) { return "", false, f.err }
func (f failingKV) Set(context.Context, string, string) error         { return f.err }
func (f failingKV) Delete(context.Context, ...string) error           { return f.err }

func sampleConfig() *schemas.AutomationConfig {
	return &schemas.AutomationConfig{
		Applicant: schemas.Applicant{Initials: "J.", LastName: "Jansen", Email: "j@example.nl"},
		Measure:   schemas.Measure{Type: "warmtepomp", Meldcode: "KA12345", InstallationDate: "2024-03-01"},
		Documents: schemas.Documents{
			Invoice: schemas.NewFileAttachment("factuur.pdf", "", []byte("%PDF-1.4")),
		},
	}
}

func TestRepository_SaveLoad(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	repo := session.NewRepository(kv, "")

	s := session.New(sampleConfig())
	s.CurrentStep = steps.MeasureAdded
	s.Loop = guard.Counters{LastStep: steps.MeasureAdded, Count: 2}
	s.Paused = true
	require.NoError(t, repo.Save(ctx, s))

	v, ok, err := kv.Get(ctx, "isde_autofill_current_step")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "measure_added", v)

	loaded, ok, err := repo.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(s, loaded); diff != "" {
		t.Errorf("loaded session mismatch (-want +got):\n%s", diff)
	}
}

func TestRepository_LoadMissing(t *testing.T) {
	repo := session.NewRepository(store.NewMemory(), "x_")
	s, ok, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, s)

	step, err := repo.LoadStep(context.Background())
	require.NoError(t, err)
	assert.True(t, step.IsEmpty())
}

func TestRepository_StepOverridesState(t *testing.T) {
	ctx := context.Background()
	repo := session.NewRepository(store.NewMemory(), "")

	require.NoError(t, repo.Save(ctx, session.New(sampleConfig())))
	require.NoError(t, repo.SaveStep(ctx, steps.FinalReview))

	loaded, _, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, steps.FinalReview, loaded.CurrentStep)
}

func TestRepository_NavClick(t *testing.T) {
	ctx := context.Background()
	repo := session.NewRepository(store.NewMemory(), "")

	_, ok, err := repo.LastNavClick(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	click := session.NavClick{Next: steps.ISDESelected, At: time.Now().UTC().Truncate(time.Millisecond)}
	require.NoError(t, repo.MarkNavClick(ctx, click))
	got, ok, err := repo.LastNavClick(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, steps.ISDESelected, got.Next)
	assert.True(t, click.At.Equal(got.At))

	require.NoError(t, repo.ClearNavClick(ctx))
	_, ok, err = repo.LastNavClick(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	kv := store.NewMemory()
	require.NoError(t, kv.Set(ctx, "isde_autofill_nav_click_at", "garbage"))
	_, ok, err = session.NewRepository(kv, "").LastNavClick(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_Clear(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	repo := session.NewRepository(kv, "")

	require.NoError(t, repo.Save(ctx, session.New(sampleConfig())))
	require.NoError(t, repo.MarkNavClick(ctx, session.NavClick{Next: steps.Start, At: time.Now()}))
	require.NoError(t, kv.Set(ctx, "unrelated", "kept"))

	require.NoError(t, repo.Clear(ctx))
	assert.Equal(t, 1, kv.Len())
}

func TestRepository_Errors(t *testing.T) {
	boom := errors.New("quota exceeded")
	repo := session.NewRepository(failingKV{err: boom}, "")
	ctx := context.Background()

	assert.ErrorIs(t, repo.Save(ctx, session.New(nil)), boom)
	assert.ErrorIs(t, repo.SaveStep(ctx, steps.Start), boom)
	_, _, err := repo.Load(ctx)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, repo.Clear(ctx), boom)
}

func TestSession_Helpers(t *testing.T) {
	s := session.New(nil)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, steps.Start, s.CurrentStep)
	assert.True(t, s.Active())

	s.Loop = guard.Counters{LastStep: steps.Start, Count: 3}
	c := s.Clone()
	s.ResetLoopCounters()
	assert.True(t, s.Loop.IsZero())
	assert.Equal(t, 3, c.Loop.Count)

	c.Stopped = true
	assert.False(t, c.Active())
	var nilSession *session.AutomationSession
	assert.False(t, nilSession.Active())
	assert.Nil(t, nilSession.Clone())
}
