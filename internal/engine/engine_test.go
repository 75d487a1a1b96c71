// internal/engine/engine_test.go
package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/isde-autofill/api/schemas"
	"github.com/xkilldash9x/isde-autofill/internal/browser/dom"
	"github.com/xkilldash9x/isde-autofill/internal/detector"
	"github.com/xkilldash9x/isde-autofill/internal/executor"
	"github.com/xkilldash9x/isde-autofill/internal/guard"
	"github.com/xkilldash9x/isde-autofill/internal/humanoid"
	"github.com/xkilldash9x/isde-autofill/internal/mocks"
	"github.com/xkilldash9x/isde-autofill/internal/session"
	"github.com/xkilldash9x/isde-autofill/internal/steps"
	"github.com/xkilldash9x/isde-autofill/internal/store"
	"github.com/xkilldash9x/isde-autofill/internal/timers"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- Test Harness --

type recordingSink struct {
	mu       sync.Mutex
	statuses []schemas.Status
}

func (r *recordingSink) Publish(st schemas.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, st)
}

func (r *recordingSink) last() schemas.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return schemas.Status{}
	}
	return r.statuses[len(r.statuses)-1]
}

func (r *recordingSink) kinds() []schemas.StatusKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schemas.StatusKind, 0, len(r.statuses))
	for _, s := range r.statuses {
		out = append(out, s.Kind)
	}
	return out
}

type harness struct {
	engine *Engine
	page   *mocks.FakePage
	kv     *store.Memory
	repo   *session.Repository
	timers *timers.Registry
	sink   *recordingSink
}

func fixture(t *testing.T, name string) *dom.Snapshot {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("..", "detector", "testdata", name+".html"))
	require.NoError(t, err)
	snap, err := dom.ParseString(string(raw))
	require.NoError(t, err)
	return snap
}

func testConfig() Config {
	return Config{
		MaxRepeats:         guard.DefaultMaxRepeats,
		SettleDelay:        time.Millisecond,
		RetryDelay:         time.Millisecond,
		NavigationFallback: time.Minute,
		TriggerBuffer:      16,
	}
}

func newHarness(t *testing.T, page string, cfg Config) *harness {
	t.Helper()
	mem := store.NewMemory()
	return newHarnessOn(t, page, cfg, mem, mem)
}

// newHarnessOn persists through kv; mem is the memory store underneath it.
func newHarnessOn(t *testing.T, page string, cfg Config, mem *store.Memory, kv store.KV) *harness {
	t.Helper()
	reg := timers.NewRegistry(nil)
	t.Cleanup(reg.Close)

	repo := session.NewRepository(kv, "")
	fake := mocks.NewFakePage(fixture(t, page))
	det := detector.New(nil)
	exec := executor.New(executor.Config{
		ElementTimeout:     20 * time.Millisecond,
		PollInterval:       time.Millisecond,
		SettleDelay:        time.Millisecond,
		NavigationDebounce: time.Minute,
	}, nil, fake, repo, det, humanoid.New(humanoid.Config{Enabled: false}, reg, nil), reg)

	sink := &recordingSink{}
	e, err := New(cfg, nil, fake, det, exec, repo, reg, sink)
	require.NoError(t, err)
	return &harness{engine: e, page: fake, kv: mem, repo: repo, timers: reg, sink: sink}
}

// runLoop runs the engine loop until the test ends.
func (h *harness) runLoop(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, h.engine.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// drain processes queued triggers on the calling goroutine.
func (h *harness) drain(ctx context.Context) int {
	n := 0
	for {
		select {
		case tr := <-h.engine.triggers:
			h.engine.handleTrigger(ctx, tr)
			n++
		default:
			return n
		}
	}
}

func (h *harness) persisted(t *testing.T) steps.ID {
	t.Helper()
	id, err := h.repo.LoadStep(context.Background())
	require.NoError(t, err)
	return id
}

func applicantConfig() *schemas.AutomationConfig {
	return &schemas.AutomationConfig{
		Applicant: schemas.Applicant{
			Initials: "J.", LastName: "Dijk", Phone: "0612345678",
			Email: "j.dijk@example.nl", IBAN: "NL91ABNA0417164300",
		},
		Measure: schemas.Measure{Type: "warmtepomp", Meldcode: "KA12345"},
	}
}

func start(t *testing.T, h *harness) {
	t.Helper()
	require.NoError(t, h.engine.HandleCommand(context.Background(), schemas.Command{
		Action: schemas.ActionStartAutomation,
		Config: applicantConfig(),
	}))
}

// -- Test Cases --

func TestNew_RequiresDependencies(t *testing.T) {
	reg := timers.NewRegistry(nil)
	defer reg.Close()
	page := mocks.NewFakePage(nil)
	det := detector.New(nil)
	repo := session.NewRepository(store.NewMemory(), "")
	exec := executor.New(executor.DefaultConfig(), nil, page, repo, det, humanoid.New(humanoid.Config{}, reg, nil), reg)

	_, err := New(DefaultConfig(), nil, nil, det, exec, repo, reg, nil)
	assert.Error(t, err)
	_, err = New(DefaultConfig(), nil, page, nil, exec, repo, reg, nil)
	assert.Error(t, err)
	_, err = New(DefaultConfig(), nil, page, det, nil, repo, reg, nil)
	assert.Error(t, err)
	_, err = New(DefaultConfig(), nil, page, det, exec, nil, reg, nil)
	assert.Error(t, err)
	_, err = New(DefaultConfig(), nil, page, det, exec, repo, nil, nil)
	assert.Error(t, err)

	e, err := New(Config{}, nil, page, det, exec, repo, reg, nil)
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusIdle, e.Status().Kind)
	assert.Nil(t, e.Session())
}

func TestEngine_DrivesAcrossNavigation(t *testing.T) {
	h := newHarness(t, "start", testConfig())
	catalog := fixture(t, "nieuwe_aanvraag_clicked")
	h.page.On("nieuwe-aanvraag-link", func(p *mocks.FakePage) { p.SetSnapshot(catalog) })
	h.runLoop(t)

	start(t, h)
	require.Eventually(t, func() bool {
		return h.persisted(t) == steps.NieuweAanvraagClicked && h.sink.last().Kind == schemas.StatusWaiting
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.timers.Pending(), "navigation fallback is armed")

	// The new document loads.
	h.engine.Trigger(Trigger{Source: SourcePageLoad, Generation: 1})
	require.Eventually(t, func() bool {
		return h.persisted(t) == steps.ISDESelected
	}, 2*time.Second, 5*time.Millisecond)

	actions := h.page.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, "nieuwe-aanvraag-link", actions[0].Target)
	assert.Equal(t, "isde-aanvragen", actions[1].Target)

	sess := h.engine.Session()
	require.NotNil(t, sess)
	assert.Equal(t, steps.ISDESelected, sess.CurrentStep)
	assert.Equal(t, guard.Counters{LastStep: steps.NieuweAanvraagClicked, Count: 1}, sess.Loop)
}

func TestEngine_LoopGuardForcesManualIntervention(t *testing.T) {
	h := newHarness(t, "measure_added", testConfig())
	h.page.FailOn("maatregel-type", errors.New("select rejected"))
	h.runLoop(t)

	start(t, h)
	require.Eventually(t, func() bool {
		return h.sink.last().Kind == schemas.StatusManualIntervention
	}, 2*time.Second, 5*time.Millisecond)

	sess := h.engine.Session()
	require.NotNil(t, sess)
	assert.True(t, sess.Paused)
	assert.True(t, sess.Loop.IsZero(), "counters reset once the guard fires")
	assert.Contains(t, h.sink.last().Line, steps.MeasureAdded.Label())
	assert.Contains(t, h.sink.kinds(), schemas.StatusError)
	assert.Zero(t, h.page.Mutations())

	// Paused: the loop stays quiet.
	snapshots := h.page.Snapshots()
	h.engine.Trigger(Trigger{Source: SourceRetry})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, snapshots, h.page.Snapshots())
}

func TestEngine_StopCancelsEverything(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "start", testConfig())
	start(t, h)
	h.engine.schedule(time.Minute, SourceRetry)

	require.NoError(t, h.engine.HandleCommand(ctx, schemas.Command{Action: schemas.ActionStop}))
	assert.Zero(t, h.timers.Pending())
	assert.Zero(t, h.kv.Len(), "stop removes persisted state")
	assert.Equal(t, schemas.StatusStopped, h.sink.last().Kind)

	// The start trigger and any late continuation find a stopped session.
	h.engine.Trigger(Trigger{Source: SourceContinuation})
	assert.Equal(t, 2, h.drain(ctx))
	assert.Zero(t, h.page.Snapshots())
	assert.Zero(t, h.page.Mutations())

	sess := h.engine.Session()
	require.NotNil(t, sess)
	assert.True(t, sess.Stopped)
	assert.ErrorIs(t, h.engine.HandleCommand(ctx, schemas.Command{Action: schemas.ActionResume}), ErrNoSession)
}

func TestEngine_PauseAndResume(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "start", testConfig())
	start(t, h)

	require.NoError(t, h.engine.HandleCommand(ctx, schemas.Command{Action: schemas.ActionPause}))
	assert.Equal(t, schemas.StatusPaused, h.sink.last().Kind)
	assert.Equal(t, 1, h.drain(ctx))
	assert.Zero(t, h.page.Snapshots(), "no tick runs while paused")

	h.engine.mu.Lock()
	h.engine.sess.Loop = guard.Counters{LastStep: steps.Start, Count: 3}
	h.engine.mu.Unlock()

	require.NoError(t, h.engine.HandleCommand(ctx, schemas.Command{Action: schemas.ActionResume}))
	sess := h.engine.Session()
	assert.False(t, sess.Paused)
	assert.True(t, sess.Loop.IsZero(), "resume clears the loop counters")
	assert.Equal(t, schemas.StatusRunning, h.sink.last().Kind)

	assert.Equal(t, 1, h.drain(ctx))
	assert.Equal(t, []mocks.Action{{Kind: "click", Target: "nieuwe-aanvraag-link"}}, h.page.Actions())
	assert.Equal(t, steps.NieuweAanvraagClicked, h.persisted(t))

	loaded, ok, err := h.repo.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, loaded.Paused)
}

// quotaKV rejects writes to one key, the way a full sessionStorage does.
type quotaKV struct {
	*store.Memory
	key string
}

func (q *quotaKV) Set(ctx context.Context, key, value string) error {
	if key == q.key {
		return errors.New("QuotaExceededError: the quota has been exceeded")
	}
	return q.Memory.Set(ctx, key, value)
}

func TestEngine_StartNotPersisted(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	h := newHarnessOn(t, "start", testConfig(), mem, &quotaKV{Memory: mem, key: session.DefaultKeyPrefix + "config"})

	err := h.engine.HandleCommand(ctx, schemas.Command{
		Action: schemas.ActionStartAutomation,
		Config: applicantConfig(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QuotaExceededError")
	assert.Nil(t, h.engine.Session(), "an unpersisted session is never installed")
	assert.Equal(t, schemas.StatusError, h.sink.last().Kind)
	assert.Zero(t, mem.Len())

	// The next document load finds no session to drive.
	h.engine.Trigger(Trigger{Source: SourcePageLoad, Generation: 1})
	assert.Equal(t, 1, h.drain(ctx))
	assert.Empty(t, h.page.Actions())
	assert.Zero(t, h.page.Snapshots())
}

func TestEngine_ContinuationsRequireActiveSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "start", testConfig())
	start(t, h)
	sess := h.engine.Session()
	require.NotNil(t, sess)

	require.NoError(t, h.engine.HandleCommand(ctx, schemas.Command{Action: schemas.ActionPause}))
	assert.Zero(t, h.engine.scheduleFor(sess.ID, time.Minute, SourceRetry), "paused sessions get no continuations")
	assert.Zero(t, h.timers.Pending())

	require.NoError(t, h.engine.HandleCommand(ctx, schemas.Command{Action: schemas.ActionResume}))
	assert.Zero(t, h.engine.scheduleFor("another-session", time.Minute, SourceRetry))
	assert.NotZero(t, h.engine.scheduleFor(sess.ID, time.Minute, SourceRetry))
	assert.Equal(t, 1, h.timers.Pending())
}

func TestEngine_CommandsWithoutSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "start", testConfig())
	assert.ErrorIs(t, h.engine.HandleCommand(ctx, schemas.Command{Action: schemas.ActionPause}), ErrNoSession)
	assert.ErrorIs(t, h.engine.HandleCommand(ctx, schemas.Command{Action: schemas.ActionResume}), ErrNoSession)
	assert.ErrorIs(t, h.engine.HandleCommand(ctx, schemas.Command{Action: schemas.ActionStop}), ErrNoSession)
	assert.Error(t, h.engine.HandleCommand(ctx, schemas.Command{Action: schemas.ActionStartAutomation}), "start needs a config")
	assert.Error(t, h.engine.HandleCommand(ctx, schemas.Command{Action: "reboot"}))

	h.engine.Trigger(Trigger{Source: SourceRetry})
	assert.Equal(t, 1, h.drain(ctx))
	assert.Zero(t, h.page.Snapshots())
}

func TestEngine_LifecycleGenerations(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "start", testConfig())

	h.engine.fallback = h.engine.schedule(time.Minute, SourceNavigationFallback)
	require.Equal(t, 1, h.timers.Pending())

	h.engine.handleTrigger(ctx, Trigger{Source: SourceDOMReady, Generation: 3})
	assert.Zero(t, h.timers.Pending(), "a new document cancels the fallback")
	assert.Equal(t, uint64(3), h.engine.lastGeneration)

	h.engine.fallback = h.engine.schedule(time.Minute, SourceNavigationFallback)
	h.engine.handleTrigger(ctx, Trigger{Source: SourcePageLoad, Generation: 3})
	assert.Equal(t, 1, h.timers.Pending(), "load after DOM-ready of the same document is ignored")

	h.engine.handleTrigger(ctx, Trigger{Source: SourceRetry})
	assert.Equal(t, 1, h.timers.Pending(), "internal triggers leave the fallback alone")
}

func TestEngine_MissingInputPauses(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "declarations_done", testConfig())
	require.NoError(t, h.engine.HandleCommand(ctx, schemas.Command{
		Action: schemas.ActionStartAutomation,
		Config: &schemas.AutomationConfig{},
	}))
	h.drain(ctx)

	sess := h.engine.Session()
	require.NotNil(t, sess)
	assert.True(t, sess.Paused)
	assert.Equal(t, steps.DeclarationsDone, sess.CurrentStep)
	assert.Equal(t, schemas.StatusManualIntervention, h.sink.last().Kind)
	assert.Contains(t, h.sink.last().Line, "applicant.initials")
	assert.Zero(t, h.timers.Pending(), "no retry after a halt")
	assert.Zero(t, h.page.Mutations())
}

func TestEngine_CompletesAtTerms(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "terms_acceptance_reached", testConfig())
	start(t, h)
	h.drain(ctx)

	assert.Nil(t, h.engine.Session(), "the session ends at the terminal stage")
	assert.Zero(t, h.kv.Len())
	last := h.sink.last()
	assert.Equal(t, schemas.StatusCompleted, last.Kind)
	assert.Equal(t, steps.TermsAcceptanceReached.String(), last.CurrentStep)
	assert.Contains(t, last.Line, "submit it yourself")
	assert.Zero(t, h.page.Mutations(), "the application is never submitted")
}

func TestEngine_SnapshotFailureRetries(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.RetryDelay = time.Minute
	h := newHarness(t, "start", cfg)
	h.page.FailSnapshots(errors.New("target closed"))
	start(t, h)
	h.drain(ctx)

	assert.Equal(t, schemas.StatusWaiting, h.sink.last().Kind)
	assert.Equal(t, 1, h.timers.Pending())
}

func TestEngine_UnknownPageWaits(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.RetryDelay = time.Minute
	h := newHarness(t, "unknown", cfg)
	start(t, h)
	require.NoError(t, h.repo.SaveStep(ctx, steps.AddressDone))
	h.drain(ctx)

	st := h.sink.last()
	assert.Equal(t, schemas.StatusWaiting, st.Kind)
	assert.Equal(t, steps.Unknown.String(), st.DetectedStep)
	assert.Equal(t, steps.AddressDone, h.persisted(t), "an unrecognised page keeps the persisted stage")
}

func TestEngine_ManualFill(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "declarations_done", testConfig())
	require.NoError(t, h.engine.HandleCommand(ctx, schemas.Command{
		Action: schemas.ActionFillCurrentPage,
		Config: applicantConfig(),
	}))
	assert.Equal(t, 1, h.drain(ctx))

	assert.Equal(t, "Filled 5 fields on this page", h.sink.last().Line)
	assert.Nil(t, h.engine.Session(), "manual fill does not create a session")
	assert.Zero(t, h.kv.Len())

	require.NoError(t, h.engine.HandleCommand(ctx, schemas.Command{Action: schemas.ActionFillCurrentPage}))
	h.drain(ctx)
	assert.Equal(t, schemas.StatusError, h.sink.last().Kind, "nothing to fill with")
}

func TestEngine_ToggleDetailView(t *testing.T) {
	h := newHarness(t, "start", testConfig())
	sink := new(mocks.MockStatusSink)
	h.engine.sink = sink
	sink.On("Publish", mock.MatchedBy(func(st schemas.Status) bool {
		return st.DetailView && st.Kind == schemas.StatusIdle
	})).Once()

	require.NoError(t, h.engine.HandleCommand(context.Background(), schemas.Command{Action: schemas.ActionToggleDetailView}))
	sink.AssertExpectations(t)
	assert.True(t, h.engine.Status().DetailView)
}

func TestEngine_Restore(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing persisted", func(t *testing.T) {
		h := newHarness(t, "start", testConfig())
		ok, err := h.engine.Restore(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("paused session stays paused", func(t *testing.T) {
		h := newHarness(t, "start", testConfig())
		s := session.New(applicantConfig())
		s.Paused = true
		s.CurrentStep = steps.AddressDone
		require.NoError(t, h.repo.Save(ctx, s))

		ok, err := h.engine.Restore(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, schemas.StatusPaused, h.sink.last().Kind)
		assert.Zero(t, h.drain(ctx))
	})

	t.Run("active session resumes", func(t *testing.T) {
		h := newHarness(t, "start", testConfig())
		require.NoError(t, h.repo.Save(ctx, session.New(applicantConfig())))

		ok, err := h.engine.Restore(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, h.drain(ctx))
		assert.Equal(t, steps.NieuweAanvraagClicked, h.persisted(t))
	})
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	sink.Publish(schemas.Status{Kind: schemas.StatusRunning, Line: "Running: regelingen", CurrentStep: "nieuwe_aanvraag_clicked"})
	sink.Publish(schemas.Status{Kind: schemas.StatusManualIntervention, Line: "Manual intervention required", DetailView: true, DetectedStep: "unknown"})

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "Running: regelingen", entries[0].Message)
	assert.NotContains(t, entries[0].ContextMap(), "detected_step")
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "unknown", entries[1].ContextMap()["detected_step"])
}

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	MultiSink{a, nil, b}.Publish(schemas.Status{Kind: schemas.StatusStopped})
	assert.Equal(t, schemas.StatusStopped, a.last().Kind)
	assert.Equal(t, schemas.StatusStopped, b.last().Kind)
}
