// internal/mocks/page.go
package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/xkilldash9x/isde-autofill/api/schemas"
	"github.com/xkilldash9x/isde-autofill/internal/browser/dom"
)

// Action is one primitive call recorded by FakePage.
type Action struct {
	Kind   string
	Target string
	Value  string
}

func (a Action) String() string {
	if a.Value == "" {
		return fmt.Sprintf("%s %s", a.Kind, a.Target)
	}
	return fmt.Sprintf("%s %s=%q", a.Kind, a.Target, a.Value)
}

// Reaction runs after a recorded action, typically to swap in the snapshot
// of the page the action leads to.
type Reaction func(p *FakePage)

// FakePage is an in-memory executor.Page. It serves a fixed snapshot, checks
// that targets exist in it, records every mutation and runs scripted
// reactions keyed by target name.
type FakePage struct {
	mu          sync.Mutex
	snap        *dom.Snapshot
	actions     []Action
	reactions   map[string]Reaction
	failures    map[string]error
	snapshotErr error
	snapshots   int
}

// NewFakePage serves snap.
func NewFakePage(snap *dom.Snapshot) *FakePage {
	if snap == nil {
		snap = dom.Empty()
	}
	return &FakePage{
		snap:      snap,
		reactions: make(map[string]Reaction),
		failures:  make(map[string]error),
	}
}

// SetSnapshot replaces the served page.
func (p *FakePage) SetSnapshot(s *dom.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap = s
}

// SetHTML parses markup and serves it.
func (p *FakePage) SetHTML(markup string) error {
	s, err := dom.ParseString(markup)
	if err != nil {
		return err
	}
	p.SetSnapshot(s)
	return nil
}

// On registers a reaction to any action on the named target.
func (p *FakePage) On(targetName string, r Reaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reactions[targetName] = r
}

// FailOn makes every action on the named target return err. A nil err
// clears the failure.
func (p *FakePage) FailOn(targetName string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, targetName)
		return
	}
	p.failures[targetName] = err
}

// FailSnapshots makes Snapshot return err.
func (p *FakePage) FailSnapshots(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshotErr = err
}

// Actions returns a copy of the recorded actions.
func (p *FakePage) Actions() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Action, len(p.actions))
	copy(out, p.actions)
	return out
}

// Mutations returns the number of recorded actions.
func (p *FakePage) Mutations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.actions)
}

// Snapshots returns how many snapshots were taken.
func (p *FakePage) Snapshots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshots
}

func (p *FakePage) Snapshot(ctx context.Context) (*dom.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots++
	if p.snapshotErr != nil {
		return nil, p.snapshotErr
	}
	return p.snap, nil
}

func (p *FakePage) Click(ctx context.Context, t dom.Target) error {
	return p.record(ctx, t, "click", "")
}

func (p *FakePage) Fill(ctx context.Context, t dom.Target, value string) error {
	return p.record(ctx, t, "fill", value)
}

func (p *FakePage) Select(ctx context.Context, t dom.Target, label string) error {
	return p.record(ctx, t, "select", label)
}

func (p *FakePage) SetChecked(ctx context.Context, t dom.Target, checked bool) error {
	return p.record(ctx, t, "check", fmt.Sprint(checked))
}

func (p *FakePage) InjectFile(ctx context.Context, t dom.Target, f *schemas.FileAttachment) error {
	return p.record(ctx, t, "inject", f.Name)
}

func (p *FakePage) Dispatch(ctx context.Context, t dom.Target, event string) error {
	return p.record(ctx, t, "dispatch", event)
}

func (p *FakePage) record(ctx context.Context, t dom.Target, kind, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if err, ok := p.failures[t.Name]; ok {
		p.mu.Unlock()
		return err
	}
	if !p.snap.Has(t) {
		p.mu.Unlock()
		return fmt.Errorf("%s %s: %w", kind, t, dom.ErrNoMatch)
	}
	p.actions = append(p.actions, Action{Kind: kind, Target: t.Name, Value: value})
	reaction := p.reactions[t.Name]
	p.mu.Unlock()

	if reaction != nil {
		reaction(p)
	}
	return nil
}
