// internal/browser/lifecycle.go
package browser

import (
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"go.uber.org/zap"
)

// LifecycleKind distinguishes the two document events the engine ticks on.
type LifecycleKind int

const (
	LifecycleDOMReady LifecycleKind = iota
	LifecycleLoad
)

func (k LifecycleKind) String() string {
	if k == LifecycleLoad {
		return "load"
	}
	return "dom_ready"
}

// LifecycleEvent reports that a top-level document reached a ready state.
// Both events of one document carry the same Generation.
type LifecycleEvent struct {
	Kind       LifecycleKind
	Generation uint64
}

// OnLifecycle registers fn for document events. fn runs on the CDP event
// goroutine and must not block.
func (t *Tab) OnLifecycle(fn func(LifecycleEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lifecycle = append(t.lifecycle, fn)
}

// Generation returns the number of the current top-level document.
func (t *Tab) Generation() uint64 { return t.generation.Load() }

func (t *Tab) handleEvent(ev any) {
	switch ev := ev.(type) {
	case *page.EventFrameNavigated:
		if ev.Frame == nil || ev.Frame.ParentID != "" {
			return
		}
		gen := t.generation.Add(1)
		t.logger.Debug("Top-level document changed.", zap.Uint64("generation", gen), zap.String("url", ev.Frame.URL))
	case *page.EventDomContentEventFired:
		t.emit(LifecycleEvent{Kind: LifecycleDOMReady, Generation: t.generation.Load()})
	case *page.EventLoadEventFired:
		t.emit(LifecycleEvent{Kind: LifecycleLoad, Generation: t.generation.Load()})
	case *cdpruntime.EventBindingCalled:
		t.handleBinding(ev)
	}
}

func (t *Tab) emit(ev LifecycleEvent) {
	t.mu.Lock()
	listeners := append(([]func(LifecycleEvent))(nil), t.lifecycle...)
	t.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}
