// internal/browser/binding.go
package browser

import (
	"context"
	"fmt"

	cdpruntime "github.com/chromedp/cdproto/runtime"
	"go.uber.org/zap"
)

// Bind exposes window[name] to every document of the tab. Each call from the
// page hands its string payload to handler on a fresh goroutine, since
// handlers usually talk back to the page.
func (t *Tab) Bind(ctx context.Context, name string, handler func(payload string)) error {
	if name == "" || handler == nil {
		return fmt.Errorf("binding needs a name and a handler")
	}
	t.mu.Lock()
	if t.bindings == nil {
		t.bindings = make(map[string]func(string))
	}
	t.bindings[name] = handler
	t.mu.Unlock()

	if err := t.run(ctx, cdpruntime.AddBinding(name)); err != nil {
		return fmt.Errorf("failed to add binding '%s': %w", name, err)
	}
	return nil
}

func (t *Tab) handleBinding(ev *cdpruntime.EventBindingCalled) {
	t.mu.Lock()
	handler, ok := t.bindings[ev.Name]
	t.mu.Unlock()
	if !ok {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error("Panic in binding handler.", zap.String("name", ev.Name), zap.Any("panic", r))
			}
		}()
		handler(ev.Payload)
	}()
}
