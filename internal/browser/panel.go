// internal/browser/panel.go
package browser

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/isde-autofill/api/schemas"
)

const panelTimeout = 2 * time.Second

// StatusPanel renders engine status into an overlay on the page. Renders that
// race a navigation are lost; Refresh redraws the last status on the next
// document.
type StatusPanel struct {
	tab    *Tab
	logger *zap.Logger

	mu   sync.Mutex
	last *schemas.Status
}

func NewStatusPanel(tab *Tab, logger *zap.Logger) *StatusPanel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusPanel{tab: tab, logger: logger.Named("panel")}
}

// Publish implements the engine's status sink.
func (p *StatusPanel) Publish(status schemas.Status) {
	p.mu.Lock()
	p.last = &status
	p.mu.Unlock()
	p.render(context.Background(), status)
}

// Refresh redraws the last published status.
func (p *StatusPanel) Refresh(ctx context.Context) {
	p.mu.Lock()
	last := p.last
	p.mu.Unlock()
	if last != nil {
		p.render(ctx, *last)
	}
}

func (p *StatusPanel) render(ctx context.Context, status schemas.Status) {
	ctx, cancel := context.WithTimeout(ctx, panelTimeout)
	defer cancel()
	var drawn bool
	if err := p.tab.evaluate(ctx, "renderStatus", &drawn, status); err != nil {
		p.logger.Debug("Could not render status panel.", zap.Error(err))
		return
	}
	if !drawn {
		p.logger.Debug("Document has no body yet, status panel deferred.")
	}
}
