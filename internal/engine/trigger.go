// internal/engine/trigger.go
package engine

import "github.com/xkilldash9x/isde-autofill/api/schemas"

// Source names what caused a tick.
type Source int

const (
	SourceStart Source = iota
	SourcePageLoad
	SourceDOMReady
	SourceResume
	SourceContinuation
	SourceRetry
	SourceNavigationFallback
	SourceManualFill
)

func (s Source) String() string {
	switch s {
	case SourceStart:
		return "start"
	case SourcePageLoad:
		return "page_load"
	case SourceDOMReady:
		return "dom_ready"
	case SourceResume:
		return "resume"
	case SourceContinuation:
		return "continuation"
	case SourceRetry:
		return "retry"
	case SourceNavigationFallback:
		return "navigation_fallback"
	case SourceManualFill:
		return "manual_fill"
	default:
		return "unknown"
	}
}

// IsPageLifecycle reports whether the trigger came from the page itself.
func (s Source) IsPageLifecycle() bool {
	return s == SourcePageLoad || s == SourceDOMReady
}

// Trigger asks the loop for a tick.
type Trigger struct {
	Source Source
	// Generation identifies the document for lifecycle triggers; DOM-ready
	// and load of one document share it.
	Generation uint64
	// Config is only set for manual fills.
	Config *schemas.AutomationConfig
}
