// internal/detector/detector.go
package detector

import (
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/isde-autofill/internal/browser/dom"
	"github.com/xkilldash9x/isde-autofill/internal/steps"
)

// ErrDetectionAmbiguous is logged when no fingerprint matched the page. It is
// informational: callers receive steps.Unknown and fall back on persisted state.
var ErrDetectionAmbiguous = errors.New("no stage fingerprint matched the page")

// Rule is one fingerprint: a predicate over a DOM snapshot for a stage.
type Rule struct {
	Step  steps.ID
	Match func(s *dom.Snapshot) bool
}

// Detector evaluates an ordered list of rules and reports the first match.
type Detector struct {
	logger *zap.Logger
	rules  []Rule
}

// New returns a detector using the portal's fingerprint table.
func New(logger *zap.Logger) *Detector {
	return NewWithRules(logger, DefaultRules())
}

// NewWithRules returns a detector over a custom, already ordered, rule list.
func NewWithRules(logger *zap.Logger, rules []Rule) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		logger: logger.Named("detector"),
		rules:  rules,
	}
}

// Detect returns the stage of the page in s, or steps.Unknown. It has no side
// effects besides logging.
func (d *Detector) Detect(s *dom.Snapshot) steps.ID {
	if s == nil {
		return steps.Unknown
	}
	for _, r := range d.rules {
		if r.Match(s) {
			d.logger.Debug("Stage detected.", zap.String("step", r.Step.String()), zap.String("url", s.URL))
			return r.Step
		}
	}
	d.logger.Debug("Stage detection inconclusive.", zap.String("url", s.URL), zap.String("title", s.Title), zap.Error(ErrDetectionAmbiguous))
	return steps.Unknown
}

// Candidates returns every stage whose rule matches s, in priority order.
// Used for diagnostics; Detect returns the first element.
func (d *Detector) Candidates(s *dom.Snapshot) []steps.ID {
	var out []steps.ID
	if s == nil {
		return out
	}
	for _, r := range d.rules {
		if r.Match(s) {
			out = append(out, r.Step)
		}
	}
	return out
}

// Rules returns a copy of the rule table.
func (d *Detector) Rules() []Rule {
	out := make([]Rule, len(d.rules))
	copy(out, d.rules)
	return out
}
