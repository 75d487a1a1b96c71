// internal/executor/errors.go
package executor

import (
	"fmt"
	"time"

	"github.com/xkilldash9x/isde-autofill/internal/browser/dom"
	"github.com/xkilldash9x/isde-autofill/internal/steps"
)

// ElementNotFoundError reports that a wait-for-element timed out. The stage is
// not advanced; repetition is bounded by the loop guard.
type ElementNotFoundError struct {
	Target  dom.Target
	Timeout time.Duration
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element %s not found within %s", e.Target, e.Timeout)
}

// MissingInputError reports that a stage needs data the applicant record lacks.
// The session halts and asks the operator for input.
type MissingInputError struct {
	Step  steps.ID
	Field string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("stage %s requires %s, which is missing from the applicant record", e.Step, e.Field)
}

// UploadError reports a failed file injection.
type UploadError struct {
	Document string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("failed to upload %s: %v", e.Document, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// UnexpectedError wraps a panic recovered from a stage handler.
type UnexpectedError struct {
	Step  steps.ID
	Value any
	Stack []byte
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected failure in stage %s: %v", e.Step, e.Value)
}
