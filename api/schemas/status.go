package schemas

import "time"

// StatusKind classifies a status update so a panel can tell benign waiting
// apart from situations that need the operator.
type StatusKind string

const (
	StatusIdle               StatusKind = "idle"
	StatusRunning            StatusKind = "running"
	StatusWaiting            StatusKind = "waiting"
	StatusManualIntervention StatusKind = "manual_intervention"
	StatusPaused             StatusKind = "paused"
	StatusStopped            StatusKind = "stopped"
	StatusCompleted          StatusKind = "completed"
	StatusError              StatusKind = "error"
)

// Status is the status-line/current-step/detected-step triple consumed by the
// status panel.
type Status struct {
	Line         string     `json:"line"`
	Kind         StatusKind `json:"kind"`
	CurrentStep  string     `json:"currentStep"`
	DetectedStep string     `json:"detectedStep"`
	DetailView   bool       `json:"detailView"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Actionable reports whether the operator has to do something.
func (s Status) Actionable() bool {
	return s.Kind == StatusManualIntervention || s.Kind == StatusError
}
