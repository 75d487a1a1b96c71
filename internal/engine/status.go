// internal/engine/status.go
package engine

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/isde-autofill/api/schemas"
)

// LogSink writes status changes to the structured log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink logging under the "status" name.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("status")}
}

// Publish implements StatusSink.
func (s *LogSink) Publish(st schemas.Status) {
	fields := []zap.Field{
		zap.String("kind", string(st.Kind)),
		zap.String("current_step", st.CurrentStep),
	}
	if st.DetailView {
		fields = append(fields, zap.String("detected_step", st.DetectedStep), zap.Time("updated_at", st.UpdatedAt))
	}
	if st.Actionable() {
		s.logger.Warn(st.Line, fields...)
		return
	}
	s.logger.Info(st.Line, fields...)
}

// MultiSink fans a status out to several sinks.
type MultiSink []StatusSink

// Publish implements StatusSink.
func (m MultiSink) Publish(st schemas.Status) {
	for _, s := range m {
		if s != nil {
			s.Publish(st)
		}
	}
}
