package storage

import "go.uber.org/zap"

// LogWriter is an EventWriter that emits events as structured log lines.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *SecurityEvent) {
	names := make([]string, len(event.Alerts))
	for i, a := range event.Alerts {
		names[i] = a.Name
	}
	w.logger.Info("security_event",
		zap.String("event_id", event.EventID),
		zap.String("session_id", event.SessionID),
		zap.String("event_type", string(event.EventType)),
		zap.String("tool", event.Tool),
		zap.String("package", event.Package),
		zap.Strings("alerts", names),
		zap.String("reason", event.Reason),
		zap.String("action_taken", event.ActionTaken),
	)
}

func (w *LogWriter) Close() {}

// MultiWriter fans each event out to every writer in order.
type MultiWriter struct {
	writers []EventWriter
}

// NewMultiWriter combines writers, skipping nil entries.
func NewMultiWriter(writers ...EventWriter) *MultiWriter {
	m := &MultiWriter{}
	for _, w := range writers {
		if w != nil {
			m.writers = append(m.writers, w)
		}
	}
	return m
}

func (m *MultiWriter) Write(event *SecurityEvent) {
	for _, w := range m.writers {
		w.Write(event)
	}
}

// Close closes writers in reverse order.
func (m *MultiWriter) Close() {
	for i := len(m.writers) - 1; i >= 0; i-- {
		m.writers[i].Close()
	}
}
