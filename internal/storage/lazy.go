package storage

import "sync"

// LazyWriter defers opening a sink until the first event arrives. When open
// fails (returns nil) every event is dropped.
type LazyWriter struct {
	open   func() EventWriter
	once   sync.Once
	writer EventWriter
}

// NewLazyWriter creates a LazyWriter around open.
func NewLazyWriter(open func() EventWriter) *LazyWriter {
	return &LazyWriter{open: open}
}

func (w *LazyWriter) Write(event *SecurityEvent) {
	w.once.Do(func() { w.writer = w.open() })
	if w.writer != nil {
		w.writer.Write(event)
	}
}

// Close closes the sink if it was opened. A sink never opened stays closed.
func (w *LazyWriter) Close() {
	w.once.Do(func() {})
	if w.writer != nil {
		w.writer.Close()
	}
}
