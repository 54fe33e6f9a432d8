package testhelpers

import (
	"sync"

	"github.com/jonesrussell/north-cloud/listings/infrastructure/logger"
)

// LogEntry is one message captured by a RecordingLogger.
type LogEntry struct {
	Level   string
	Message string
	Fields  []logger.Field
}

// Field returns the field named key.
func (e LogEntry) Field(key string) (logger.Field, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return logger.Field{}, false
}

// RecordingLogger keeps every entry in memory. Fatal is recorded and does
// not exit.
type RecordingLogger struct {
	mu      *sync.Mutex
	entries *[]LogEntry
	with    []logger.Field
}

// NewRecordingLogger creates an empty RecordingLogger.
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{mu: &sync.Mutex{}, entries: &[]LogEntry{}}
}

// Entries returns the entries logged at level.
func (l *RecordingLogger) Entries(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []LogEntry
	for _, e := range *l.entries {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

func (l *RecordingLogger) record(level, msg string, fields []logger.Field) {
	all := append(append([]logger.Field{}, l.with...), fields...)
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, LogEntry{Level: level, Message: msg, Fields: all})
}

func (l *RecordingLogger) Debug(msg string, fields ...logger.Field) { l.record("debug", msg, fields) }
func (l *RecordingLogger) Info(msg string, fields ...logger.Field)  { l.record("info", msg, fields) }
func (l *RecordingLogger) Warn(msg string, fields ...logger.Field)  { l.record("warn", msg, fields) }
func (l *RecordingLogger) Error(msg string, fields ...logger.Field) { l.record("error", msg, fields) }
func (l *RecordingLogger) Fatal(msg string, fields ...logger.Field) { l.record("fatal", msg, fields) }

// With returns a logger sharing l's entries with fields attached.
func (l *RecordingLogger) With(fields ...logger.Field) logger.Logger {
	return &RecordingLogger{
		mu:      l.mu,
		entries: l.entries,
		with:    append(append([]logger.Field{}, l.with...), fields...),
	}
}

func (l *RecordingLogger) Sync() error { return nil }
