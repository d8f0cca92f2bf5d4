package testutils

import (
	"sync"

	"github.com/evdnx/gosignal/logger"
)

// logEntry captures a single log invocation for inspection in tests.
type logEntry struct {
	level  string
	msg    string
	fields []logger.Field
}

// MockLogger implements logger.Logger but stores entries in-memory. It is
// safe to share with background goroutines.
type MockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

// NewMockLogger returns a logger that records everything.
func NewMockLogger() *MockLogger { return &MockLogger{} }

func (l *MockLogger) record(level, msg string, fields ...logger.Field) {
	copiedFields := append([]logger.Field(nil), fields...)
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: copiedFields})
	l.mu.Unlock()
}

func (l *MockLogger) Debug(msg string, fields ...logger.Field) {
	l.record("debug", msg, fields...)
}
func (l *MockLogger) Info(msg string, fields ...logger.Field) {
	l.record("info", msg, fields...)
}
func (l *MockLogger) Warn(msg string, fields ...logger.Field) {
	l.record("warn", msg, fields...)
}
func (l *MockLogger) Error(msg string, fields ...logger.Field) {
	l.record("error", msg, fields...)
}

// LastMessage returns the message associated with the most recent log entry.
func (l *MockLogger) LastMessage() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return ""
	}
	return l.entries[len(l.entries)-1].msg
}

// Messages returns every message logged at level, oldest first. An empty
// level matches all entries.
func (l *MockLogger) Messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.entries {
		if level == "" || e.level == level {
			out = append(out, e.msg)
		}
	}
	return out
}

// Logged reports whether msg was logged at any level.
func (l *MockLogger) Logged(msg string) bool {
	for _, m := range l.Messages("") {
		if m == msg {
			return true
		}
	}
	return false
}

// Fields returns the fields of the most recent entry with msg.
func (l *MockLogger) Fields(msg string) []logger.Field {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].msg == msg {
			return l.entries[i].fields
		}
	}
	return nil
}
