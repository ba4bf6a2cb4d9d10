package logger

import (
	"strings"
	"sync"
)

// TestLogger is a Logger implementation for tests that captures messages
// instead of writing them anywhere.
type TestLogger struct {
	mu       sync.Mutex
	messages []LogMessage
	fields   map[string]interface{}
}

// LogMessage represents a captured log message
type LogMessage struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// NewTestLogger creates a new test logger
func NewTestLogger() *TestLogger {
	return &TestLogger{
		fields: make(map[string]interface{}),
	}
}

// Messages returns a copy of all captured messages
func (l *TestLogger) Messages() []LogMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

// HasMessage reports whether any captured message contains the substring
// at the given level. Level "" matches any level.
func (l *TestLogger) HasMessage(level, substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if level != "" && m.Level != level {
			continue
		}
		if strings.Contains(m.Message, substr) {
			return true
		}
	}
	return false
}

func (l *TestLogger) log(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	l.messages = append(l.messages, LogMessage{
		Level:   level,
		Message: msg,
		Fields:  merged,
	})
}

func (l *TestLogger) Debug(msg string) { l.log("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.log("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.log("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.log("ERROR", msg, nil) }
func (l *TestLogger) Fatal(msg string) { l.log("FATAL", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.log("DEBUG", msg, fields)
}

func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.log("ERROR", msg, fields)
}

// WithField returns a test logger that attaches the field to every message.
// Captured messages are shared with the parent logger.
func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a test logger that attaches the fields to every message
func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	child := &fieldsTestLogger{parent: l, fields: make(map[string]interface{}, len(l.fields)+len(fields))}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for k, v := range fields {
		child.fields[k] = v
	}
	return child
}

// WithError attaches an error field to the logger
func (l *TestLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// fieldsTestLogger is a child view over a TestLogger with bound fields
type fieldsTestLogger struct {
	parent *TestLogger
	fields map[string]interface{}
}

func (f *fieldsTestLogger) Debug(msg string) { f.parent.log("DEBUG", msg, f.fields) }
func (f *fieldsTestLogger) Info(msg string)  { f.parent.log("INFO", msg, f.fields) }
func (f *fieldsTestLogger) Warn(msg string)  { f.parent.log("WARN", msg, f.fields) }
func (f *fieldsTestLogger) Error(msg string) { f.parent.log("ERROR", msg, f.fields) }
func (f *fieldsTestLogger) Fatal(msg string) { f.parent.log("FATAL", msg, f.fields) }

func (f *fieldsTestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	f.parent.log("DEBUG", msg, f.merge(fields))
}

func (f *fieldsTestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	f.parent.log("INFO", msg, f.merge(fields))
}

func (f *fieldsTestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	f.parent.log("WARN", msg, f.merge(fields))
}

func (f *fieldsTestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	f.parent.log("ERROR", msg, f.merge(fields))
}

func (f *fieldsTestLogger) WithField(key string, value interface{}) Logger {
	return f.WithFields(map[string]interface{}{key: value})
}

func (f *fieldsTestLogger) WithFields(fields map[string]interface{}) Logger {
	child := &fieldsTestLogger{parent: f.parent, fields: f.merge(fields)}
	return child
}

func (f *fieldsTestLogger) WithError(err error) Logger {
	if err == nil {
		return f
	}
	return f.WithField("error", err.Error())
}

func (f *fieldsTestLogger) merge(fields map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(f.fields)+len(fields))
	for k, v := range f.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return merged
}
