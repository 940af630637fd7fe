// Package logging provides a small structured logging abstraction.
package logging

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Level is a log severity.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// ILogger is the logging interface every component depends on.
type ILogger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// WithFields returns a new logger with fields merged in permanently.
	WithFields(fields ...Field) ILogger
	// WithField is sugar for WithFields with a single key/value.
	WithField(key string, value any) ILogger
}

// Field is a structured log field.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field       { return Field{Key: key, Value: value} }
func Int(key string, value int) Field      { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field  { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field    { return Field{Key: key, Value: value} }
func Any(key string, value any) Field      { return Field{Key: key, Value: value} }
func Error(err error) Field                { return Field{Key: "error", Value: err} }
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// StdLogger is the standard-library-backed ILogger implementation.
type StdLogger struct {
	prefix string
	fields []Field
}

// NewStdLogger creates a logger with the given prefix (service/component name).
func NewStdLogger(prefix string) *StdLogger {
	return &StdLogger{prefix: prefix, fields: make([]Field, 0)}
}

// format produces "prefix [component] event=... msg key=value...", pulling
// component/event out to the front since they're the fields most useful for
// scanning a saga's log stream.
func (l *StdLogger) format(msg string, fields ...Field) string {
	allFields := append(append([]Field{}, l.fields...), fields...)

	var component, event string
	otherFields := make([]Field, 0, len(allFields))

	for _, f := range allFields {
		switch f.Key {
		case "component":
			component = formatValue(f.Value)
		case "event":
			event = formatValue(f.Value)
		default:
			otherFields = append(otherFields, f)
		}
	}

	result := ""
	if l.prefix != "" {
		result += l.prefix
	}
	if component != "" {
		if result != "" {
			result += " "
		}
		result += "[" + component + "]"
	}
	if event != "" {
		if result != "" {
			result += " "
		}
		result += "event=" + event
	}
	if msg != "" {
		if result != "" {
			result += " "
		}
		result += msg
	}
	for _, f := range otherFields {
		result += " " + f.Key + "=" + formatValue(f.Value)
	}

	return result
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		return val.Error()
	default:
		return fmt.Sprint(val)
	}
}

func (l *StdLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	log.Println("[DEBUG]", l.format(msg, fields...))
}

func (l *StdLogger) Info(ctx context.Context, msg string, fields ...Field) {
	log.Println("[INFO]", l.format(msg, fields...))
}

func (l *StdLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	log.Println("[WARN]", l.format(msg, fields...))
}

func (l *StdLogger) Error(ctx context.Context, msg string, fields ...Field) {
	log.Println("[ERROR]", l.format(msg, fields...))
}

func (l *StdLogger) WithFields(fields ...Field) ILogger {
	newFields := make([]Field, len(l.fields)+len(fields))
	copy(newFields, l.fields)
	copy(newFields[len(l.fields):], fields)
	return &StdLogger{prefix: l.prefix, fields: newFields}
}

func (l *StdLogger) WithField(key string, value any) ILogger {
	return l.WithFields(Field{Key: key, Value: value})
}

// NoopLogger discards everything; used in tests that don't care about logs.
type NoopLogger struct{}

func NewNoopLogger() *NoopLogger { return &NoopLogger{} }

func (l *NoopLogger) Debug(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) Info(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Warn(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Error(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) WithFields(fields ...Field) ILogger                    { return l }
func (l *NoopLogger) WithField(key string, value any) ILogger               { return l }

var globalLogger ILogger = NewStdLogger("")

// SetLogger replaces the package-global logger, normally done once at
// process startup.
func SetLogger(logger ILogger) { globalLogger = logger }

// GetLogger returns the package-global logger.
func GetLogger() ILogger { return globalLogger }

// ComponentLogger builds a component-scoped logger off of the global one.
//
// Convention: use this only at the composition root or inside component
// constructors. Runtime call sites should log through the *ILogger field
// the component was constructed with, not by calling GetLogger/ComponentLogger
// directly.
func ComponentLogger(component string) ILogger {
	return GetLogger().WithField("component", component)
}
