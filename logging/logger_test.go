package logging

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldConstructors(t *testing.T) {
	tests := []struct {
		name    string
		field   Field
		wantKey string
	}{
		{"String", String("name", "test"), "name"},
		{"Int", Int("count", 123), "count"},
		{"Int64", Int64("id", int64(456)), "id"},
		{"Uint64", Uint64("timestamp", uint64(789)), "timestamp"},
		{"Float64", Float64("price", 12.34), "price"},
		{"Bool", Bool("active", true), "active"},
		{"Any", Any("data", map[string]int{"a": 1}), "data"},
		{"Error", Error(errors.New("test error")), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKey, tt.field.Key)
			assert.NotNil(t, tt.field.Value)
		})
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string", "test", "test"},
		{"error", errors.New("error message"), "error message"},
		{"int", 123, "123"},
		{"bool", true, "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatValue(tt.value))
		})
	}
}

func TestNewStdLogger(t *testing.T) {
	logger := NewStdLogger("test-prefix")
	require.NotNil(t, logger)
	assert.Equal(t, "test-prefix", logger.prefix)
	assert.NotNil(t, logger.fields)
}

func withCapturedLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(nil) })
	return &buf
}

func TestStdLoggerDebug(t *testing.T) {
	buf := withCapturedLog(t)
	logger := NewStdLogger("test")

	logger.Debug(context.Background(), "debug message", String("key", "value"))

	output := buf.String()
	assert.Contains(t, output, "[DEBUG]")
	assert.Contains(t, output, "debug message")
	assert.Contains(t, output, "key=value")
}

func TestStdLoggerInfo(t *testing.T) {
	buf := withCapturedLog(t)
	logger := NewStdLogger("test")

	logger.Info(context.Background(), "info message", Int("count", 123))

	output := buf.String()
	assert.Contains(t, output, "[INFO]")
	assert.Contains(t, output, "info message")
	assert.Contains(t, output, "count=123")
}

func TestStdLoggerWarn(t *testing.T) {
	buf := withCapturedLog(t)
	logger := NewStdLogger("test")

	logger.Warn(context.Background(), "warn message", Bool("critical", true))

	output := buf.String()
	assert.Contains(t, output, "[WARN]")
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "critical=true")
}

func TestStdLoggerError(t *testing.T) {
	buf := withCapturedLog(t)
	logger := NewStdLogger("test")

	logger.Error(context.Background(), "error message", Error(errors.New("test error")))

	output := buf.String()
	assert.Contains(t, output, "[ERROR]")
	assert.Contains(t, output, "error message")
	assert.Contains(t, output, "error=test error")
}

func TestStdLoggerWithFields(t *testing.T) {
	buf := withCapturedLog(t)
	logger := NewStdLogger("test")
	loggerWithFields := logger.WithFields(
		String("module", "auth"),
		String("user", "admin"),
	)

	loggerWithFields.Info(context.Background(), "login", String("ip", "192.168.1.1"))

	output := buf.String()
	assert.Contains(t, output, "module=auth")
	assert.Contains(t, output, "user=admin")
	assert.Contains(t, output, "ip=192.168.1.1")
}

func TestStdLoggerWithFieldsDoesNotMutateReceiver(t *testing.T) {
	logger := NewStdLogger("test")
	originalCount := len(logger.fields)

	loggerWithFields := logger.WithFields(String("key", "value"))

	assert.Len(t, logger.fields, originalCount, "WithFields must not mutate the receiver")

	newLogger, ok := loggerWithFields.(*StdLogger)
	require.True(t, ok)
	assert.Len(t, newLogger.fields, originalCount+1)
}

func TestNoopLogger(t *testing.T) {
	logger := NewNoopLogger()
	ctx := context.Background()

	assert.NotPanics(t, func() {
		logger.Debug(ctx, "test")
		logger.Info(ctx, "test")
		logger.Warn(ctx, "test")
		logger.Error(ctx, "test")
	})

	assert.Same(t, logger, logger.WithFields(String("key", "value")))
}

func TestGlobalLogger(t *testing.T) {
	original := GetLogger()
	defer SetLogger(original)

	testLogger := NewNoopLogger()
	SetLogger(testLogger)

	assert.Same(t, testLogger, GetLogger())
}

func TestStdLoggerMultipleFields(t *testing.T) {
	buf := withCapturedLog(t)
	logger := NewStdLogger("test")

	logger.Info(context.Background(), "complex log",
		String("str", "value"),
		Int("int", 123),
		Int64("int64", int64(456)),
		Bool("bool", true),
		Float64("float", 12.34),
	)

	output := buf.String()
	for _, want := range []string{"str=value", "int=123", "int64=456", "bool=true", "float=12.34"} {
		assert.Contains(t, output, want)
	}
}

func TestStdLoggerEmptyPrefix(t *testing.T) {
	buf := withCapturedLog(t)
	logger := NewStdLogger("")

	logger.Info(context.Background(), "message")

	assert.Contains(t, buf.String(), "message")
}

func TestILoggerInterfaceSatisfiedByBothImplementations(t *testing.T) {
	var _ ILogger = (*StdLogger)(nil)
	var _ ILogger = (*NoopLogger)(nil)

	buf := withCapturedLog(t)
	ctx := context.Background()

	loggers := []ILogger{NewStdLogger("test"), NewNoopLogger()}
	for _, logger := range loggers {
		logger.Debug(ctx, "test")
		logger.Info(ctx, "test")
		logger.Warn(ctx, "test")
		logger.Error(ctx, "test")
		logger.WithFields(String("key", "value"))
	}
	_ = buf
}

func BenchmarkStdLoggerInfo(b *testing.B) {
	logger := NewStdLogger("bench")
	ctx := context.Background()
	log.SetOutput(&bytes.Buffer{})
	defer log.SetOutput(nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info(ctx, "benchmark message", String("key", "value"))
	}
}

func BenchmarkStdLoggerWithFields(b *testing.B) {
	logger := NewStdLogger("bench")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.WithFields(
			String("key1", "value1"),
			String("key2", "value2"),
			Int("count", 123),
		)
	}
}

func BenchmarkNoopLoggerInfo(b *testing.B) {
	logger := NewNoopLogger()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info(ctx, "benchmark message", String("key", "value"))
	}
}
