package logger

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/midijack/sdk/contracts"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger implements contracts.Logger on top of Uber's zap.
type ZapLogger struct {
	mu     sync.RWMutex
	logger *zap.Logger
	level  atomic.Int32 // contracts.LogLevel
}

// NewZapLogger creates a logger writing JSON to stderr with the production config.
func NewZapLogger() contracts.Logger {
	l, err := newProduction()
	if err != nil {
		l = zap.NewNop()
	}
	return NewFromZap(l)
}

// NewFromZap wraps an existing zap logger. Level filtering happens in the wrapper,
// so the core should accept every level.
func NewFromZap(l *zap.Logger) *ZapLogger {
	z := &ZapLogger{logger: l.WithOptions(zap.AddCallerSkip(2))}
	z.level.Store(int32(contracts.InfoLevel))
	return z
}

func newProduction(outputPaths ...string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	if len(outputPaths) > 0 {
		cfg.OutputPaths = outputPaths
	}
	return cfg.Build()
}

// Info logs a message at the INFO level
func (z *ZapLogger) Info(msg string, fields ...contracts.Field) {
	z.log(contracts.InfoLevel, msg, fields...)
}

// Error logs a message at the ERROR level
func (z *ZapLogger) Error(msg string, fields ...contracts.Field) {
	z.log(contracts.ErrorLevel, msg, fields...)
}

// Debug logs a message at the DEBUG level
func (z *ZapLogger) Debug(msg string, fields ...contracts.Field) {
	z.log(contracts.DebugLevel, msg, fields...)
}

// Warn logs a message at the WARN level
func (z *ZapLogger) Warn(msg string, fields ...contracts.Field) {
	z.log(contracts.WarnLevel, msg, fields...)
}

// Fatal logs a message at the FATAL level and terminates the application
func (z *ZapLogger) Fatal(msg string, fields ...contracts.Field) {
	z.log(contracts.FatalLevel, msg, fields...)
}

// Field returns a new instance of Field
func (z *ZapLogger) Field() contracts.Field {
	return &zapField{}
}

// SetLevel sets the logging level
func (z *ZapLogger) SetLevel(level contracts.LogLevel) {
	z.level.Store(int32(level))
}

// SetDestination redirects output. FileLog requires a path; ConsoleLog goes back to stderr.
func (z *ZapLogger) SetDestination(dest contracts.LogDestination, filePath ...string) {
	var paths []string
	if dest == contracts.FileLog {
		if len(filePath) == 0 || filePath[0] == "" {
			z.Warn("File log destination requested without a path; keeping current destination")
			return
		}
		paths = []string{filePath[0]}
	}

	l, err := newProduction(paths...)
	if err != nil {
		z.Error("Failed to switch log destination", z.Field().Error("error", err))
		return
	}

	z.mu.Lock()
	old := z.logger
	z.logger = l.WithOptions(zap.AddCallerSkip(2))
	z.mu.Unlock()
	_ = old.Sync()
}

// Sync flushes buffered log entries.
func (z *ZapLogger) Sync() error {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.logger.Sync()
}

func (z *ZapLogger) log(level contracts.LogLevel, msg string, fields ...contracts.Field) {
	if contracts.LogLevel(z.level.Load()) > level {
		return
	}

	z.mu.RLock()
	l := z.logger
	z.mu.RUnlock()

	zf := toZapFields(fields...)
	switch level {
	case contracts.DebugLevel:
		l.Debug(msg, zf...)
	case contracts.InfoLevel:
		l.Info(msg, zf...)
	case contracts.WarnLevel:
		l.Warn(msg, zf...)
	case contracts.ErrorLevel:
		l.Error(msg, zf...)
	case contracts.FatalLevel:
		l.Fatal(msg, zf...)
	}
}

func toZapFields(fields ...contracts.Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		if f, ok := field.(*zapField); ok && f.key != "" {
			out = append(out, zap.Any(f.key, f.value))
		}
	}
	return out
}

// zapField implements contracts.Field
type zapField struct {
	key   string
	value interface{}
}

func (f *zapField) Bool(key string, val bool) contracts.Field {
	return &zapField{key, val}
}

func (f *zapField) Int(key string, val int) contracts.Field {
	return &zapField{key, val}
}

func (f *zapField) Int32(key string, val int32) contracts.Field {
	return &zapField{key, val}
}

func (f *zapField) Float64(key string, val float64) contracts.Field {
	return &zapField{key, val}
}

func (f *zapField) String(key string, val string) contracts.Field {
	return &zapField{key, val}
}

func (f *zapField) Time(key string, val time.Time) contracts.Field {
	return &zapField{key, val}
}

func (f *zapField) Int64(key string, val int64) contracts.Field {
	return &zapField{key, val}
}

func (f *zapField) Error(key string, val error) contracts.Field {
	return &zapField{key, val}
}

func (f *zapField) Uint64(key string, val uint64) contracts.Field {
	return &zapField{key, val}
}

func (f *zapField) Uint8(key string, val uint8) contracts.Field {
	return &zapField{key, val}
}
