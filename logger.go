package shield

import (
	"log"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Logger is the minimal structured logging interface the layer emits to.
// keysAndValues are alternating keys and values, zap-sugared style.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// DebugConfig controls per-stage debug logging. Logging is off unless both
// Enabled and the stage flag are set and a Logger is configured.
type DebugConfig struct {
	Enabled bool

	LogCalls     bool
	LogRetries   bool
	LogRateLimit bool
	LogCircuit   bool
	LogDedup     bool
	LogCache     bool

	// CallIDGen produces the correlation ID attached to a call's log lines
	// and errors.
	CallIDGen func() string
}

// DefaultDebugConfig enables every stage flag (gated by Enabled) and uses
// UUID call IDs.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		LogCalls:     true,
		LogRetries:   true,
		LogRateLimit: true,
		LogCircuit:   true,
		LogDedup:     true,
		LogCache:     true,
		CallIDGen:    uuid.NewString,
	}
}

// SimpleLogger writes key/value pairs through the standard library logger.
// Meant for examples and tests; production callers should use NewZapLogger.
type SimpleLogger struct {
	logger *log.Logger
}

// NewSimpleLogger creates a console logger on stderr.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{
		logger: log.New(os.Stderr, "shield: ", log.LstdFlags|log.Lmicroseconds),
	}
}

func (l *SimpleLogger) Debug(msg string, keysAndValues ...any) { l.print("DEBUG", msg, keysAndValues) }
func (l *SimpleLogger) Info(msg string, keysAndValues ...any)  { l.print("INFO", msg, keysAndValues) }
func (l *SimpleLogger) Warn(msg string, keysAndValues ...any)  { l.print("WARN", msg, keysAndValues) }
func (l *SimpleLogger) Error(msg string, keysAndValues ...any) { l.print("ERROR", msg, keysAndValues) }

func (l *SimpleLogger) print(level, msg string, keysAndValues []any) {
	args := make([]any, 0, 2+len(keysAndValues))
	args = append(args, level, msg)
	args = append(args, keysAndValues...)
	l.logger.Println(args...)
}

// zapLogger adapts a zap logger to the Logger interface.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger adapts a *zap.Logger for use as the client's Logger.
func NewZapLogger(logger *zap.Logger) Logger {
	return &zapLogger{sugar: logger.Sugar()}
}

func (l *zapLogger) Debug(msg string, keysAndValues ...any) { l.sugar.Debugw(msg, keysAndValues...) }
func (l *zapLogger) Info(msg string, keysAndValues ...any)  { l.sugar.Infow(msg, keysAndValues...) }
func (l *zapLogger) Warn(msg string, keysAndValues ...any)  { l.sugar.Warnw(msg, keysAndValues...) }
func (l *zapLogger) Error(msg string, keysAndValues ...any) { l.sugar.Errorw(msg, keysAndValues...) }
