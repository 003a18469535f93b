package shield

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerForwardsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Info("retry attempt", "dependency", "database", "attempt", 2)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "retry attempt", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)

	fields := entries[0].ContextMap()
	assert.Equal(t, "database", fields["dependency"])
	assert.EqualValues(t, 2, fields["attempt"])
}

func TestZapLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestDebugLoggingEmitsCallLifecycle(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	client := New(
		WithDependencyDefaults(fastDefaults()),
		WithLogger(NewZapLogger(zap.New(core))),
		WithDebug(),
		WithCallIDGenerator(func() string { return "call-001" }),
	)
	require.True(t, client.IsValid())

	_, err := client.Call(context.Background(), "database", func(ctx context.Context) (any, error) {
		return nil, nil
	}, CallOptions{})
	require.NoError(t, err)

	require.NotZero(t, logs.FilterMessage("starting call").Len())
	require.NotZero(t, logs.FilterMessage("call finished").Len())

	start := logs.FilterMessage("starting call").All()[0].ContextMap()
	assert.Equal(t, "call-001", start["callID"])
	assert.Equal(t, "database", start["dependency"])
}

func TestDebugLoggingEmitsRetries(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	client := New(
		WithDependencyDefaults(fastDefaults()),
		WithLogger(NewZapLogger(zap.New(core))),
		WithDebug(),
	)

	var first = true
	_, err := client.Call(context.Background(), "database", func(ctx context.Context) (any, error) {
		if first {
			first = false
			return nil, Transient(errors.New("hiccup"))
		}
		return nil, nil
	}, CallOptions{})
	require.NoError(t, err)

	assert.NotZero(t, logs.FilterMessage("retry attempt").Len())
}

func TestDebugDisabledStaysSilent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	client := New(
		WithDependencyDefaults(fastDefaults()),
		WithLogger(NewZapLogger(zap.New(core))),
	)

	_, err := client.Call(context.Background(), "database", func(ctx context.Context) (any, error) {
		return nil, nil
	}, CallOptions{})
	require.NoError(t, err)

	assert.Zero(t, logs.Len())
}

func TestDebugEnabledRequiresLogger(t *testing.T) {
	client := New(
		WithDependencyDefaults(fastDefaults()),
		WithDebug(),
		WithLogger(nil),
	)

	assert.False(t, client.IsValid())
	assert.ErrorContains(t, client.ValidationError(), "logger")
}

func TestDefaultDebugConfig(t *testing.T) {
	cfg := DefaultDebugConfig()

	assert.False(t, cfg.Enabled)
	assert.True(t, cfg.LogCalls)
	assert.True(t, cfg.LogRetries)
	assert.True(t, cfg.LogRateLimit)
	assert.True(t, cfg.LogCircuit)
	assert.True(t, cfg.LogDedup)
	assert.True(t, cfg.LogCache)
	require.NotNil(t, cfg.CallIDGen)

	id1, id2 := cfg.CallIDGen(), cfg.CallIDGen()
	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)
}

func TestSimpleLoggerDoesNotPanic(t *testing.T) {
	logger := NewSimpleLogger()
	logger.Debug("msg", "key", "value")
	logger.Info("msg", "duration", 5*time.Millisecond)
	logger.Warn("msg")
	logger.Error("msg", "error", errors.New("boom"))
}
