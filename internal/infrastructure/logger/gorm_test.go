package logger

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
	gormlogger "gorm.io/gorm/logger"
)

var _ gormlogger.Interface = (*GormLogger)(nil)

func newObservedGorm(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), recorded
}

func TestGormLogger_LogModeCopies(t *testing.T) {
	gl, _ := newObservedGorm(gormlogger.Info)
	warn := gl.LogMode(gormlogger.Warn).(*GormLogger)

	assert.Equal(t, gormlogger.Info, gl.logLevel)
	assert.Equal(t, gormlogger.Warn, warn.logLevel)
}

func TestGormLogger_Trace(t *testing.T) {
	query := func() (string, int64) { return "SELECT * FROM bookings", 3 }

	t.Run("error", func(t *testing.T) {
		gl, recorded := newObservedGorm(gormlogger.Warn)
		gl.Trace(context.Background(), time.Now(), query, errors.New("disk full"))
		logs := recorded.All()
		require.Len(t, logs, 1)
		assert.Equal(t, "query failed", logs[0].Message)
		assert.Equal(t, zapcore.ErrorLevel, logs[0].Level)
	})

	t.Run("record not found is quiet", func(t *testing.T) {
		gl, recorded := newObservedGorm(gormlogger.Info)
		gl.Trace(context.Background(), time.Now(), query, gormlogger.ErrRecordNotFound)
		assert.Empty(t, recorded.All())
	})

	t.Run("slow", func(t *testing.T) {
		gl, recorded := newObservedGorm(gormlogger.Warn, WithSlowThreshold(time.Millisecond))
		gl.Trace(context.Background(), time.Now().Add(-time.Second), query, nil)
		logs := recorded.All()
		require.Len(t, logs, 1)
		assert.Contains(t, logs[0].Message, "slow query")
	})

	t.Run("normal query at info carries request id", func(t *testing.T) {
		gl, recorded := newObservedGorm(gormlogger.Info)
		ctx := WithRequestID(context.Background(), "req-5")
		gl.Trace(ctx, time.Now(), query, nil)
		logs := recorded.All()
		require.Len(t, logs, 1)
		assert.Equal(t, "query", logs[0].Message)
		assert.Equal(t, "req-5", logs[0].ContextMap()["request_id"])
		assert.EqualValues(t, 3, logs[0].ContextMap()["rows"])
	})

	t.Run("silent", func(t *testing.T) {
		gl, recorded := newObservedGorm(gormlogger.Silent)
		gl.Trace(context.Background(), time.Now(), query, errors.New("x"))
		assert.Empty(t, recorded.All())
	})
}

func TestGormLogger_Printf(t *testing.T) {
	gl, recorded := newObservedGorm(gormlogger.Warn)
	gl.Info(context.Background(), "hidden %d", 1)
	gl.Warn(context.Background(), "shown %d", 2)
	gl.Error(context.Background(), "shown %d", 3)

	logs := recorded.All()
	require.Len(t, logs, 2)
	assert.Equal(t, "shown 2", logs[0].Message)
	assert.Equal(t, "shown 3", logs[1].Message)
}

func TestGormLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, GormLevel("silent"))
	assert.Equal(t, gormlogger.Error, GormLevel("ERROR"))
	assert.Equal(t, gormlogger.Info, GormLevel("debug"))
	assert.Equal(t, gormlogger.Warn, GormLevel("whatever"))
}
