package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func observedContext(level zapcore.Level) (context.Context, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return WithContext(context.Background(), zap.New(core)), logs
}

func TestGormLogger_Trace(t *testing.T) {
	stmt := func() (string, int64) { return "SELECT * FROM access_events", 1 }

	testCases := []struct {
		name      string
		begin     time.Time
		err       error
		wantLevel zapcore.Level
		wantCount int
	}{
		{name: "failure logs at error", begin: time.Now(), err: errors.New("boom"), wantLevel: zapcore.ErrorLevel, wantCount: 1},
		{name: "not found is not a failure", begin: time.Now(), err: gormlogger.ErrRecordNotFound, wantCount: 0},
		{name: "slow statement logs at warn", begin: time.Now().Add(-time.Second), wantLevel: zapcore.WarnLevel, wantCount: 1},
		{name: "fast statement is quiet at warn", begin: time.Now(), wantCount: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, logs := observedContext(zapcore.DebugLevel)
			l := NewGormLogger(gormlogger.Warn, 100*time.Millisecond)

			l.Trace(ctx, tc.begin, stmt, tc.err)

			entries := logs.All()
			assert.Len(t, entries, tc.wantCount)
			if tc.wantCount > 0 {
				assert.Equal(t, tc.wantLevel, entries[0].Level)
				assert.Equal(t, "SELECT * FROM access_events", entries[0].ContextMap()["sql"])
			}
		})
	}
}

func TestGormLogger_SilentMode(t *testing.T) {
	ctx, logs := observedContext(zapcore.DebugLevel)
	l := NewGormLogger(gormlogger.Info, 0).LogMode(gormlogger.Silent)

	l.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 1", 0 }, errors.New("boom"))
	assert.Zero(t, logs.Len())
}

func TestFromContext_FallsBackToGlobal(t *testing.T) {
	assert.Equal(t, zap.L(), FromContext(context.Background()))
}
