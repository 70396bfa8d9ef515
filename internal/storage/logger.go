package storage

import (
	"context"
	"errors"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"netrelay/internal/ctxkeys"
	"netrelay/internal/logger"
)

// slowQuery 慢查询阈值
const slowQuery = 200 * time.Millisecond

// GormLogger 将 gorm 日志转到应用日志
type GormLogger struct {
	log   logger.Logger
	level gormlogger.LogLevel
}

// NewGormLogger 创建 gorm 日志适配器，默认只记录警告及以上
func NewGormLogger(l logger.Logger) *GormLogger {
	if l == nil {
		l = logger.NewNop()
	}
	return &GormLogger{log: l.With("component", "storage"), level: gormlogger.Warn}
}

// LogMode 返回指定级别的副本
func (g *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *g
	cp.level = level
	return &cp
}

func (g *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Info {
		g.log.Info(msg, withTrace(ctx, "data", data)...)
	}
}

func (g *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Warn {
		g.log.Warn(msg, withTrace(ctx, "data", data)...)
	}
}

func (g *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Error {
		g.log.Error(msg, withTrace(ctx, "data", data)...)
	}
}

// Trace 记录 SQL 执行情况，记录不存在不视为错误
func (g *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	kv := withTrace(ctx, "sql", sql, "rows", rows, "timeMs", float64(elapsed.Microseconds())/1e3)

	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && g.level >= gormlogger.Error:
		g.log.Err(err, "SQL执行错误", kv...)
	case elapsed > slowQuery && g.level >= gormlogger.Warn:
		g.log.Warn("慢SQL查询", append(kv, "threshold", slowQuery.String())...)
	case g.level >= gormlogger.Info:
		g.log.Debug("SQL执行", kv...)
	}
}

func withTrace(ctx context.Context, kv ...any) []any {
	if ctx == nil {
		return kv
	}
	if id, ok := ctx.Value(ctxkeys.TraceIDKey{}).(string); ok && id != "" {
		return append([]any{"traceId", id}, kv...)
	}
	return kv
}
