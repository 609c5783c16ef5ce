package logger

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global atomic.Pointer[zap.Logger]

func init() {
	global.Store(zap.NewNop())
}

// Init 初始化全局 logger；format 为 "json" 或 "console"
func Init(level, format string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	global.Store(l)
	return nil
}

// L returns the process-wide logger.
func L() *zap.Logger { return global.Load() }

// ReplaceForTest swaps the global logger and returns a restore func.
func ReplaceForTest(l *zap.Logger) func() {
	prev := global.Swap(l)
	return func() { global.Store(prev) }
}

func With(fields ...zap.Field) *zap.Logger { return L().With(fields...) }

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { L().Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { L().Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

func Sync() error { return L().Sync() }
