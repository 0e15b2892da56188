package logger

import (
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var l = zap.NewNop()

var sentryEnabled bool

// Init 初始化全局 zap logger；sentry 开启时 Error 级别事件上报
func Init(mode string, withSentry bool) error {
	var (
		zl  *zap.Logger
		err error
	)
	if mode == "debug" {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	l = zl.WithOptions(zap.AddCallerSkip(1))
	sentryEnabled = withSentry
	return nil
}

// L 返回底层 logger（gin 中间件等需要时使用）
func L() *zap.Logger { return l }

func Debug(msg string, fields ...zap.Field) { l.Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { l.Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { l.Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) {
	l.Error(msg, fields...)
	if sentryEnabled {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetLevel(sentry.LevelError)
			for _, f := range fields {
				if f.Type == zapcore.ErrorType {
					if err, ok := f.Interface.(error); ok {
						sentry.CaptureException(err)
						return
					}
				}
			}
			sentry.CaptureMessage(msg)
		})
	}
}

// Sync 进程退出前刷新缓冲
func Sync() { _ = l.Sync() }
