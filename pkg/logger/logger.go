package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var l atomic.Pointer[zap.Logger]

func init() {
	l.Store(zap.NewNop())
}

// InitLogger installs the process-wide logger for the given environment.
// "prod" logs JSON at info level, "test" only surfaces warnings, anything
// else uses the human-readable development encoder.
func InitLogger(env string) {
	var cfg zap.Config

	switch env {
	case "prod":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "test":
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	default:
		cfg = zap.NewDevelopmentConfig()
	}

	logger, err := cfg.Build(zap.AddCaller(), zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}

	l.Store(logger)
}

// Named returns a child of the process logger for a component.
// Callers get the raw zap.Logger, so no caller skip is applied.
func Named(name string) *zap.Logger {
	return l.Load().WithOptions(zap.AddCallerSkip(-1)).Named(name)
}

func Info(msg string, fields ...zap.Field) {
	l.Load().Info(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	l.Load().Error(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	l.Load().Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	l.Load().Warn(msg, fields...)
}

// Console is the default diagnostic sink for lifecycle notices.
func Console(msg string) {
	l.Load().Info(msg, zap.String("source", "diagnostic"))
}

func Sync() error {
	return l.Load().Sync()
}
