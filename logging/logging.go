package logging

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a new zap logger for the given environment. Unknown
// environments get the production logger.
func New(env string) (*zap.Logger, error) {
	switch env {
	case "local":
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		return cfg.Build()
	case "development":
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		return cfg.Build()
	default:
		return zap.NewProduction()
	}
}

// CronLogger adapts the global sugared logger to cron.Logger
func CronLogger() cron.Logger {
	return cronLogger{}
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	zap.S().Debugw(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	zap.S().Errorw(msg, append(keysAndValues, "error", err)...)
}
