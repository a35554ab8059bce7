package cmd

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

var _ cron.Logger = (*cronLogger)(nil)

func newCronLogger(logger *zap.Logger) *cronLogger {
	return &cronLogger{sugar: logger.Named("cron").Sugar()}
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
