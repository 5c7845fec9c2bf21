// Package gologger hands one resolved go-logger logger to the go-job workers
// and the reconciliation cron scheduler.
package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/robfig/cron/v3"
)

// Bridge is a resolved provider and logger pair. A provider wins over a
// direct logger, and a nop logger fills in when neither is set.
type Bridge struct {
	Provider glog.LoggerProvider
	Logger   glog.Logger
}

func NewBridge(name string, provider glog.LoggerProvider, logger glog.Logger) Bridge {
	p, l := glog.Resolve(name, provider, logger)
	return Bridge{Provider: p, Logger: l}
}

func (b Bridge) JobProvider() job.LoggerProvider {
	if b.Provider == nil {
		return nil
	}
	return job.GoLoggerProvider(b.Provider)
}

func (b Bridge) JobLogger() job.Logger {
	if b.Logger == nil {
		return nil
	}
	return job.GoLogger(b.Logger)
}

func (b Bridge) Cron() cron.Logger {
	return ToCronLogger(b.Logger)
}

// ToCronLogger returns nil for a nil logger so the scheduler keeps its
// discard logger.
func ToCronLogger(logger glog.Logger) cron.Logger {
	if logger == nil {
		return nil
	}
	return cronLogger{logger}
}

// cronLogger demotes scheduler info lines to debug.
type cronLogger struct {
	glog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.Logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	l.Logger.Error("cron: "+msg, append([]any{"error", reason}, keysAndValues...)...)
}

var _ cron.Logger = cronLogger{}
