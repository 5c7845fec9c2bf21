// Package zaplog provides glog loggers backed by zap for the shopsync binary.
package zaplog

import (
	"context"
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/goliatone/go-shopsync/core"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type Config struct {
	Level  string
	Format string
	// Development enables stack traces on warnings and caller annotations.
	Development bool
}

// Provider hands out named loggers sharing one zap core.
type Provider struct {
	base *zap.Logger
}

func New(cfg Config) (*Provider, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", FormatJSON:
		zcfg.Encoding = FormatJSON
	case FormatConsole:
		zcfg.Encoding = FormatConsole
	default:
		return nil, fmt.Errorf("zaplog: unsupported format %q", cfg.Format)
	}
	base, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("zaplog: build logger: %w", err)
	}
	return &Provider{base: base}, nil
}

// NewFromZap wraps an existing zap logger.
func NewFromZap(base *zap.Logger) *Provider {
	if base == nil {
		base = zap.NewNop()
	}
	return &Provider{base: base}
}

func (p *Provider) GetLogger(name string) glog.Logger {
	if p == nil || p.base == nil {
		return glog.Nop()
	}
	base := p.base
	if name = strings.TrimSpace(name); name != "" {
		base = base.Named(name)
	}
	return &Logger{sugar: base.Sugar()}
}

// Sync flushes buffered entries.
func (p *Provider) Sync() error {
	if p == nil || p.base == nil {
		return nil
	}
	return p.base.Sync()
}

// ParseLevel accepts the glog level names, mapping trace onto debug.
func ParseLevel(raw string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "trace", "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("zaplog: unknown level %q", raw)
	}
}

type Logger struct {
	sugar *zap.SugaredLogger
}

func (l *Logger) Trace(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *Logger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }
func (l *Logger) Fatal(msg string, args ...any) { l.sugar.Fatalw(msg, args...) }

// WithContext attaches the request id when the context carries one.
func (l *Logger) WithContext(ctx context.Context) glog.Logger {
	if requestID := core.RequestIDFromContext(ctx); requestID != "" {
		return &Logger{sugar: l.sugar.With("request_id", requestID)}
	}
	return l
}

var (
	_ glog.Logger         = (*Logger)(nil)
	_ glog.LoggerProvider = (*Provider)(nil)
)
