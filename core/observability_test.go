package core

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type captureLogger struct {
	mu      sync.Mutex
	entries []string
	fields  map[string]any
}

func (l *captureLogger) record(level string, msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+":"+msg)
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	l.mu.Lock()
	l.fields = fields
	l.mu.Unlock()
	return l
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return l
}

type captureMetrics struct {
	counters   map[string]int64
	histograms map[string]int
	tags       map[string]string
}

func newCaptureMetrics() *captureMetrics {
	return &captureMetrics{counters: map[string]int64{}, histograms: map[string]int{}}
}

func (m *captureMetrics) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.counters[name] += value
	m.tags = tags
}

func (m *captureMetrics) ObserveHistogram(_ context.Context, name string, _ float64, _ map[string]string) {
	m.histograms[name]++
}

func TestObserver_EmitsMetricsAndLogs(t *testing.T) {
	logger := &captureLogger{}
	metrics := newCaptureMetrics()
	observer := NewObserver("ingest", nil, logger, metrics)

	observer.Observe(context.Background(), time.Now(), "process webhook", nil, map[string]any{
		"tenant_id": "t1",
		"topic":     "orders/create",
	})
	observer.Observe(context.Background(), time.Now(), "process webhook", stderrors.New("boom"), nil)

	if metrics.counters["ingest.process_webhook.total"] != 2 {
		t.Fatalf("expected two counter increments, got %#v", metrics.counters)
	}
	if metrics.histograms["ingest.process_webhook.duration_ms"] != 2 {
		t.Fatalf("expected two histogram samples, got %#v", metrics.histograms)
	}
	if len(logger.entries) != 2 {
		t.Fatalf("expected two log entries, got %v", logger.entries)
	}
	if !strings.HasPrefix(logger.entries[0], "info:") || !strings.HasPrefix(logger.entries[1], "error:") {
		t.Fatalf("unexpected log levels: %v", logger.entries)
	}
	if logger.fields["error"] != "boom" {
		t.Fatalf("expected error field, got %#v", logger.fields)
	}
}

func TestObserver_NilSafe(t *testing.T) {
	var observer *Observer
	observer.Observe(context.Background(), time.Now(), "noop", nil, nil)
	observer.Info(context.Background(), "noop", nil)
	if observer.Logger() == nil {
		t.Fatalf("expected nop logger from nil observer")
	}
}

func TestFlattenFields_SortedKeys(t *testing.T) {
	args := flattenFields(map[string]any{"b": 2, "a": 1})
	if len(args) != 4 || args[0] != "a" || args[2] != "b" {
		t.Fatalf("expected sorted key/value pairs, got %v", args)
	}
}
