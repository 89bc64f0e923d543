package logger

import (
	"context"
	"time"
)

// Entry carries metric fields (duration_ms, count, ...) for one log line on
// top of whatever tracing fields the context logger holds.
type Entry struct {
	fields Fields
}

// With starts an Entry with the given metric fields.
// Example: logger.With(logger.Fields{"count": 3}).Info(ctx, "Imported batch")
func With(fields Fields) *Entry {
	e := &Entry{fields: make(Fields, len(fields))}
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

// WithField adds one field.
func (e *Entry) WithField(key string, value interface{}) *Entry {
	merged := With(e.fields)
	merged.fields[key] = value
	return merged
}

// WithDuration records the time elapsed since start as duration_ms.
func (e *Entry) WithDuration(start time.Time) *Entry {
	return e.WithField(FieldDurationMs, time.Since(start).Milliseconds())
}

// WithCount records count.
func (e *Entry) WithCount(n int) *Entry {
	return e.WithField(FieldCount, n)
}

func (e *Entry) Debug(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Debugf(format, args...)
}

func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Infof(format, args...)
}

func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Warnf(format, args...)
}

func (e *Entry) Error(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Errorf(format, args...)
}
