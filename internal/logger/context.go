package logger

import (
	"context"
	"sync"
)

type contextKey struct{}

var (
	defaultLogger   = New(nil)
	defaultLoggerMu sync.RWMutex
)

// Default returns the process-wide logger.
func Default() *Logger {
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the process-wide logger. Nil is ignored.
func SetDefault(l *Logger) {
	if l == nil {
		return
	}
	defaultLoggerMu.Lock()
	defaultLogger = l
	defaultLoggerMu.Unlock()
}

// WithContext attaches l to ctx.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger attached to ctx, or the default logger.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(contextKey{}).(*Logger); ok {
			return l
		}
	}
	return Default()
}

// WithField returns ctx carrying a logger with key set.
func WithField(ctx context.Context, key string, value interface{}) context.Context {
	return FromContext(ctx).WithField(key, value).WithContext(ctx)
}

// WithFields returns ctx carrying a logger with fields set.
func WithFields(ctx context.Context, fields Fields) context.Context {
	return FromContext(ctx).WithFields(fields).WithContext(ctx)
}

func SetRequestID(ctx context.Context, id string) context.Context {
	return WithField(ctx, FieldRequestID, id)
}

func SetUserID(ctx context.Context, id string) context.Context {
	return WithField(ctx, FieldUserID, id)
}

func SetMealID(ctx context.Context, id string) context.Context {
	return WithField(ctx, FieldMealID, id)
}

func SetComponent(ctx context.Context, name string) context.Context {
	return WithField(ctx, FieldComponent, name)
}

func SetIngestSource(ctx context.Context, source string) context.Context {
	return WithField(ctx, FieldIngestSource, source)
}

// FieldString reads a string field from the context logger.
func FieldString(ctx context.Context, key string) string {
	s, _ := FromContext(ctx).Data[key].(string)
	return s
}

// GetRequestID returns the request id carried by ctx, if any.
func GetRequestID(ctx context.Context) string {
	return FieldString(ctx, FieldRequestID)
}
