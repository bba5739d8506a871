// Package logging implements the structured log sink described in spec §2
// (C2): stdout formatted output plus an asynchronous write to the State
// Store's SystemLog table. Generalized from the teacher's inline
// log/slog setup in cmd/server/main.go onto go.uber.org/zap, the structured
// logging library the rest of the pack (tobi-techy-RAIL-BACKEND-SERVICE,
// r3e-network-service_layer) reaches for.
package logging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/model"
)

func nowIfZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// Sink persists SystemLog rows. Implemented by the State Store.
type Sink interface {
	CreateSystemLog(ctx context.Context, log model.SystemLog) error
}

// Logger fans every call out to stdout (via zap) and, asynchronously, to a
// Sink. The async write never blocks the caller: it is silently dropped if
// the internal buffer is full, since the log line itself has already reached
// stdout.
type Logger struct {
	zap      *zap.Logger
	minLevel model.LogLevel
	service  string

	sink   Sink
	queue  chan model.SystemLog
	done   chan struct{}
}

// Option configures a Logger at construction time.
type Option func(*Logger)

// WithSink attaches a State Store sink; logs at or above minLevel are
// additionally persisted asynchronously.
func WithSink(sink Sink) Option {
	return func(l *Logger) { l.sink = sink }
}

// New creates a Logger. service names the emitting component (e.g.
// "routing-engine") and is attached to every stored SystemLog row.
func New(minLevel model.LogLevel, service string, opts ...Option) *Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(toZapLevel(minLevel))

	zapLogger, err := cfg.Build()
	if err != nil {
		zapLogger = zap.NewNop()
	}

	l := &Logger{
		zap:      zapLogger,
		minLevel: minLevel,
		service:  service,
		queue:    make(chan model.SystemLog, 256),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	go l.drain()
	return l
}

func toZapLevel(level model.LogLevel) zapcore.Level {
	switch level {
	case model.LogDebug:
		return zapcore.DebugLevel
	case model.LogWarn:
		return zapcore.WarnLevel
	case model.LogError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Debug logs at debug level.
func (l *Logger) Debug(message string, kv ...any) { l.log(model.LogDebug, message, nil, nil, kv) }

// Info logs at info level.
func (l *Logger) Info(message string, kv ...any) { l.log(model.LogInfo, message, nil, nil, kv) }

// Warn logs at warn level.
func (l *Logger) Warn(message string, kv ...any) { l.log(model.LogWarn, message, nil, nil, kv) }

// Error logs at error level.
func (l *Logger) Error(message string, kv ...any) { l.log(model.LogError, message, nil, nil, kv) }

// WithContext attaches a transaction/processor ID to subsequent stored log
// rows, without changing the stdout-facing key/value pairs.
type WithContext struct {
	logger        *Logger
	transactionID *uuid.UUID
	processorID   *uuid.UUID
}

// For scopes a Logger to a transaction and/or processor, for correlation in
// the stored SystemLog rows (spec §3 SystemLog.transactionId/processorId).
func (l *Logger) For(transactionID, processorID *uuid.UUID) WithContext {
	return WithContext{logger: l, transactionID: transactionID, processorID: processorID}
}

func (c WithContext) Debug(message string, kv ...any) {
	c.logger.log(model.LogDebug, message, c.transactionID, c.processorID, kv)
}
func (c WithContext) Info(message string, kv ...any) {
	c.logger.log(model.LogInfo, message, c.transactionID, c.processorID, kv)
}
func (c WithContext) Warn(message string, kv ...any) {
	c.logger.log(model.LogWarn, message, c.transactionID, c.processorID, kv)
}
func (c WithContext) Error(message string, kv ...any) {
	c.logger.log(model.LogError, message, c.transactionID, c.processorID, kv)
}

func (l *Logger) log(level model.LogLevel, message string, transactionID, processorID *uuid.UUID, kv []any) {
	if !level.Allowed(l.minLevel) {
		return
	}

	fields := make([]zap.Field, 0, len(kv)/2)
	metadata := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, kv[i+1]))
		metadata[key] = kv[i+1]
	}

	switch level {
	case model.LogDebug:
		l.zap.Debug(message, fields...)
	case model.LogWarn:
		l.zap.Warn(message, fields...)
	case model.LogError:
		l.zap.Error(message, fields...)
	default:
		l.zap.Info(message, fields...)
	}

	if l.sink == nil {
		return
	}

	entry := model.SystemLog{
		ID:            uuid.New(),
		Level:         level,
		Message:       message,
		Service:       l.service,
		TransactionID: transactionID,
		ProcessorID:   processorID,
		Metadata:      metadata,
	}

	select {
	case l.queue <- entry:
	default:
		// Buffer full: stdout already has the line, so the store write is
		// best-effort and may be dropped rather than block the caller.
	}
}

// drain persists queued SystemLog rows until Close is called.
func (l *Logger) drain() {
	ctx := context.Background()
	for {
		select {
		case entry := <-l.queue:
			entry.Timestamp = nowIfZero(entry.Timestamp)
			_ = l.sink.CreateSystemLog(ctx, entry)
		case <-l.done:
			return
		}
	}
}

// Close stops the async drain goroutine and flushes the stdout sink.
func (l *Logger) Close() error {
	close(l.done)
	return l.zap.Sync()
}
