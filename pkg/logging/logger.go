package logging

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ZapLogger implements Logger on top of a zap core.
type ZapLogger struct {
	z     *zap.Logger
	level zap.AtomicLevel
}

// NewLogger builds a zap-backed logger from options.
func NewLogger(opts Options) *ZapLogger {
	level := zap.NewAtomicLevelAt(ParseLevel(opts.Level).zap())

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.MessageKey = "msg"
	encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	var enc zapcore.Encoder
	if opts.Format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	if opts.File != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 30),
			Compress:   true,
		})
	} else {
		sink = zapcore.Lock(os.Stderr)
	}

	return &ZapLogger{
		z:     zap.New(zapcore.NewCore(enc, sink, level), zap.AddCaller(), zap.AddCallerSkip(1)),
		level: level,
	}
}

// FromZap wraps an existing zap logger. The level is taken from the core
// and can still be adjusted with SetLevel when the core was built on an AtomicLevel.
func FromZap(z *zap.Logger) *ZapLogger {
	level := zap.NewAtomicLevelAt(zapcore.DebugLevel)
	for _, l := range []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel} {
		if z.Core().Enabled(l) {
			level.SetLevel(l)
			break
		}
	}
	return &ZapLogger{z: z, level: level}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (l *ZapLogger) enabled(lvl zapcore.Level) bool {
	return l.level.Enabled(lvl)
}

// Debug logs a debug-level message
func (l *ZapLogger) Debug(msg string, fields ...Field) {
	if l.enabled(zapcore.DebugLevel) {
		l.z.Debug(msg, fields...)
	}
}

// Info logs an info-level message
func (l *ZapLogger) Info(msg string, fields ...Field) {
	if l.enabled(zapcore.InfoLevel) {
		l.z.Info(msg, fields...)
	}
}

// Warn logs a warning-level message
func (l *ZapLogger) Warn(msg string, fields ...Field) {
	if l.enabled(zapcore.WarnLevel) {
		l.z.Warn(msg, fields...)
	}
}

// Error logs an error-level message
func (l *ZapLogger) Error(msg string, fields ...Field) {
	if l.enabled(zapcore.ErrorLevel) {
		l.z.Error(msg, fields...)
	}
}

// With creates a child logger sharing the parent's level
func (l *ZapLogger) With(fields ...Field) Logger {
	return &ZapLogger{z: l.z.With(fields...), level: l.level}
}

// SetLevel sets the minimum log level
func (l *ZapLogger) SetLevel(level Level) {
	l.level.SetLevel(level.zap())
}

// GetLevel returns the current log level
func (l *ZapLogger) GetLevel() Level {
	return fromZap(l.level.Level())
}

// Sync flushes buffered entries
func (l *ZapLogger) Sync() error {
	return l.z.Sync()
}

// Zap exposes the underlying zap logger.
func (l *ZapLogger) Zap() *zap.Logger {
	return l.z
}

// Global default logger
var (
	defaultLogger Logger
	defaultMu     sync.RWMutex
	once          sync.Once
)

// DefaultLogger returns the global default logger
func DefaultLogger() Logger {
	once.Do(func() {
		defaultMu.Lock()
		defer defaultMu.Unlock()
		if defaultLogger == nil {
			defaultLogger = NewLogger(Options{Level: os.Getenv("LOG_LEVEL")})
		}
	})
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefaultLogger sets the global default logger
func SetDefaultLogger(logger Logger) {
	once.Do(func() {})
	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
}

// StartTimer begins timing an operation
func StartTimer(logger Logger, msg string, fields ...Field) *TimedOperation {
	return &TimedOperation{
		logger: logger,
		msg:    msg,
		start:  time.Now(),
		fields: fields,
	}
}

// End logs the operation with its duration at debug level
func (t *TimedOperation) End() {
	t.logger.Debug(t.msg, append(t.fields, Latency(time.Since(t.start)))...)
}

// EndWithLevel logs the operation at the specified level with its duration
func (t *TimedOperation) EndWithLevel(level Level, msg string) {
	fields := append(t.fields, Latency(time.Since(t.start)))
	switch level {
	case DebugLevel:
		t.logger.Debug(msg, fields...)
	case InfoLevel:
		t.logger.Info(msg, fields...)
	case WarnLevel:
		t.logger.Warn(msg, fields...)
	case ErrorLevel:
		t.logger.Error(msg, fields...)
	}
}

// EndError logs the operation as an error with its duration
func (t *TimedOperation) EndError(err error) {
	t.logger.Error(t.msg, append(t.fields, Latency(time.Since(t.start)), Error(err))...)
}
