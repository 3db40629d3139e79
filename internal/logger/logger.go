// Package logger is the structured key/value logger shared by the API,
// worker and pipeline.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a sugared zap logger. Methods take a message followed by
// alternating keys and values.
type Logger struct {
	s *zap.SugaredLogger
}

// New builds a logger for mode. "prod" and "production" emit JSON at info
// and above; anything else is a colored console at debug.
func New(mode string) (*Logger, error) {
	cfg := configFor(mode)
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{s: z.Sugar()}, nil
}

func configFor(mode string) zap.Config {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.InitialFields = map[string]interface{}{"service": "lessoncast"}
		return cfg
	default:
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{s: zap.NewNop().Sugar()}
}

func newFromCore(core zapcore.Core) *Logger {
	return &Logger{s: zap.New(core).Sugar()}
}

// Sync flushes buffered entries. Errors from syncing a terminal are ignored.
func (l *Logger) Sync() { _ = l.s.Sync() }

func (l *Logger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }

// Fatal logs and exits the process.
func (l *Logger) Fatal(msg string, kv ...interface{}) { l.s.Fatalw(msg, kv...) }

// With returns a child logger that adds kv to every entry.
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{s: l.s.With(kv...)}
}
