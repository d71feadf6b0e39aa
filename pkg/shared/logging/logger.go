package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process-wide zap logger. format is "json" or "console"
// (internal/config's logging.format field); level is a zap level name.
func New(format, level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// ToZapFields converts a chained Fields bag into zap.Field slices for a
// single log call: logger.Info("rolled back", logging.ToZapFields(f)...)
func ToZapFields(f Fields) []zap.Field {
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}

// AsLogr adapts a zap.Logger to logr.Logger for the k8s client-go plumbing
// in pkg/executor/k8stools, which expects the controller-runtime logging
// interface rather than zap directly.
func AsLogr(l *zap.Logger) logr.Logger {
	return zapr.NewLogger(l)
}
