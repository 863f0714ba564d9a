package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type zapLogger struct {
	sugar *zap.SugaredLogger
}

func (z zapLogger) Printf(message string, args ...interface{}) {
	z.sugar.Debugf(message, args...)
}

// FromZap adapts a zap logger. Messages are written at debug level, since everything routed
// through Logger is diagnostic output about individual requests.
func FromZap(l *zap.Logger) Logger {
	if l == nil {
		return NullLogger()
	}
	return zapLogger{sugar: l.Sugar()}
}

// NewZap builds a zap logger for the given level ("debug", "info", "warn", "error"). With
// jsonOutput false it uses the console encoder.
func NewZap(level string, jsonOutput bool) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	if jsonOutput {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l, nil
}
