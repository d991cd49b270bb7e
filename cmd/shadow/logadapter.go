package main

import (
	"go.uber.org/zap"

	"github.com/shadowsim/shadow"
)

// zapLogger adapts [go.uber.org/zap]'s SugaredLogger to [shadow.Logger],
// the engine's leveled logging interface (spec.md §7).
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// newZapLogger builds a [shadow.Logger] at the requested level. level is
// one of the --log-level names "debug", "info", "message", "warning",
// "error" or "critical" (spec.md §6); "message" maps to zap's info level,
// "warning" to warn and "critical" to error. zap's own level names are
// accepted as well.
func newZapLogger(level string) (shadow.Logger, error) {
	switch level {
	case "message":
		level = "info"
	case "warning":
		level = "warn"
	case "critical":
		level = "error"
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = ""
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{sugar: logger.Sugar()}, nil
}

func (l *zapLogger) Debugf(format string, v ...any) { l.sugar.Debugf(format, v...) }
func (l *zapLogger) Debug(message string)           { l.sugar.Debug(message) }
func (l *zapLogger) Infof(format string, v ...any)  { l.sugar.Infof(format, v...) }
func (l *zapLogger) Info(message string)            { l.sugar.Info(message) }
func (l *zapLogger) Warnf(format string, v ...any)  { l.sugar.Warnf(format, v...) }
func (l *zapLogger) Warn(message string)            { l.sugar.Warn(message) }
func (l *zapLogger) Errorf(format string, v ...any) { l.sugar.Errorf(format, v...) }
func (l *zapLogger) Error(message string)           { l.sugar.Error(message) }

var _ shadow.Logger = (*zapLogger)(nil)
