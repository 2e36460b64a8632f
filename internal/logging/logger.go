// Package logging wraps zap for the web server, the probe CLI and the UI runtime.
//
// Initialize once at startup:
//
//	if err := logging.Initialize(cfg.Log.Level); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Without Initialize (or with an empty level and ASERRAS_LOG_LEVEL unset) the
// package logs nothing, which keeps tests and CLI output quiet.
package logging

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar controls verbosity when Initialize receives an empty level.
const LogLevelEnvVar = "ASERRAS_LOG_LEVEL"

// Initialize builds the global logger for level ("debug", "info", "warn", "error").
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	level = strings.ToLower(strings.TrimSpace(level))

	if level == "" || level == "off" {
		logger = zap.NewNop()
		return nil
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	built, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = built
	return nil
}

// L returns the global logger, a nop logger before Initialize.
func L() *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// Named returns a child logger tagged with component.
func Named(component string) *zap.Logger {
	return L().Named(component)
}

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { L().Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { L().Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

// LogUpstream records one call to an upstream HTTP API.
func LogUpstream(component, method, url string, status int, err error) {
	fields := []zap.Field{
		zap.String("component", component),
		zap.String("method", method),
		zap.String("url", url),
	}
	if status > 0 {
		fields = append(fields, zap.Int("status", status))
	}
	if err != nil {
		Warn("upstream request failed", append(fields, zap.Error(err))...)
		return
	}
	Debug("upstream request", fields...)
}

// LogHTTPRequest records an inbound request that ended in an error response.
func LogHTTPRequest(r *http.Request, status int, message string) {
	Info("request rejected",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("message", message),
	)
}

// Sync flushes any buffered log entries.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
