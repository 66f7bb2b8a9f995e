package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Log   *zap.Logger
	Sugar *zap.SugaredLogger
)

func init() {
	// Silent until Init is called so packages can log from tests.
	Log = zap.NewNop()
	Sugar = Log.Sugar()
}

// Options controls where and how much is logged.
type Options struct {
	// Level is a zap level name. Empty falls back to P2P_LOG_LEVEL, then
	// LOG_LEVEL, then info.
	Level string
	// File additionally appends the log to this path when set.
	File string
}

// Init replaces the package loggers with a console logger on stderr.
func Init(opts Options) error {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006/01/02 15:04:05"))
	}
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	level, err := parseLevel(opts.Level)
	if err != nil {
		return err
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(file), level))
	}

	// AddCaller ensures the log includes filename and line number
	Log = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	Sugar = Log.Sugar()
	return nil
}

// Sync flushes buffered entries.
func Sync() {
	_ = Log.Sync()
}

func parseLevel(s string) (zapcore.Level, error) {
	levelStr := strings.TrimSpace(s)
	if levelStr == "" {
		levelStr = strings.TrimSpace(os.Getenv("P2P_LOG_LEVEL"))
	}
	if levelStr == "" {
		levelStr = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	}

	level := zapcore.InfoLevel
	if levelStr == "" {
		return level, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToLower(levelStr))); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", levelStr, err)
	}
	return level, nil
}
