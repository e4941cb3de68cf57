// Package logging wraps go.uber.org/zap the way internal/common/logger
// does: a Logger struct around a *zap.Logger, a process-wide Default()
// singleton guarded by sync.Once, and a mapstructure-tagged Config so it
// composes with internal/config's viper loader.
package logging

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls level, encoder, and destination for a Logger.
type Config struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`       // json, console
	OutputPath string `mapstructure:"output_path"`  // stdout, stderr, or a file path
}

// Logger wraps a *zap.Logger with conduit's structured-field conventions.
type Logger struct {
	zap *zap.Logger
}

var (
	defaultLogger     *Logger
	defaultLoggerOnce sync.Once
)

// Default returns the process-wide logger, lazily initialized at info
// level: JSON-encoded to DefaultLogPath(), or console-encoded to stderr when
// that path cannot be resolved.
func Default() *Logger {
	defaultLoggerOnce.Do(func() {
		path, err := DefaultLogPath()
		cfg := Config{Level: "info", Format: "console", OutputPath: "stderr"}
		if err == nil {
			cfg.OutputPath = path
			cfg.Format = "json"
		}
		logger, newErr := New(cfg)
		if newErr != nil {
			zapLogger, _ := zap.NewProduction()
			logger = &Logger{zap: zapLogger}
		}
		defaultLogger = logger
	})
	return defaultLogger
}

// SetDefault overrides the process-wide logger (used by cmd/conduit after
// config is loaded, since Default() may have already lazily initialized a
// fallback during early startup).
func SetDefault(l *Logger) {
	defaultLogger = l
}

// DefaultLogPath returns <home>/.conduit/logs/conduit.log, creating the
// parent directory if necessary.
func DefaultLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".conduit", "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "conduit.log"), nil
}

func parseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	err := l.UnmarshalText([]byte(level))
	return l, err
}

// New builds a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" || cfg.Format == "text" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var writeSyncer zapcore.WriteSyncer
	switch cfg.OutputPath {
	case "", "stdout":
		writeSyncer = zapcore.AddSync(os.Stdout)
	case "stderr":
		writeSyncer = zapcore.AddSync(os.Stderr)
	default:
		file, err := os.OpenFile(cfg.OutputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		writeSyncer = zapcore.AddSync(file)
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)
	zapLogger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{zap: zapLogger}, nil
}

// With returns a Logger with the given fields attached to every subsequent
// log line.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zap: l.zap.With(fields...)}
}

// WithError returns a Logger with an error field attached.
func (l *Logger) WithError(err error) *Logger {
	return l.With(zap.Error(err))
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zap.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zap.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zap.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zap.Error(msg, fields...) }

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Zap returns the underlying zap.Logger for advanced use.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}
