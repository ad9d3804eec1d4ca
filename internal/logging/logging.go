// Package logging builds the zap logger shared by every component.
//
// Console output goes to the given writer (stderr for the CLI). When a file
// is configured, entries are also written as JSON to a size-rotated file.
package logging

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config represents the logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `toml:"level" default:"info" validate:"oneof=debug info warn error"`

	// Format is the console format (console or json).
	Format string `toml:"format" default:"console" validate:"oneof=console json"`

	// Color enables coloured levels in console format.
	Color bool `toml:"color"`

	// File, when set, also writes JSON entries to this path.
	File string `toml:"file"`

	// MaxSize is the size in megabytes at which the file is rotated.
	MaxSize int `toml:"maxSize" default:"10" validate:"gte=1"`

	// MaxBackups is the number of rotated files kept.
	MaxBackups int `toml:"maxBackups" default:"3" validate:"gte=0"`

	// MaxAge is the number of days rotated files are kept.
	MaxAge int `toml:"maxAge" default:"28" validate:"gte=0"`

	// Compress gzips rotated files.
	Compress bool `toml:"compress"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
}

// ParseLevel converts a level name to a zapcore.Level.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger is a zap logger plus the resources behind it.
type Logger struct {
	*zap.Logger

	level zap.AtomicLevel
	file  *lumberjack.Logger
}

// New builds a logger writing to console, and to cfg.File when set.
func New(cfg Config, console io.Writer) (*Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	level := zap.NewAtomicLevelAt(lvl)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder

	consoleCfg := encCfg
	var consoleEnc zapcore.Encoder
	switch cfg.Format {
	case "json":
		consoleEnc = zapcore.NewJSONEncoder(consoleCfg)
	case "", "console":
		consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		if cfg.Color {
			consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		consoleEnc = zapcore.NewConsoleEncoder(consoleCfg)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(zapcore.AddSync(console)), level),
	}

	l := &Logger{level: level}
	if cfg.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(l.file), level))
	}

	l.Logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return l, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop(), level: zap.NewAtomicLevelAt(zapcore.FatalLevel)}
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level zapcore.Level) {
	l.level.SetLevel(level)
}

// Level returns the current minimum level.
func (l *Logger) Level() zapcore.Level {
	return l.level.Level()
}

// Close flushes buffered entries and closes the log file.
func (l *Logger) Close() error {
	_ = l.Logger.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
