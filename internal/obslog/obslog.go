// Package obslog owns the process-wide zap logger.
package obslog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

var current atomic.Pointer[zap.Logger]

func init() { current.Store(zap.NewNop()) }

// L returns the process logger. It is a no-op logger until InitFromEnv runs.
func L() *zap.Logger { return current.Load() }

// Settings selects where and how log lines are written.
type Settings struct {
	Level    zapcore.Level
	Format   string
	Stdout   bool
	FilePath string // empty disables the file sink
	Caller   bool
}

// SettingsFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_STDOUT, LOG_FILE and LOG_CALLER.
func SettingsFromEnv() Settings {
	s := Settings{
		Level:    zapcore.InfoLevel,
		Format:   FormatText,
		Stdout:   envBool("LOG_STDOUT", true),
		FilePath: strings.TrimSpace(os.Getenv("LOG_FILE")),
		Caller:   envBool("LOG_CALLER", false),
	}
	if lvl, err := zapcore.ParseLevel(strings.TrimSpace(os.Getenv("LOG_LEVEL"))); err == nil && os.Getenv("LOG_LEVEL") != "" {
		s.Level = lvl
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("LOG_FORMAT")), FormatJSON) {
		s.Format = FormatJSON
	}
	return s
}

// InitFromEnv builds the process logger from LOG_* variables and installs it.
func InitFromEnv() error {
	logger, err := Build(SettingsFromEnv())
	if err != nil {
		return err
	}
	current.Store(logger)
	zap.RedirectStdLog(logger)
	return nil
}

func Build(s Settings) (*zap.Logger, error) {
	enc := newEncoder(s.Format)
	var cores []zapcore.Core
	if s.Stdout {
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stdout), s.Level))
	}
	if s.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(s.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(s.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(enc.Clone(), zapcore.AddSync(f), s.Level))
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if s.Caller {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(zapcore.NewTee(cores...), opts...), nil
}

func newEncoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == FormatJSON {
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.ConsoleSeparator = " | "
	return zapcore.NewConsoleEncoder(cfg)
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
