// Package logging builds the process logger. Output always goes to stderr
// because stdout carries the stdio transport; a rotated file can be added.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sgx-labs/scout/internal/config"
)

// New returns a logger configured from cfg.
func New(cfg config.LogConfig) (zerolog.Logger, error) {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg config.LogConfig, stderr io.Writer) (zerolog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	writers := []io.Writer{formatWriter(cfg.Format, stderr, false)}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return zerolog.Nop(), fmt.Errorf("create log dir: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			LocalTime:  true,
		}
		writers = append(writers, formatWriter(cfg.Format, file, true))
	}

	var out io.Writer = writers[0]
	if len(writers) > 1 {
		out = zerolog.MultiLevelWriter(writers...)
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// ParseLevel accepts debug, info, warn (or warning) and error.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		s = "warn"
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func formatWriter(format string, w io.Writer, noColor bool) io.Writer {
	if strings.EqualFold(format, "json") {
		return w
	}
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	}
}
