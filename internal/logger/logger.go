package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileName = "webchat.log"

type Options struct {
	Dir         string
	Level       string
	ToConsole   bool
	MaxBytes    int
	BackupCount int
}

// New builds the process logger: JSON records to a size-rotated file under Dir,
// mirrored to stdout when ToConsole is set. The returned closer flushes the file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
			return nil, nil, err
		}
		rotating := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, logFileName),
			MaxSize:    megabytes(opts.MaxBytes),
			MaxBackups: opts.BackupCount,
		}
		writers = append(writers, rotating)
		closer = rotating
	}
	if opts.ToConsole || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	h := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: ParseLevel(opts.Level)})
	return slog.New(NewContextHandler(h)), closer, nil
}

func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR", "CRITICAL":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// lumberjack rotates in whole megabytes.
func megabytes(n int) int {
	if n <= 0 {
		return 10
	}
	mb := n / (1024 * 1024)
	if mb < 1 {
		return 1
	}
	return mb
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
