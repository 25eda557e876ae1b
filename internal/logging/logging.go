// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/systemshift/chanhist/internal/config"
)

// FileName is the log file created inside the configured directory.
const FileName = "chanhist.log"

// Logger is a zerolog logger together with the file it writes to, if any.
type Logger struct {
	zerolog.Logger
	file *os.File
}

// New builds a logger from conf. Debug mode writes human-readable output to
// stderr. Otherwise JSON lines go to <dir>/chanhist.log, or to stderr when
// no directory is configured.
func New(conf *config.Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(conf.Logger.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	var (
		out  io.Writer = os.Stderr
		file *os.File
	)
	switch {
	case conf.Debug:
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	case conf.Logger.Dir != "":
		file, err = os.OpenFile(filepath.Join(conf.Logger.Dir, FileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = file
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &Logger{Logger: zl, file: file}, nil
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
