// Package logging configures the global zerolog logger from config.LogConfig.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dministrator/flowdb/internal/config"
)

const timeFormat = "2006-01-02 15:04:05"

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Apply sets the global log level and output writers: a console writer on
// console (stderr when nil) and, when cfg.File is set, a rotating file.
// The returned Closer releases the file.
func Apply(cfg config.LogConfig, console io.Writer) (io.Closer, error) {
	applyLevel(cfg.Level)

	if console == nil {
		console = os.Stderr
	}
	consoleOutput := zerolog.ConsoleWriter{Out: console, TimeFormat: timeFormat}
	log.Logger = zerolog.New(consoleOutput).With().Timestamp().Logger()

	if cfg.File == "" {
		return nopCloser{}, nil
	}
	if err := ensureLogDir(cfg.File); err != nil {
		log.Error().Err(err).Str("path", cfg.File).Msg("failed to prepare log directory; logging to console only")
		return nopCloser{}, err
	}

	fileWriter := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	fileConsole := zerolog.ConsoleWriter{Out: fileWriter, TimeFormat: timeFormat, NoColor: true}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(consoleOutput, fileConsole)).With().Timestamp().Logger()
	return fileWriter, nil
}

func applyLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
