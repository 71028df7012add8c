package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"medcmd/src/model"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the process-wide logger. Its zero value discards everything,
// so packages can log before InitLogger runs (tests rely on this).
var Logger zerolog.Logger

// InitLogger initializes the global logger with the provided configuration
func InitLogger(config model.LogConfig) error {
	level, err := zerolog.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		return fmt.Errorf("invalid log level '%s': %w", config.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	switch strings.ToLower(config.TimeFormat) {
	case "unix":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	case "iso8601":
		zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000Z07:00"
	default:
		zerolog.TimeFieldFormat = time.RFC3339
	}

	output, err := openOutput(config)
	if err != nil {
		return err
	}

	if strings.ToLower(config.Format) == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	Logger = zerolog.New(output).With().
		Timestamp().
		Caller().
		Logger()

	// Also set the global zerolog logger for compatibility
	log.Logger = Logger

	Logger.Info().
		Str("level", config.Level).
		Str("format", config.Format).
		Str("output", config.Output).
		Msg("Logger initialized")

	return nil
}

func openOutput(config model.LogConfig) (io.Writer, error) {
	switch strings.ToLower(config.Output) {
	case "stderr":
		return os.Stderr, nil
	case "file":
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file '%s': %w", config.FilePath, err)
		}
		return file, nil
	default:
		return os.Stdout, nil
	}
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

func Info() *zerolog.Event {
	return Logger.Info()
}

func Debug() *zerolog.Event {
	return Logger.Debug()
}

func Warn() *zerolog.Event {
	return Logger.Warn()
}

func Error() *zerolog.Event {
	return Logger.Error()
}

func Fatal() *zerolog.Event {
	return Logger.Fatal()
}
