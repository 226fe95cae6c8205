package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global logger. An explicit level wins over the debug
// flag; debug mode also switches to the console writer.
func Init(serviceName string, debug bool, level string) error {
	lvl, err := resolveLevel(debug, level)
	if err != nil {
		return err
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.MessageFieldName = "message"
	zerolog.DurationFieldUnit = time.Millisecond

	log.Logger = New(output(debug), serviceName, lvl)
	log.Info().Bool("debug", debug).Str("level", lvl.String()).Msg("Logger initialized")
	return nil
}

// New builds a logger tagged with the service name.
func New(w io.Writer, serviceName string, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

func resolveLevel(debug bool, level string) (zerolog.Level, error) {
	if level = strings.TrimSpace(level); level != "" {
		lvl, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		return lvl, nil
	}
	if debug {
		return zerolog.DebugLevel, nil
	}
	return zerolog.InfoLevel, nil
}

func output(debug bool) io.Writer {
	if !debug {
		return os.Stdout
	}
	return zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
		FormatLevel: func(i interface{}) string {
			return fmt.Sprintf("| %-6s|", i)
		},
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("| %s", i)
		},
	}
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

func Debug() *zerolog.Event { return log.Debug() }

func Info() *zerolog.Event { return log.Info() }

func Warn() *zerolog.Event { return log.Warn() }

func Error() *zerolog.Event { return log.Error() }

// Fatal logs and exits the process.
func Fatal() *zerolog.Event { return log.Fatal() }
