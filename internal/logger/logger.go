package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log is the process-wide logger. It discards output until Init is called.
var Log = zerolog.Nop()

// Init initializes the global logger.
func Init(env string) {
	zerolog.TimeFieldFormat = time.RFC3339

	if env == "development" {
		Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
			With().
			Timestamp().
			Caller().
			Logger()
		return
	}

	Log = zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()
}

// SetOutput redirects the logger, used by the terminal client so log lines
// do not corrupt the screen.
func SetOutput(w io.Writer) {
	Log = Log.Output(w)
}

func Info() *zerolog.Event {
	return Log.Info()
}

func Error() *zerolog.Event {
	return Log.Error()
}

func Warn() *zerolog.Event {
	return Log.Warn()
}

func Debug() *zerolog.Event {
	return Log.Debug()
}

func Fatal() *zerolog.Event {
	return Log.Fatal()
}
