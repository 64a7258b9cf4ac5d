// Package gwylog wires up the gateway's console logger, mirroring the
// teacher's initLogging in main.go: a zerolog.ConsoleWriter with a
// stackdriver-friendly "severity" level field, plus stdlib log redirected
// through it so any dependency still using stdlib log lands in the same
// stream.
package gwylog

import (
	"fmt"
	stdlog "log"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger and returns it so callers that
// prefer explicit injection (dispatch.New, qos.NewEngine) don't have to
// reach for the package-global log.Logger.
func Init(debug bool) zerolog.Logger {
	zerolog.LevelFieldName = "severity"

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	output.FormatLevel = func(i interface{}) string {
		if i == nil {
			return ""
		}
		return fmt.Sprintf("%-5s", i)
	}
	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("%s", i)
	}
	output.FormatFieldName = func(i interface{}) string {
		return fmt.Sprintf("| %s: ", i)
	}
	output.FormatFieldValue = func(i interface{}) string {
		return fmt.Sprintf("%s", i)
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()

	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)

	return log.Logger
}
