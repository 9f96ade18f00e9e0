// Package logger configures the server's own operational logging — plugin
// load/unload, dispatcher warnings, startup — distinct from the raw,
// bit-exact console sink in internal/console that script-facing text binds
// to (see console.Sink).
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the global operational logger instance.
var Log zerolog.Logger

// Initialize sets up the global logger with configuration.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().
		Str("service", "drivesim-server").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// GetLogger returns the global logger instance.
func GetLogger() *zerolog.Logger {
	return &Log
}

// Script creates a logger for script-runtime operational events (load,
// reload, plugin registration) — not the bit-exact console sink.
func Script() *zerolog.Logger {
	l := Log.With().Str("component", "script").Logger()
	return &l
}

// Dispatch creates a logger for event dispatcher operational events.
func Dispatch() *zerolog.Logger {
	l := Log.With().Str("component", "dispatch").Logger()
	return &l
}

// Scheduler creates a logger for background-task and file-watch scheduling.
func Scheduler() *zerolog.Logger {
	l := Log.With().Str("component", "scheduler").Logger()
	return &l
}

// Transport creates a logger for the default Transport implementation.
func Transport() *zerolog.Logger {
	l := Log.With().Str("component", "transport").Logger()
	return &l
}
