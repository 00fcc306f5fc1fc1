// Package telemetry sets up the process-wide zerolog logger the way
// cmd/cryptorun/main.go does, adapted for riskcore: a console writer on
// stderr (timestamps shown as time.Kitchen; the time field format is set to
// RFC3339), and a level parsed from config.
package telemetry

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the global zerolog logger. levelName is one of
// zerolog's level strings ("debug", "info", "warn", "error"); an unknown
// or empty value falls back to info.
func InitLogger(levelName string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	return log.Logger
}
