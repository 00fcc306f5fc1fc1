package telemetry

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestInitLoggerParsesKnownLevel(t *testing.T) {
	InitLogger("warn")
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestInitLoggerFallsBackToInfoOnUnknownLevel(t *testing.T) {
	InitLogger("not-a-level")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestInitLoggerFallsBackToInfoOnEmptyLevel(t *testing.T) {
	InitLogger("")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
