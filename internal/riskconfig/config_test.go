package riskconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskcore-io/riskcore/internal/riskerr"
)

func TestDefaultConfigNamedDefaults(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, PrimaryRobustZones, c.Evaluator.Primary)
	assert.Equal(t, 5.0, c.Coordinator.MinContractFloor)
	assert.Equal(t, 30, c.Memory.GraduationIntervalMinutes)
	assert.Equal(t, "127.0.0.1", c.HTTP.Host)
	assert.Equal(t, 8090, c.HTTP.Port)
}

func TestLoadWithEmptyPathReturnsDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), c)
}

func TestLoadOverlaysYAMLOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: 9100
evaluator:
  primary: graduated_ranges
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, c.HTTP.Port)
	assert.Equal(t, PrimaryGraduatedRanges, c.Evaluator.Primary)
	// untouched fields keep their defaults
	assert.Equal(t, "127.0.0.1", c.HTTP.Host)
}

func TestLoadMissingFileReturnsConfigInvalid(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.True(t, riskerr.Is(err, riskerr.ConfigInvalid))
}

func TestLoadMalformedYAMLReturnsConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
	assert.True(t, riskerr.Is(err, riskerr.ConfigInvalid))
}
