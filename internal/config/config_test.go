// ABOUTME: Tests for configuration loading
// ABOUTME: Covers defaults, YAML overrides, and validation
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "broker.hivemq.com", cfg.Broker.Host)
	assert.Equal(t, 1883, cfg.Broker.Port)
	assert.Equal(t, 8192, cfg.Jitter.CapacityBytes)
	assert.Equal(t, 50, cfg.Jitter.PrerollPercent)
	assert.Equal(t, 512, cfg.Audio.MaxPacketSize)
	assert.Equal(t, 0.5, cfg.Volume)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	data := []byte("broker:\n  host: mqtt.local\n  port: 8883\njitter:\n  capacity_bytes: 4096\n  preroll_percent: 25\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mqtt.local", cfg.Broker.Host)
	assert.Equal(t, 8883, cfg.Broker.Port)
	assert.Equal(t, 4096, cfg.Jitter.CapacityBytes)
	assert.Equal(t, 1024, cfg.PrerollBytes())
	// Untouched fields keep their defaults.
	assert.Equal(t, 512, cfg.Audio.MaxPacketSize)
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	data := []byte("audio:\n  max_packet_size: 70000\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestPrerollBytes(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 4096, cfg.PrerollBytes())
}
