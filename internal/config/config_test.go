package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sample = `
driver: fake
lights: 64
update_hz: 30
max_batch_size: 16
max_fade_ms: 1000
log_level: debug
monitor:
  enabled: true
  addr: ":8080"
spi:
  dev: /dev/spidev0.0
  speed_khz: 2500
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	assert.Equal(t, "fake", c.Driver)
	assert.Equal(t, 64, c.Lights)
	assert.Equal(t, 30, c.UpdateHz)
	assert.Equal(t, 16, c.MaxBatchSize)
	assert.Equal(t, int64(1000), c.MaxFadeMs)
	assert.True(t, c.Monitor.Enabled)
	assert.Equal(t, ":8080", c.Monitor.Addr)
	assert.Equal(t, "/dev/spidev0.0", c.SPI.Dev)
	assert.NoError(t, c.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	good := Config{Driver: "fake", Lights: 8, UpdateHz: 30, MaxBatchSize: 4}
	assert.NoError(t, good.Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero lights", func(c *Config) { c.Lights = 0 }},
		{"zero hz", func(c *Config) { c.UpdateHz = 0 }},
		{"zero batch", func(c *Config) { c.MaxBatchSize = 0 }},
		{"negative fade", func(c *Config) { c.MaxFadeMs = -1 }},
		{"unknown driver", func(c *Config) { c.Driver = "telnet" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := good
			tc.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
