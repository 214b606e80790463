package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type SPI struct {
	Dev      string `yaml:"dev"`       // e.g. /dev/spidev0.0 ("" = first port)
	SpeedKHz int    `yaml:"speed_khz"` // e.g. 2500
}

type Monitor struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"` // e.g. :8080
}

type Config struct {
	Driver       string `yaml:"driver"` // "spi" | "fake"
	Lights       int    `yaml:"lights"`
	UpdateHz     int    `yaml:"update_hz"`
	MaxBatchSize int    `yaml:"max_batch_size"`
	MaxFadeMs    int64  `yaml:"max_fade_ms"` // fade capability of the fake driver
	LogLevel     string `yaml:"log_level"`

	SPI     SPI     `yaml:"spi,omitempty"`
	Monitor Monitor `yaml:"monitor,omitempty"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Validate rejects malformed configuration before anything starts ticking.
func (c *Config) Validate() error {
	switch c.Driver {
	case "", "spi", "fake":
	default:
		return fmt.Errorf("config: unknown driver %q", c.Driver)
	}
	if c.Lights <= 0 {
		return fmt.Errorf("config: lights must be positive, got %d", c.Lights)
	}
	if c.UpdateHz <= 0 {
		return fmt.Errorf("config: update_hz must be positive, got %d", c.UpdateHz)
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("config: max_batch_size must be positive, got %d", c.MaxBatchSize)
	}
	if c.MaxFadeMs < 0 {
		return fmt.Errorf("config: max_fade_ms must not be negative, got %d", c.MaxFadeMs)
	}
	return nil
}
