// Package config holds the tool-wide configuration: device identity, scan
// behavior and the protocol timing knobs, loadable from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/lxprint/pkg/driver"
)

// Config holds application configuration.
type Config struct {
	LogLevel      string        `yaml:"log_level"`
	DeviceName    string        `yaml:"device_name"`
	DeviceAddress string        `yaml:"device_address"`
	ScanTimeout   time.Duration `yaml:"scan_timeout"`

	// Print session tuning, mapped onto driver.Options.
	FlowWindow            int           `yaml:"flow_window"`
	StatusWaitTimeout     time.Duration `yaml:"status_wait_timeout"`
	CompletionWaitTimeout time.Duration `yaml:"completion_wait_timeout"`
	AckDrainGrace         time.Duration `yaml:"ack_drain_grace"`
	Copies                uint16        `yaml:"copies"`
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	opts := driver.DefaultOptions()
	return &Config{
		LogLevel:              "info",
		DeviceName:            "LX-D01",
		ScanTimeout:           10 * time.Second,
		FlowWindow:            opts.FlowWindow,
		StatusWaitTimeout:     opts.StatusWaitTimeout,
		CompletionWaitTimeout: opts.CompletionWaitTimeout,
		AckDrainGrace:         opts.AckDrainGrace,
		Copies:                opts.Copies,
	}
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error; the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// DriverOptions maps the config onto a driver.Options.
func (c *Config) DriverOptions() *driver.Options {
	return &driver.Options{
		FlowWindow:            c.FlowWindow,
		StatusWaitTimeout:     c.StatusWaitTimeout,
		CompletionWaitTimeout: c.CompletionWaitTimeout,
		AckDrainGrace:         c.AckDrainGrace,
		Copies:                c.Copies,
	}
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}
