// Package config loads the YAML device table used to open APT connections.
//
// A file lists one entry per controller:
//
//	log_level: info
//	devices:
//	  - name: waveplate
//	    kind: motor
//	    serial_number: "55409764"
//	    reply_timeout: 5s
//	  - name: paddles
//	    kind: mpc320
//	    port: /dev/ttyUSB0
//
// Load parses, validates and normalizes a file in one step.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Device kinds.
const (
	KindMotor  = "motor"
	KindMPC320 = "mpc320"
)

// Config is the root of a device table file.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Devices  []DeviceConfig `yaml:"devices"`
}

// DeviceConfig describes one controller and the connection to it.
type DeviceConfig struct {
	Name         string `yaml:"name"`
	Kind         string `yaml:"kind"`
	SerialNumber string `yaml:"serial_number"`
	Port         string `yaml:"port"`
	Family       string `yaml:"family"`

	// Channel is the motor channel; ignored for mpc320.
	Channel uint16 `yaml:"channel"`

	ReplyTimeout        time.Duration `yaml:"reply_timeout"`
	ReadTimeout         time.Duration `yaml:"read_timeout"`
	CloseTimeout        time.Duration `yaml:"close_timeout"`
	SettleDelay         time.Duration `yaml:"settle_delay"`
	SubscriberQueueSize int           `yaml:"subscriber_queue_size"`

	MoveTimeout time.Duration `yaml:"move_timeout"`
	// KeepAlive disables the status acknowledgement loop when false.
	KeepAlive *bool `yaml:"keep_alive"`
}

// Load reads, validates and normalizes the device table at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes, validates and normalizes a device table. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	Normalize(&cfg)

	return &cfg, nil
}

// Device returns the entry named name.
func (c *Config) Device(name string) (*DeviceConfig, bool) {
	for i := range c.Devices {
		if c.Devices[i].Name == name {
			return &c.Devices[i], true
		}
	}

	return nil, false
}
