package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arloliu/go-apt/apt"
)

// Validate checks the table without changing it.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if len(cfg.Devices) == 0 {
		return errors.New("no devices defined")
	}

	names := make(map[string]struct{}, len(cfg.Devices))
	targets := make(map[string]string, len(cfg.Devices))

	for i := range cfg.Devices {
		d := &cfg.Devices[i]

		if d.Name == "" {
			return fmt.Errorf("device #%d: name is required", i)
		}

		if _, dup := names[d.Name]; dup {
			return fmt.Errorf("device %q: duplicate name", d.Name)
		}
		names[d.Name] = struct{}{}

		if err := validateDevice(d); err != nil {
			return fmt.Errorf("device %q: %w", d.Name, err)
		}

		// one connection per port
		target := "sn:" + strings.ToLower(d.SerialNumber)
		if d.Port != "" {
			target = "port:" + d.Port
		}

		if prev, taken := targets[target]; taken {
			return fmt.Errorf("device %q: same target as device %q", d.Name, prev)
		}
		targets[target] = d.Name
	}

	return nil
}

func validateDevice(d *DeviceConfig) error {
	if (d.SerialNumber == "") == (d.Port == "") {
		return errors.New("exactly one of serial_number and port is required")
	}

	switch strings.ToLower(d.Kind) {
	case "", KindMotor, KindMPC320:
	default:
		return fmt.Errorf("unknown kind %q", d.Kind)
	}

	if d.Family != "" {
		if _, ok := apt.LookupDeviceFamily(d.Family); !ok {
			return fmt.Errorf("unknown family %q", d.Family)
		}
	}

	if d.Channel != 0 && strings.ToLower(d.Kind) == KindMPC320 {
		return errors.New("channel is not used by mpc320 devices")
	}

	if d.ReplyTimeout < 0 || d.ReadTimeout < 0 || d.CloseTimeout < 0 || d.SettleDelay < 0 || d.MoveTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}

	if d.SubscriberQueueSize < 0 {
		return errors.New("subscriber_queue_size must not be negative")
	}

	return nil
}
