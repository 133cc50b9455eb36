package config

import (
	"strings"

	"github.com/arloliu/go-apt/apt"
	"github.com/arloliu/go-apt/device"
)

// Normalize fills defaults. Call it only after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]

		d.Kind = strings.ToLower(d.Kind)
		if d.Kind == "" {
			d.Kind = KindMotor
		}

		d.Family = strings.ToLower(d.Family)
		if d.Family == "" {
			d.Family = apt.FamilyThorlabsAPT.Name
		}

		if d.Channel == 0 {
			d.Channel = uint16(device.Channel1)
		}

		if d.MoveTimeout == 0 {
			d.MoveTimeout = device.DefaultMoveTimeout
		}
	}
}
