package config

import (
	"github.com/arloliu/go-apt/apt"
	"github.com/arloliu/go-apt/device"
	"github.com/arloliu/go-apt/logger"
)

// ConnOptions maps the entry to connection options. Zero values keep the
// connection defaults. The motion key options of the device package are
// always included.
func (d *DeviceConfig) ConnOptions() []apt.ConnOption {
	var opts []apt.ConnOption

	if d.SerialNumber != "" {
		opts = append(opts, apt.WithSerialNumber(d.SerialNumber))
	} else {
		opts = append(opts, apt.WithPortPath(d.Port))
	}

	if family, ok := apt.LookupDeviceFamily(d.Family); ok {
		opts = append(opts, apt.WithDeviceFamily(family))
	}

	if d.ReplyTimeout > 0 {
		opts = append(opts, apt.WithReplyTimeout(d.ReplyTimeout))
	}

	if d.ReadTimeout > 0 {
		opts = append(opts, apt.WithReadTimeout(d.ReadTimeout))
	}

	if d.CloseTimeout > 0 {
		opts = append(opts, apt.WithCloseTimeout(d.CloseTimeout))
	}

	if d.SettleDelay > 0 {
		opts = append(opts, apt.WithSettleDelay(d.SettleDelay))
	}

	if d.SubscriberQueueSize > 0 {
		opts = append(opts, apt.WithSubscriberQueueSize(d.SubscriberQueueSize))
	}

	opts = append(opts, apt.WithLogger(logger.With("device", d.Name)))

	return append(opts, device.ConnOptions()...)
}

// DeviceOptions maps the entry to device options.
func (d *DeviceConfig) DeviceOptions() []device.Option {
	var opts []device.Option

	if d.Kind != KindMPC320 && d.Channel > 0 {
		opts = append(opts, device.WithChannel(device.ChannelID(d.Channel)))
	}

	if d.MoveTimeout > 0 {
		opts = append(opts, device.WithMoveTimeout(d.MoveTimeout))
	}

	if d.KeepAlive != nil {
		opts = append(opts, device.WithKeepAlive(*d.KeepAlive))
	}

	return opts
}
