package apt

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-apt/logger"
)

// Default connection settings.
const (
	DefaultReplyTimeout        = 30 * time.Second
	DefaultCloseTimeout        = 3 * time.Second
	DefaultReadTimeout         = 100 * time.Millisecond
	DefaultSubscriberQueueSize = 64
)

// Setting range limits.
const (
	MinReplyTimeout = 10 * time.Millisecond
	MaxReplyTimeout = 10 * time.Minute

	MinReadTimeout = time.Millisecond
	MaxReadTimeout = 5 * time.Second

	MaxSettleDelay = 10 * time.Second

	MaxSubscriberQueueSize = 65536
)

// ConnectionConfig holds all configuration of an APT connection.
type ConnectionConfig struct {
	// Target selection: an explicit port path wins over a serial number.
	serialNumber string
	portPath     string

	family DeviceFamily

	replyTimeout time.Duration
	closeTimeout time.Duration
	readTimeout  time.Duration
	settleDelay  time.Duration

	subscriberQueueSize int
	maxPayloadSize      int

	table   MessageTable
	keyFunc map[MessageID]KeyFunc

	opener   PortOpener
	resolver PortResolver

	logger logger.Logger
}

// NewConnectionConfig creates a new connection configuration.
//
// One of WithSerialNumber or WithPortPath is required. opts are applied in
// order; see With* functions.
func NewConnectionConfig(opts ...ConnOption) (*ConnectionConfig, error) {
	cfg := &ConnectionConfig{
		family:              FamilyThorlabsAPT,
		replyTimeout:        DefaultReplyTimeout,
		closeTimeout:        DefaultCloseTimeout,
		readTimeout:         DefaultReadTimeout,
		subscriberQueueSize: DefaultSubscriberQueueSize,
		maxPayloadSize:      DefaultMaxPayloadSize,
		table:               defaultMessageTable,
		keyFunc:             make(map[MessageID]KeyFunc),
		opener:              OpenSerialPort,
		resolver:            ResolveSerialNumber,
		logger:              logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.serialNumber == "" && cfg.portPath == "" {
		return nil, errors.New("apt: either serial number or port path is required")
	}

	return cfg, nil
}

// --- Getters ---

// SerialNumber returns the configured device serial number.
func (cfg *ConnectionConfig) SerialNumber() string { return cfg.serialNumber }

// PortPath returns the configured OS port path.
func (cfg *ConnectionConfig) PortPath() string { return cfg.portPath }

// Family returns the device family whose line settings are used.
func (cfg *ConnectionConfig) Family() DeviceFamily { return cfg.family }

// ReplyTimeout returns the default reply timeout of requests.
func (cfg *ConnectionConfig) ReplyTimeout() time.Duration { return cfg.replyTimeout }

// CloseTimeout returns how long Close waits for the reader loop to exit.
func (cfg *ConnectionConfig) CloseTimeout() time.Duration { return cfg.closeTimeout }

// ReadTimeout returns the port read timeout used by the reader loop.
func (cfg *ConnectionConfig) ReadTimeout() time.Duration { return cfg.readTimeout }

// SettleDelay returns the delay between opening the port and first use.
func (cfg *ConnectionConfig) SettleDelay() time.Duration { return cfg.settleDelay }

// SubscriberQueueSize returns the per-subscriber status event queue size.
func (cfg *ConnectionConfig) SubscriberQueueSize() int { return cfg.subscriberQueueSize }

// MaxPayloadSize returns the largest long-frame payload the decoder accepts.
func (cfg *ConnectionConfig) MaxPayloadSize() int { return cfg.maxPayloadSize }

// GetLogger returns the configured logger.
func (cfg *ConnectionConfig) GetLogger() logger.Logger { return cfg.logger }

func (cfg *ConnectionConfig) keyDeriver() *keyDeriver {
	return &keyDeriver{table: cfg.table, overrides: cfg.keyFunc}
}

// --- ConnOption ---

// ConnOption is a functional option for configuring a ConnectionConfig.
type ConnOption interface {
	apply(*ConnectionConfig) error
}

type connOptFunc func(*ConnectionConfig) error

func (f connOptFunc) apply(cfg *ConnectionConfig) error { return f(cfg) }

// WithSerialNumber selects the device by its USB serial number.
func WithSerialNumber(sn string) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if sn == "" {
			return errors.New("apt: serial number must not be empty")
		}
		cfg.serialNumber = sn

		return nil
	})
}

// WithPortPath selects the device by OS port path, e.g. /dev/ttyUSB0 or COM3.
func WithPortPath(path string) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if path == "" {
			return errors.New("apt: port path must not be empty")
		}
		cfg.portPath = path

		return nil
	})
}

// WithDeviceFamily sets the line settings of the device.
// The default is FamilyThorlabsAPT.
func WithDeviceFamily(f DeviceFamily) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if err := f.validate(); err != nil {
			return err
		}
		cfg.family = f

		return nil
	})
}

// WithReplyTimeout sets the default reply timeout, used when a request is
// sent without an explicit timeout.
func WithReplyTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if d < MinReplyTimeout || d > MaxReplyTimeout {
			return fmt.Errorf("apt: reply timeout %v out of range [%v, %v]", d, MinReplyTimeout, MaxReplyTimeout)
		}
		cfg.replyTimeout = d

		return nil
	})
}

// WithCloseTimeout sets how long Close waits for the reader loop to exit.
func WithCloseTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if d <= 0 {
			return errors.New("apt: close timeout must be positive")
		}
		cfg.closeTimeout = d

		return nil
	})
}

// WithReadTimeout sets the port read timeout. It bounds how long the reader
// loop takes to notice a close request.
func WithReadTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if d < MinReadTimeout || d > MaxReadTimeout {
			return fmt.Errorf("apt: read timeout %v out of range [%v, %v]", d, MinReadTimeout, MaxReadTimeout)
		}
		cfg.readTimeout = d

		return nil
	})
}

// WithSettleDelay sets the delay between opening the port and purging its
// buffers. Some controllers need a moment after enumeration.
func WithSettleDelay(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if d < 0 || d > MaxSettleDelay {
			return fmt.Errorf("apt: settle delay %v out of range [0, %v]", d, MaxSettleDelay)
		}
		cfg.settleDelay = d

		return nil
	})
}

// WithSubscriberQueueSize sets the per-subscriber status event queue size.
// Events arriving while a subscriber's queue is full are dropped for that
// subscriber.
func WithSubscriberQueueSize(size int) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if size < 1 || size > MaxSubscriberQueueSize {
			return fmt.Errorf("apt: subscriber queue size %d out of range [1, %d]", size, MaxSubscriberQueueSize)
		}
		cfg.subscriberQueueSize = size

		return nil
	})
}

// WithMaxPayloadSize sets the largest long-frame payload the decoder
// accepts. Larger declared lengths are treated as frame errors.
func WithMaxPayloadSize(n int) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if n < 0 || n > MaxPayloadSize {
			return fmt.Errorf("apt: max payload size %d out of range [0, %d]", n, MaxPayloadSize)
		}
		cfg.maxPayloadSize = n

		return nil
	})
}

// WithMessageTable replaces the table of known message ids used to
// validate frames and derive correlation keys.
func WithMessageTable(table MessageTable) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if table == nil {
			return errors.New("apt: message table must not be nil")
		}
		cfg.table = table

		return nil
	})
}

// WithKeyFunc overrides correlation key derivation for received messages
// with the given id.
func WithKeyFunc(id MessageID, fn KeyFunc) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if fn == nil {
			return fmt.Errorf("apt: key func for %s must not be nil", id)
		}
		cfg.keyFunc[id] = fn

		return nil
	})
}

// WithPortOpener replaces the function used to open the port.
func WithPortOpener(opener PortOpener) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if opener == nil {
			return errors.New("apt: port opener must not be nil")
		}
		cfg.opener = opener

		return nil
	})
}

// WithPortResolver replaces the function that maps a serial number to a
// port path.
func WithPortResolver(resolver PortResolver) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if resolver == nil {
			return errors.New("apt: port resolver must not be nil")
		}
		cfg.resolver = resolver

		return nil
	})
}

// WithLogger sets the logger for the connection.
func WithLogger(l logger.Logger) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if l == nil {
			return errors.New("apt: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
