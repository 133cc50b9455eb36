package device

import (
	"errors"
	"time"

	"github.com/arloliu/go-apt/apt"
	"github.com/arloliu/go-apt/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// Default keep-alive intervals. While a request is pending the
// status acknowledgement is sent at the fast interval.
const (
	DefaultKeepAliveInterval     = 900 * time.Millisecond
	DefaultFastKeepAliveInterval = 200 * time.Millisecond
)

// Option configures a Motor or a PolarizationController.
type Option interface {
	apply(*options) error
}

type optFunc func(*options) error

func (f optFunc) apply(o *options) error { return f(o) }

type options struct {
	channel      ChannelID
	dst          apt.Address
	src          apt.Address
	queryTimeout time.Duration
	moveTimeout  time.Duration
	autoEnable   bool
	keepAlive    bool
	slowInterval time.Duration
	fastInterval time.Duration
	logger       logger.Logger
}

func defaultOptions() *options {
	return &options{
		channel:      Channel1,
		dst:          apt.AddrGenericUSB,
		src:          apt.AddrHostController,
		queryTimeout: DefaultQueryTimeout,
		moveTimeout:  DefaultMoveTimeout,
		autoEnable:   true,
		keepAlive:    true,
		slowInterval: DefaultKeepAliveInterval,
		fastInterval: DefaultFastKeepAliveInterval,
	}
}

func buildOptions(opts []Option) (*options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt.apply(o); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// WithChannel sets the motor channel. Defaults to Channel1.
func WithChannel(ch ChannelID) Option {
	return optFunc(func(o *options) error {
		if ch == 0 {
			return errors.New("device: channel must be non-zero")
		}
		o.channel = ch

		return nil
	})
}

// WithAddresses sets the device (destination) and host (source) addresses.
// Defaults to the generic USB device and the host controller.
func WithAddresses(dst, src apt.Address) Option {
	return optFunc(func(o *options) error {
		o.dst = dst
		o.src = src

		return nil
	})
}

// WithQueryTimeout sets the reply timeout of parameter and status queries.
func WithQueryTimeout(d time.Duration) Option {
	return optFunc(func(o *options) error {
		if d <= 0 {
			return errors.New("device: query timeout must be positive")
		}
		o.queryTimeout = d

		return nil
	})
}

// WithMoveTimeout sets how long a move or home may take.
func WithMoveTimeout(d time.Duration) Option {
	return optFunc(func(o *options) error {
		if d <= 0 {
			return errors.New("device: move timeout must be positive")
		}
		o.moveTimeout = d

		return nil
	})
}

// WithAutoEnable controls whether moves enable the channel before and
// disable it after the motion. Enabled by default.
func WithAutoEnable(enabled bool) Option {
	return optFunc(func(o *options) error {
		o.autoEnable = enabled
		return nil
	})
}

// WithKeepAlive controls the status acknowledgement loop. Enabled by
// default; controllers stop sending status updates without it.
func WithKeepAlive(enabled bool) Option {
	return optFunc(func(o *options) error {
		o.keepAlive = enabled
		return nil
	})
}

// WithKeepAliveIntervals sets the idle and the busy acknowledgement
// intervals.
func WithKeepAliveIntervals(idle, busy time.Duration) Option {
	return optFunc(func(o *options) error {
		if idle <= 0 || busy <= 0 || busy > idle {
			return errors.New("device: keep-alive intervals must be positive and busy <= idle")
		}
		o.slowInterval = idle
		o.fastInterval = busy

		return nil
	})
}

// WithLogger sets the device logger. Defaults to the connection logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(o *options) error {
		if l == nil {
			return errors.New("device: logger is nil")
		}
		o.logger = l

		return nil
	})
}

func newController(conn Conn, o *options, kind string) *controller {
	l := o.logger
	if l == nil {
		l = conn.GetLogger()
	}

	return &controller{
		conn:         conn,
		dst:          o.dst,
		src:          o.src,
		logger:       l.With("device", kind),
		moving:       xsync.NewMapOf[ChannelID, struct{}](),
		queryTimeout: o.queryTimeout,
		moveTimeout:  o.moveTimeout,
	}
}
