package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-apt/apt"
	"github.com/arloliu/go-apt/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// Conn is the part of *apt.Connection a device uses.
type Conn interface {
	SendExpectReply(ctx context.Context, msg *apt.Message, key apt.Key, timeout time.Duration) (*apt.Message, error)
	SendNoReply(msg *apt.Message) error
	AddStatusHandler(name string, handler func(*apt.StatusEvent)) (*apt.Subscription, error)
	PendingCount() int
	GetLogger() logger.Logger
}

var _ Conn = (*apt.Connection)(nil)

// Default device timeouts.
const (
	DefaultQueryTimeout = 5 * time.Second
	DefaultMoveTimeout  = 60 * time.Second
)

// ErrMoveStopped is returned when a move ends with MOVE_STOPPED instead of
// reaching its target.
var ErrMoveStopped = errors.New("device: move stopped before completion")

// ErrUnexpectedReply is returned when a reply payload cannot be decoded.
var ErrUnexpectedReply = errors.New("device: unexpected reply")

// motionKey is the correlation key shared by every reply that ends a move
// on channel.
func motionKey(src apt.Address, channel uint16) apt.Key {
	return apt.NewKey(apt.MotMoveCompleted, src, channel)
}

// MotionKeyFunc keys MOVE_COMPLETED, MOVE_HOMED and MOVE_STOPPED frames by
// the motion key of their channel, so a pending move is resolved by
// whichever of them arrives first.
func MotionKeyFunc(msg *apt.Message) apt.Key {
	return motionKey(msg.Source, msg.Channel())
}

// ConnOptions returns the connection options required by motor devices.
func ConnOptions() []apt.ConnOption {
	return []apt.ConnOption{
		apt.WithKeyFunc(apt.MotMoveCompleted, MotionKeyFunc),
		apt.WithKeyFunc(apt.MotMoveHomed, MotionKeyFunc),
		apt.WithKeyFunc(apt.MotMoveStopped, MotionKeyFunc),
	}
}

// controller holds what every device type shares: the connection, the
// addresses and the timeouts. Device types embed no behavior from it;
// they call its helpers.
type controller struct {
	conn   Conn
	dst    apt.Address
	src    apt.Address
	logger logger.Logger
	moving *xsync.MapOf[ChannelID, struct{}]

	queryTimeout time.Duration
	moveTimeout  time.Duration
}

func (c *controller) short(id apt.MessageID, p1, p2 byte) *apt.Message {
	return apt.NewShortMessage(id, p1, p2, c.dst, c.src)
}

func (c *controller) long(id apt.MessageID, payload []byte) *apt.Message {
	return apt.NewLongMessage(id, c.dst, c.src, payload)
}

// query sends msg and waits for the reply with id replyID on channel.
func (c *controller) query(ctx context.Context, msg *apt.Message, replyID apt.MessageID, channel uint16) (*apt.Message, error) {
	return c.conn.SendExpectReply(ctx, msg, apt.NewKey(replyID, c.dst, channel), c.queryTimeout)
}

// move sends msg and waits for the end of the motion on channel. A move
// that ends with MOVE_STOPPED returns the stop frame and ErrMoveStopped.
func (c *controller) move(ctx context.Context, msg *apt.Message, channel uint16) (*apt.Message, error) {
	start := time.Now()

	reply, err := c.conn.SendExpectReply(ctx, msg, motionKey(c.dst, channel), c.moveTimeout)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("device: move finished", "cmd", msg.ID.String(), "end", reply.ID.String(), "channel", channel, "elapsed", time.Since(start))

	if reply.ID == apt.MotMoveStopped {
		return reply, ErrMoveStopped
	}

	return reply, nil
}

// motion runs a move command on channel, enabling the channel for the
// duration of the motion when autoEnable is set. The returned status is nil
// when the move ends with MOVE_HOMED, which carries no payload.
//
// A move on a busy channel fails with apt.ErrRequestInFlight without
// sending anything, so the running move keeps its channel enabled.
func (c *controller) motion(ctx context.Context, channel ChannelID, autoEnable bool, msg *apt.Message) (*UStatus, error) {
	if _, busy := c.moving.LoadOrStore(channel, struct{}{}); busy {
		return nil, fmt.Errorf("%w: channel 0x%02X is moving", apt.ErrRequestInFlight, uint16(channel))
	}
	defer c.moving.Delete(channel)

	if autoEnable {
		if err := c.setChannelEnabled(channel, true); err != nil {
			return nil, err
		}
	}

	reply, err := c.move(ctx, msg, uint16(channel))

	// a move rejected by the connection never started; the channel belongs
	// to the one that did
	if autoEnable && !errors.Is(err, apt.ErrRequestInFlight) {
		if err := c.setChannelEnabled(channel, false); err != nil && !errors.Is(err, apt.ErrConnClosed) {
			c.logger.Warn("device: disable channel failed", "channel", channel, "error", err)
		}
	}

	if reply == nil || !reply.IsLong() {
		return nil, err
	}

	st, decodeErr := decodeUStatus(reply.Payload)
	if decodeErr != nil {
		return nil, errors.Join(err, decodeErr)
	}

	return st, err
}

func (c *controller) setChannelEnabled(channel ChannelID, enabled bool) error {
	state := enableStateOff
	if enabled {
		state = enableStateOn
	}

	return c.conn.SendNoReply(c.short(apt.ModSetChanEnable, byte(channel), state))
}

func (c *controller) identify(channel ChannelID) error {
	return c.conn.SendNoReply(c.short(apt.ModIdentify, byte(channel), 0))
}

func (c *controller) info(ctx context.Context) (*HwInfo, error) {
	reply, err := c.query(ctx, c.short(apt.HwReqInfo, 0, 0), apt.HwGetInfo, 0)
	if err != nil {
		return nil, err
	}

	return decodeHwInfo(reply)
}

func (c *controller) status(ctx context.Context, channel ChannelID) (*UStatus, error) {
	reply, err := c.query(ctx, c.short(apt.MotReqUStatus, byte(channel), 0), apt.MotGetUStatus, uint16(channel))
	if err != nil {
		return nil, err
	}

	return decodeUStatus(reply.Payload)
}

// onStatus calls handler for every status update or move-end frame from
// this device.
func (c *controller) onStatus(name string, handler func(*UStatus)) (*apt.Subscription, error) {
	return c.conn.AddStatusHandler(name, func(evt *apt.StatusEvent) {
		msg := evt.Message
		if msg == nil || msg.Source != c.dst || !carriesStatus(msg.ID) {
			return
		}

		st, err := decodeUStatus(msg.Payload)
		if err != nil {
			c.logger.Warn("device: undecodable status frame", "msg", msg.String(), "error", err)
			return
		}

		handler(st)
	})
}
